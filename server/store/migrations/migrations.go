package migrations

// MigrationSet provides a set of migrations that can be applied to a database.
type MigrationSet []MigrationData

// MigrationData provides the data for a single migration, including Up and Down SQL.
// The SQL is a text/template executed against a DialectTemplate before being applied.
type MigrationData struct {
	SequenceNumber int64
	Name           string
	UpSQL          string
	DownSQL        string
}

// RunHistoryMigrations creates the run history: runs, the artifacts they published and the events
// reporting progress of each plan.
var RunHistoryMigrations = MigrationSet{
	{
		SequenceNumber: 1,
		Name:           "create_runs",
		UpSQL: `CREATE TABLE IF NOT EXISTS runs
				(
					run_id text NOT NULL PRIMARY KEY,
					run_created_at {{ .Timestamp }} NOT NULL,
					run_updated_at {{ .Timestamp }} NOT NULL,
					run_etag text NOT NULL,
					run_job_id text NOT NULL,
					run_plan_id text NOT NULL,
					run_status text NOT NULL,
					run_params text NOT NULL,
					run_fingerprint text NOT NULL,
					run_fingerprint_hash_type text NOT NULL,
					run_dependencies text,
					run_error text,
					run_timings text,
					run_workspace text NOT NULL
				);
				CREATE INDEX IF NOT EXISTS runs_reuse_index ON runs(
					run_job_id,
					run_fingerprint,
					run_status,
					run_created_at DESC);
				CREATE INDEX IF NOT EXISTS runs_plan_id_index ON runs(run_plan_id);
				CREATE UNIQUE INDEX IF NOT EXISTS runs_created_at_id_desc_unique_index ON runs(
					run_created_at DESC,
					run_id DESC);`,
		DownSQL: `DROP INDEX runs_created_at_id_desc_unique_index;
				  DROP INDEX runs_plan_id_index;
				  DROP INDEX runs_reuse_index;
				  DROP TABLE runs;`,
	},
	{
		SequenceNumber: 2,
		Name:           "create_artifacts",
		UpSQL: `CREATE TABLE IF NOT EXISTS artifacts
				(
					artifact_id text NOT NULL PRIMARY KEY,
					artifact_created_at {{ .Timestamp }} NOT NULL,
					artifact_run_id text NOT NULL REFERENCES runs (run_id) ON UPDATE NO ACTION ON DELETE CASCADE,
					artifact_path text NOT NULL,
					artifact_size {{ .BigInt }} NOT NULL,
					artifact_hash text NOT NULL,
					artifact_hash_type text NOT NULL,
					artifact_mime text NOT NULL,
					artifact_blob_key text NOT NULL
				);
				CREATE UNIQUE INDEX IF NOT EXISTS artifacts_run_id_path_unique_index ON artifacts(artifact_run_id, artifact_path);
				CREATE UNIQUE INDEX IF NOT EXISTS artifacts_created_at_id_desc_unique_index ON artifacts(
					artifact_created_at DESC,
					artifact_id DESC);`,
		DownSQL: `DROP INDEX artifacts_created_at_id_desc_unique_index;
				  DROP INDEX artifacts_run_id_path_unique_index;
				  DROP TABLE artifacts;`,
	},
	{
		SequenceNumber: 3,
		Name:           "create_events",
		UpSQL: `CREATE TABLE IF NOT EXISTS events
				(
					event_id text NOT NULL PRIMARY KEY,
					event_created_at {{ .Timestamp }} NOT NULL,
					event_sequence_number {{ .BigInt }} NOT NULL,
					event_plan_id text NOT NULL,
					event_type text NOT NULL,
					event_run_id text,
					event_job_id text NOT NULL,
					event_status text,
					event_error text
				);
				CREATE UNIQUE INDEX IF NOT EXISTS events_plan_id_sequence_number_unique_index ON events(
					event_plan_id,
					event_sequence_number);
				CREATE TABLE IF NOT EXISTS plan_event_counters
				(
					plan_event_counter_plan_id text NOT NULL PRIMARY KEY,
					plan_event_counter_counter {{ .BigInt }} NOT NULL
				);`,
		DownSQL: `DROP TABLE plan_event_counters;
				  DROP INDEX events_plan_id_sequence_number_unique_index;
				  DROP TABLE events;`,
	},
}
