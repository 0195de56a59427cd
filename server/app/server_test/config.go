package server_test

import (
	"testing"

	"github.com/buildbeaver/depchain/server/app"
)

// TestConfig returns a server config keeping all state in a temporary directory and loading the
// pipeline from workDir. The test server supplies its own database and listens on a random port.
func TestConfig(t *testing.T, workDir string) *app.ServerConfig {
	config := app.NewDefaultServerConfig(t.TempDir(), workDir)
	config.APIServerConfig.Address = "" // Test is expected to use httptest server which picks its own address
	config.SchedulerConfig.ParallelJobs = 2
	return config
}
