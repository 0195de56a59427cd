package events

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/store"
)

const (
	counterTableName = "plan_event_counters"
	counterPlanIDCol = "plan_event_counter_plan_id"
	counterValueCol  = "plan_event_counter_counter"
)

func init() {
	store.MustDBModel(&models.Event{})
}

type EventStore struct {
	db    *store.DB
	table *store.ResourceTable
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *EventStore {
	return &EventStore{
		db:    db,
		table: store.NewResourceTable(db, logFactory, &models.Event{}),
	}
}

// Create a new event with the specified sequence number and data.
// Returns gerror.ErrAlreadyExists if an event with this ID or plan/sequence number already exists.
func (d *EventStore) Create(ctx context.Context, txOrNil *store.Tx, now models.Time, sequenceNumber models.EventNumber, eventData *models.EventData) (*models.Event, error) {
	event := models.NewEvent(now, sequenceNumber, eventData)
	if err := d.table.Create(ctx, txOrNil, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Read an existing event, looking it up by ID.
// Returns gerror.ErrNotFound if the event does not exist.
func (d *EventStore) Read(ctx context.Context, txOrNil *store.Tx, id models.EventID) (*models.Event, error) {
	event := &models.Event{}
	return event, d.table.ReadByID(ctx, txOrNil, id.ResourceID, event)
}

// FindEvents reads the next events for a plan, i.e. those with sequence numbers greater than lastEventNumber,
// in sequence number order. If there are no such events an empty list is returned immediately.
func (d *EventStore) FindEvents(ctx context.Context, txOrNil *store.Tx, planID models.PlanID, lastEventNumber models.EventNumber, limit int) ([]*models.Event, error) {
	ds := d.table.Dialect().
		From(d.table.TableName()).
		Select(&models.Event{}).
		Where(goqu.Ex{"event_plan_id": planID}).
		Where(goqu.C("event_sequence_number").Gt(uint64(lastEventNumber))).
		Order(goqu.C("event_sequence_number").Asc()).
		Limit(uint(limit))
	var events []*models.Event
	if err := d.table.ListAllIn(ctx, txOrNil, &events, ds); err != nil {
		return nil, err
	}
	return events, nil
}

// IncrementEventCounter increments and returns the event counter for the specified plan, to provide
// a sequence number for a new event. The first event of a plan gets sequence number 1.
func (d *EventStore) IncrementEventCounter(ctx context.Context, txOrNil *store.Tx, planID models.PlanID) (models.EventNumber, error) {
	var counter int64
	err := d.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		var found bool
		err := d.db.Write(tx, func(writer store.Writer) error {
			ds := writer.Update(goqu.T(counterTableName)).
				Set(goqu.Record{counterValueCol: goqu.L(counterValueCol + "+1")}).
				Where(goqu.Ex{counterPlanIDCol: planID})
			d.logQuery(ds)
			result, err := ds.Executor().ExecContext(ctx)
			if err != nil {
				return fmt.Errorf("error updating event counter: %w", err)
			}
			rowsUpdated, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("error determining number of event counter rows updated: %w", err)
			}
			found = rowsUpdated == 1
			return nil
		})
		if err != nil {
			return err
		}
		if !found {
			counter = 1
			return d.initializeEventCounter(ctx, tx, planID, counter)
		}
		return d.db.Read(tx, func(reader store.Reader) error {
			ds := reader.From(counterTableName).
				Select(goqu.C(counterValueCol)).
				Where(goqu.Ex{counterPlanIDCol: planID})
			d.logQuery(ds)
			_, err := ds.Executor().ScanValContext(ctx, &counter)
			if err != nil {
				return fmt.Errorf("error reading event counter: %w", err)
			}
			return nil
		})
	})
	return models.EventNumber(counter), err
}

func (d *EventStore) initializeEventCounter(ctx context.Context, txOrNil *store.Tx, planID models.PlanID, initialValue int64) error {
	return d.db.Write(txOrNil, func(writer store.Writer) error {
		ds := writer.Insert(goqu.T(counterTableName)).
			Rows(goqu.Record{
				counterPlanIDCol: planID.String(),
				counterValueCol:  initialValue,
			})
		d.logQuery(ds)
		result, err := ds.Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("error inserting new event counter: %w", store.MakeStandardDBError(err))
		}
		rowsInserted, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("error determining number of event counter rows inserted: %w", err)
		}
		if rowsInserted != 1 {
			return fmt.Errorf("error inserting new event counter; expected 1 row to be inserted but %d rows inserted", rowsInserted)
		}
		return nil
	})
}

func (d *EventStore) logQuery(ds interface {
	ToSQL() (string, []interface{}, error)
}) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return
	}
	d.table.LogQuery(query, args)
}
