package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/store"
	"github.com/buildbeaver/depchain/server/store/runs"
	"github.com/buildbeaver/depchain/server/store/store_test"
)

func connect(t *testing.T) (*store.DB, logger.LogFactory, func()) {
	logRegistry, err := logger.NewLogRegistry("")
	require.NoError(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)
	db, cleanup, err := store_test.Connect(logFactory)
	require.NoError(t, err)
	return db, logFactory, cleanup
}

// TestResourceAlreadyExistsThrown tests that MakeStandardDBError provides the correct error code when we attempt to
// create a resource whose primary key already exists.
func TestResourceAlreadyExistsThrown(t *testing.T) {
	db, logFactory, cleanup := connect(t)
	defer cleanup()
	runStore := runs.NewStore(db, logFactory)

	run := models.NewRun(models.NewTime(time.Now()), models.NewPlanID(), "compile", models.Params{}, "f1", models.HashTypeFNV)
	err := runStore.Create(context.Background(), nil, run)
	require.Nil(t, err)

	again := *run
	err = runStore.Create(context.Background(), nil, &again)
	require.NotNil(t, err)
	require.NotNil(t, gerror.ToAlreadyExists(err))
}

// TestResourceNotFoundThrown tests that the resource table provides the correct error code when we attempt to
// retrieve a resource that doesn't exist.
func TestResourceNotFoundThrown(t *testing.T) {
	db, logFactory, cleanup := connect(t)
	defer cleanup()
	runStore := runs.NewStore(db, logFactory)

	_, err := runStore.Read(context.Background(), nil, models.NewRunID())
	require.NotNil(t, err)
	require.NotNil(t, gerror.ToNotFound(err))
}

// TestTransactionRollback checks that writes made inside a failed transaction are not visible afterwards.
func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	db, logFactory, cleanup := connect(t)
	defer cleanup()
	runStore := runs.NewStore(db, logFactory)

	run := models.NewRun(models.NewTime(time.Now()), models.NewPlanID(), "compile", models.Params{}, "f1", models.HashTypeFNV)
	err := db.WithTx(ctx, nil, func(tx *store.Tx) error {
		if err := runStore.Create(ctx, tx, run); err != nil {
			return err
		}
		return gerror.NewErrValidationFailed("abort")
	})
	require.True(t, gerror.IsValidationFailed(err))

	_, err = runStore.Read(ctx, nil, run.ID)
	require.True(t, gerror.IsNotFound(err))
}
