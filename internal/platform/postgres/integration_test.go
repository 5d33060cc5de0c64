package postgres_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/platform/postgres"
	"github.com/phrazzld/taskflow/internal/store"
	"github.com/phrazzld/taskflow/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoresAgainstPostgres(t *testing.T) {
	db := testdb.GetTestDBWithT(t)
	ctx := context.Background()

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		tasks := postgres.NewPostgresTaskStore(tx, nil)
		completions := postgres.NewPostgresCompletionStore(tx, nil)

		open, err := domain.NewTask(1, 2, "open task", "", nil, nil)
		require.NoError(t, err)
		require.NoError(t, tasks.Create(ctx, open))

		done, err := domain.NewTask(1, 2, "done task", "", nil, nil)
		require.NoError(t, err)
		done.Status = domain.TaskStatusCompleted
		require.NoError(t, tasks.Create(ctx, done))

		page, err := tasks.List(ctx, domain.TaskFilter{TeamID: 1, SubjectID: 2, Status: domain.StatusFilterNotCompleted})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)
		require.Len(t, page.Tasks, 1)
		assert.Equal(t, open.ID, page.Tasks[0].ID)

		c, err := domain.NewCompletion(open.ID, 9)
		require.NoError(t, err)
		require.NoError(t, completions.Create(ctx, c))

		again, err := domain.NewCompletion(open.ID, 9)
		require.NoError(t, err)
		assert.ErrorIs(t, completions.Create(ctx, again), store.ErrAlreadySubmitted)
	})
}

func TestGatewayDeleteCascadeAgainstPostgres(t *testing.T) {
	db := testdb.GetTestDBWithT(t)
	testdb.ResetTables(t, db)
	ctx := context.Background()
	g := postgres.NewGateway(db, nil)

	task, err := domain.NewTask(3, 4, "to delete", "", nil, nil)
	require.NoError(t, err)
	require.NoError(t, g.Tasks().Create(ctx, task))
	c, err := domain.NewCompletion(task.ID, 1)
	require.NoError(t, err)
	require.NoError(t, g.Completions().Create(ctx, c))

	err = g.InTx(ctx, func(ctx context.Context, tx store.Gateway) error {
		if _, err := tx.Completions().DeleteByTask(ctx, task.ID); err != nil {
			return err
		}
		if err := tx.Tasks().Delete(ctx, task.ID); err != nil {
			return err
		}
		return tx.Ledger().Record(ctx, "0000000000000000000000000000000000000000000000000000000000000001", "DELETE_TASK")
	})
	require.NoError(t, err)

	_, err = g.Tasks().GetByID(ctx, task.ID)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
	_, err = g.Completions().Find(ctx, task.ID, 1)
	assert.ErrorIs(t, err, store.ErrCompletionNotFound)

	seen, err := g.Ledger().Seen(ctx, "0000000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.True(t, seen)
}
