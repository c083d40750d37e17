package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/receiptqa/server/internal/store"
)

func strPtr(s string) *string { return &s }

func TestRepository_TablesSchema(t *testing.T) {
	t.Run("Should list views by default", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		var noComment *string
		rows := mockPool.NewRows([]string{"table_schema", "table_name", "table_comment"}).
			AddRow("public", "v_tickets", strPtr("Receipts uploaded by users")).
			AddRow("public", "v_items", noComment)
		mockPool.ExpectQuery("FROM information_schema.tables").
			WithArgs([]string{store.RelationView}).
			WillReturnRows(rows)

		repo := store.NewRepository(mockPool)
		tables, err := repo.TablesSchema(context.Background())
		require.NoError(t, err)
		require.Len(t, tables, 2)
		assert.Equal(t, "v_tickets", tables[0].Name)
		assert.Equal(t, "Receipts uploaded by users", *tables[0].Comment)
		assert.Nil(t, tables[1].Comment)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should propagate store failures", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectQuery("FROM information_schema.tables").
			WithArgs([]string{store.RelationView, store.RelationTable}).
			WillReturnError(errors.New("connection refused"))

		repo := store.NewRepository(mockPool, store.RelationView, store.RelationTable)
		_, err = repo.TablesSchema(context.Background())
		assert.ErrorContains(t, err, "connection refused")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestRepository_ColumnsSchema(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	rows := mockPool.NewRows([]string{"column_name", "column_type", "column_comment"}).
		AddRow("id", "integer", strPtr("Ticket identifier")).
		AddRow("total", "numeric", strPtr("Total amount"))
	mockPool.ExpectQuery("FROM information_schema.columns").
		WithArgs("public", "v_tickets").
		WillReturnRows(rows)

	repo := store.NewRepository(mockPool)
	cols, err := repo.ColumnsSchema(context.Background(), "public", "v_tickets")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "total", cols[1].Name)
	assert.Equal(t, "numeric", cols[1].Type)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRepository_ExecuteQuery(t *testing.T) {
	t.Run("Should return rows as column maps", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		rows := mockPool.NewRows([]string{"merchant", "total"}).
			AddRow("Mercadona", 42.5).
			AddRow("Lidl", 10.0)
		mockPool.ExpectQuery("SELECT merchant, total FROM v_tickets").WillReturnRows(rows)

		repo := store.NewRepository(mockPool)
		result, err := repo.ExecuteQuery(context.Background(), "SELECT merchant, total FROM v_tickets")
		require.NoError(t, err)
		require.Len(t, result, 2)
		assert.Equal(t, "Mercadona", result[0]["merchant"])
		assert.Equal(t, 10.0, result[1]["total"])
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Should return empty slice when no rows", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectQuery("SELECT 1").WillReturnRows(mockPool.NewRows([]string{"x"}))

		repo := store.NewRepository(mockPool)
		result, err := repo.ExecuteQuery(context.Background(), "SELECT 1 WHERE false")
		require.NoError(t, err)
		assert.NotNil(t, result)
		assert.Empty(t, result)
	})

	t.Run("Should propagate execution errors", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectQuery("SELEC").WillReturnError(errors.New(`syntax error at or near "SELEC"`))

		repo := store.NewRepository(mockPool)
		_, err = repo.ExecuteQuery(context.Background(), "SELEC * FROM nowhere")
		assert.ErrorContains(t, err, "syntax error")
	})
}
