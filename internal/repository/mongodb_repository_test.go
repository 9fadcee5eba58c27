package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestDB(t *testing.T) (*MongoRepository, func()) {
	if testing.Short() {
		t.Skip("skipping mongodb integration test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	repo, err := Open(ctx, uri, "testdb")
	require.NoError(t, err)

	cleanup := func() {
		if err := repo.Close(ctx); err != nil {
			t.Logf("failed to disconnect: %s", err)
		}
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func snapshot(customerID, storeID string, updatedAt time.Time, lines ...domain.CartLine) *domain.CartSnapshot {
	return &domain.CartSnapshot{
		CustomerID: customerID,
		StoreID:    storeID,
		StoreName:  "store " + storeID,
		Lines:      lines,
		UpdatedAt:  updatedAt,
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	got, err := repo.Get(context.Background(), domain.CartKey{CustomerID: "42", StoreID: "1"})
	assert.ErrorIs(t, err, ErrSavedCartNotFound)
	assert.Nil(t, got)
}

func TestSave_UpsertsPerStore(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	first := snapshot("42", "1", now, domain.CartLine{ID: "11", ProductID: 5, UnitPrice: 1500, Quantity: 1})
	require.NoError(t, repo.Save(ctx, first))

	second := snapshot("42", "1", now.Add(time.Minute), domain.CartLine{ID: "11", ProductID: 5, UnitPrice: 1500, Quantity: 4})
	require.NoError(t, repo.Save(ctx, second))

	got, err := repo.Get(ctx, domain.CartKey{CustomerID: "42", StoreID: "1"})
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 4, got.Lines[0].Quantity)
	assert.Equal(t, "store 1", got.StoreName)
	assert.WithinDuration(t, now.Add(time.Minute), got.UpdatedAt, time.Millisecond)

	all, err := repo.ListByCustomer(ctx, "42")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListByCustomer_MostRecentFirst(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Save(ctx, snapshot("42", "1", now.Add(-time.Hour))))
	require.NoError(t, repo.Save(ctx, snapshot("42", "2", now)))
	require.NoError(t, repo.Save(ctx, snapshot("99", "1", now)))

	carts, err := repo.ListByCustomer(ctx, "42")
	require.NoError(t, err)
	require.Len(t, carts, 2)
	assert.Equal(t, "2", carts[0].StoreID)
	assert.Equal(t, "1", carts[1].StoreID)

	none, err := repo.ListByCustomer(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDelete(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	key := domain.CartKey{CustomerID: "42", StoreID: "1"}

	require.NoError(t, repo.Save(ctx, snapshot("42", "1", time.Now())))
	require.NoError(t, repo.Delete(ctx, key))

	_, err := repo.Get(ctx, key)
	assert.ErrorIs(t, err, ErrSavedCartNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, key), ErrSavedCartNotFound)
}
