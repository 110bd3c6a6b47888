// Package storetest runs one conformance suite against any store.Store
// implementation, so internal/store/memory, internal/store/postgres and
// internal/store/rediscache can all assert they satisfy the Resource
// Store Facade's contract identically. Grounded on the teacher's
// table-driven test baseline (internal/store/memory/memory_test.go);
// postgres and rediscache need a live database/Redis to run this suite
// against and so don't call it yet (see DESIGN.md).
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fioncat/csync-go/internal/store"
)

// Run exercises Create/GetBlob/GetMetadata/ListMetadata/Patch/DeleteBatch/
// DeleteExpired/GetLatest against a freshly constructed store.Store.
// newStore is called once per subtest so state never leaks between them.
func Run(t *testing.T, newStore func() store.Store) {
	t.Helper()

	t.Run("CreateGetRoundTrip", func(t *testing.T) {
		s := newStore()
		now := time.Now()
		meta, err := s.Create(context.Background(), store.Blob{Data: []byte("payload"), Digest: "d1", Kind: store.KindText}, "summary", "alice", now, nil)
		require.NoError(t, err)
		assert.NotZero(t, meta.ID)

		blob, err := s.GetBlob(context.Background(), meta.ID)
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), blob.Data)

		got, err := s.GetMetadata(context.Background(), meta.ID)
		require.NoError(t, err)
		assert.Equal(t, "d1", got.Digest)
		assert.Equal(t, "alice", got.Owner)

		_, err = s.GetMetadata(context.Background(), meta.ID+1_000_000)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("ListOrdersPinnedFirstThenByRecency", func(t *testing.T) {
		s := newStore()
		now := time.Now()
		id1, err := s.Create(context.Background(), store.Blob{Digest: "a"}, "", "bob", now, nil)
		require.NoError(t, err)
		id2, err := s.Create(context.Background(), store.Blob{Digest: "b"}, "", "bob", now.Add(time.Second), nil)
		require.NoError(t, err)

		pin := true
		_, err = s.Patch(context.Background(), id1.ID, store.Patch{Pin: &pin})
		require.NoError(t, err)

		page, err := s.ListMetadata(context.Background(), store.Filter{Owner: "bob"}, 10, 0, store.OrderPinThenRecency)
		require.NoError(t, err)
		require.Len(t, page.Items, 2)
		assert.Equal(t, id1.ID, page.Items[0].ID, "pinned item must sort first")
		assert.Equal(t, id2.ID, page.Items[1].ID)
	})

	t.Run("DeleteExpiredRemovesOnlyPastExpiry", func(t *testing.T) {
		s := newStore()
		now := time.Now()
		past := now.Add(-time.Hour)
		future := now.Add(time.Hour)

		live, err := s.Create(context.Background(), store.Blob{}, "", "carol", now, &future)
		require.NoError(t, err)
		_, err = s.Create(context.Background(), store.Blob{}, "", "carol", now, &past)
		require.NoError(t, err)

		removed, err := s.DeleteExpired(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, err = s.GetMetadata(context.Background(), live.ID)
		assert.NoError(t, err)
	})

	t.Run("GetLatestPerOwnerAndKind", func(t *testing.T) {
		s := newStore()
		now := time.Now()
		_, err := s.Create(context.Background(), store.Blob{Kind: store.KindText}, "", "dave", now, nil)
		require.NoError(t, err)
		latest, err := s.Create(context.Background(), store.Blob{Kind: store.KindText}, "", "dave", now.Add(time.Minute), nil)
		require.NoError(t, err)
		_, err = s.Create(context.Background(), store.Blob{Kind: store.KindImage}, "", "dave", now.Add(time.Hour), nil)
		require.NoError(t, err)

		got, err := s.GetLatest(context.Background(), store.KindText, "dave")
		require.NoError(t, err)
		assert.Equal(t, latest.ID, got.ID)

		_, err = s.GetLatest(context.Background(), store.KindText, "nobody-by-this-name")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("DeleteBatchRemovesAllNamedIDs", func(t *testing.T) {
		s := newStore()
		now := time.Now()
		a, err := s.Create(context.Background(), store.Blob{}, "", "erin", now, nil)
		require.NoError(t, err)
		b, err := s.Create(context.Background(), store.Blob{}, "", "erin", now, nil)
		require.NoError(t, err)

		require.NoError(t, s.DeleteBatch(context.Background(), []int64{a.ID, b.ID}))

		_, err = s.GetMetadata(context.Background(), a.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.GetMetadata(context.Background(), b.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}
