// Package memory is an in-process store.Store used as the fixture store by
// the recycler, historyclient and httpapi tests, grounded on the mutex-guarded-map idiom the
// teacher uses for its in-memory managers (internal/reputation's
// ReputationManager).
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fioncat/csync-go/internal/store"
)

type record struct {
	meta store.Metadata
	blob store.Blob
}

// Store is a fully in-memory store.Store. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[int64]*record
	nextID  int64
}

func New() *Store {
	return &Store{records: make(map[int64]*record)}
}

func (s *Store) Create(ctx context.Context, blob store.Blob, summary, owner string, now time.Time, expires *time.Time) (store.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	meta := store.Metadata{
		ID:        id,
		Kind:      blob.Kind,
		Digest:    blob.Digest,
		Size:      int64(len(blob.Data)),
		Summary:   summary,
		Owner:     owner,
		UpdatedAt: now,
		ExpiresAt: expires,
		FileName:  blob.FileName,
		FileMode:  blob.FileMode,
	}
	s.records[id] = &record{meta: meta, blob: blob}
	return meta, nil
}

func (s *Store) GetBlob(ctx context.Context, id int64) (store.Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return store.Blob{}, store.ErrNotFound
	}
	return r.blob, nil
}

func (s *Store) GetMetadata(ctx context.Context, id int64) (store.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return store.Metadata{}, store.ErrNotFound
	}
	return r.meta, nil
}

func matches(m store.Metadata, f store.Filter) bool {
	if f.Owner != "" && m.Owner != f.Owner {
		return false
	}
	if f.Digest != "" && m.Digest != f.Digest {
		return false
	}
	if f.SummarySubstr != "" && !strings.Contains(m.Summary, f.SummarySubstr) {
		return false
	}
	if f.Kind != nil && m.Kind != *f.Kind {
		return false
	}
	if f.From != nil && m.UpdatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && m.UpdatedAt.After(*f.To) {
		return false
	}
	return true
}

func (s *Store) filtered(f store.Filter) []store.Metadata {
	var out []store.Metadata
	for _, r := range s.records {
		if matches(r.meta, f) {
			out = append(out, r.meta)
		}
	}
	return out
}

func sortMetadata(items []store.Metadata, order store.Order) {
	switch order {
	case store.OrderRecency:
		sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	default:
		sort.Slice(items, func(i, j int) bool {
			if items[i].Pin != items[j].Pin {
				return items[i].Pin
			}
			return items[i].ID > items[j].ID
		})
	}
}

func (s *Store) ListMetadata(ctx context.Context, filter store.Filter, limit, offset int, order store.Order) (store.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.filtered(filter)
	sortMetadata(items, order)
	total := int64(len(items))

	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return store.Page{Items: items, TotalCount: total}, nil
}

func (s *Store) Count(ctx context.Context, filter store.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.filtered(filter))), nil
}

func (s *Store) Patch(ctx context.Context, id int64, patch store.Patch) (store.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return store.Metadata{}, store.ErrNotFound
	}
	if patch.Pin != nil {
		r.meta.Pin = *patch.Pin
	}
	if patch.Expires != nil {
		r.meta.ExpiresAt = patch.Expires
	}
	return r.meta, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *Store) DeleteBatch(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, r := range s.records {
		if r.meta.ExpiresAt != nil && !r.meta.ExpiresAt.After(now) {
			delete(s.records, id)
			count++
		}
	}
	return count, nil
}

func (s *Store) GetLatest(ctx context.Context, kind store.Kind, owner string) (store.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *store.Metadata
	for _, r := range s.records {
		if r.meta.Kind != kind {
			continue
		}
		if owner != "" && r.meta.Owner != owner {
			continue
		}
		if best == nil || r.meta.UpdatedAt.After(best.UpdatedAt) {
			m := r.meta
			best = &m
		}
	}
	if best == nil {
		return store.Metadata{}, store.ErrNotFound
	}
	return *best, nil
}
