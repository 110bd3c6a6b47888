// Package store defines the Resource Store Facade: an operation-level
// contract over persistent clipboard history, independent of the backing
// database. internal/store/postgres, internal/store/rediscache and
// internal/store/memory all implement Store; internal/store/httpapi
// exposes it over REST.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by GetBlob/GetMetadata/Patch/Delete when id does
// not name an existing resource.
var ErrNotFound = errors.New("store: resource not found")

type Kind int

const (
	KindText Kind = iota
	KindImage
	KindFile
)

// Metadata is the history-mode entity spec.md describes: everything about
// a stored resource except its payload.
type Metadata struct {
	ID        int64
	Kind      Kind
	Digest    string
	Size      int64
	Summary   string
	Owner     string
	Pin       bool
	UpdatedAt time.Time
	ExpiresAt *time.Time

	// FileName/FileMode round-trip Supplement C.7's file payload fields;
	// zero-valued for text/image metadata.
	FileName string
	FileMode uint64
}

// Blob is the full resource: its payload plus the same identifying fields
// as Metadata, returned together so a GetBlob caller never needs a second
// round trip for the digest/kind it just read.
type Blob struct {
	Data     []byte
	Digest   string
	Kind     Kind
	FileName string
	FileMode uint64
}

// Filter narrows list/count queries. A zero Filter matches everything.
type Filter struct {
	Owner         string
	Digest        string
	SummarySubstr string
	Kind          *Kind
	From, To      *time.Time
}

// Order is a list ordering; the zero value is spec.md's default
// "pin DESC, id DESC".
type Order int

const (
	OrderPinThenRecency Order = iota
	OrderRecency
)

// Page is one list_metadata result page.
type Page struct {
	Items      []Metadata
	TotalCount int64
}

// Patch holds the optional fields patch(id, ...) may change; a nil field
// leaves that column untouched.
type Patch struct {
	Pin     *bool
	Expires *time.Time
}

// Store is the Resource Store Facade's operation-level contract. Writes
// run inside a single transaction per spec.md §4.7; callers never see a
// partially-applied Create or Patch.
type Store interface {
	Create(ctx context.Context, blob Blob, summary, owner string, now time.Time, expires *time.Time) (Metadata, error)

	GetBlob(ctx context.Context, id int64) (Blob, error)
	GetMetadata(ctx context.Context, id int64) (Metadata, error)
	ListMetadata(ctx context.Context, filter Filter, limit, offset int, order Order) (Page, error)
	Count(ctx context.Context, filter Filter) (int64, error)

	Patch(ctx context.Context, id int64, patch Patch) (Metadata, error)

	Delete(ctx context.Context, id int64) error
	DeleteBatch(ctx context.Context, ids []int64) error
	// DeleteExpired removes every resource whose ExpiresAt is non-nil and
	// <= now, returning the count removed. Driven by internal/recycler.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// GetLatest returns the most recently updated resource of kind,
	// optionally restricted to owner, or (Metadata{}, ErrNotFound) if none
	// exists.
	GetLatest(ctx context.Context, kind Kind, owner string) (Metadata, error)
}
