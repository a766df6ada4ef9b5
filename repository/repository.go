// Package repository provides typed access to the documents kept in a
// store.Store. Missing documents surface as apperr not_found errors and any
// other store failure as internal errors.
package repository

import (
	"context"
	"errors"
	"time"

	"taskboard/apperr"
	"taskboard/store"
)

type Repository struct {
	store store.Store
	now   func() time.Time
}

func New(s store.Store) *Repository {
	return &Repository{store: s, now: time.Now}
}

// WithClock overrides the timestamp source. Intended for tests.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// Now returns the repository clock's current time.
func (r *Repository) Now() time.Time {
	return r.now()
}

func (r *Repository) get(ctx context.Context, collection, id string, out any, what string) error {
	err := r.store.Get(ctx, collection, id, out)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(what + " not found")
	}
	if err != nil {
		return apperr.Internal("failed to load "+what, err)
	}
	return nil
}

func (r *Repository) set(ctx context.Context, collection, id string, value any, what string) error {
	if err := r.store.Set(ctx, collection, id, value); err != nil {
		return apperr.Internal("failed to save "+what, err)
	}
	return nil
}

func (r *Repository) update(ctx context.Context, collection, id string, fields map[string]any, what string) error {
	fields["updatedAt"] = r.now()
	err := r.store.Update(ctx, collection, id, fields)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(what + " not found")
	}
	if err != nil {
		return apperr.Internal("failed to update "+what, err)
	}
	return nil
}

func (r *Repository) delete(ctx context.Context, collection, id, what string) error {
	if err := r.store.Delete(ctx, collection, id); err != nil {
		return apperr.Internal("failed to delete "+what, err)
	}
	return nil
}

func query[T any](ctx context.Context, r *Repository, collection, field string, value any) ([]T, error) {
	docs, err := r.store.QueryByField(ctx, collection, field, value)
	if err != nil {
		return nil, apperr.Internal("failed to query "+collection, err)
	}
	return decodeAll[T](docs)
}

func list[T any](ctx context.Context, r *Repository, collection string) ([]T, error) {
	docs, err := r.store.List(ctx, collection)
	if err != nil {
		return nil, apperr.Internal("failed to list "+collection, err)
	}
	return decodeAll[T](docs)
}

func decodeAll[T any](docs []store.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := doc.Decode(&v); err != nil {
			return nil, apperr.Internal("corrupt document "+doc.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}
