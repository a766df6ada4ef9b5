// Package store is the document persistence layer. Every record lives in a
// named collection under a string id and is stored as a JSON document.
//
// No implementation offers multi-document transactions. Callers that need
// to keep two documents consistent do so with application-level logic.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a document doesn't exist.
var ErrNotFound = errors.New("document not found")

// Document is a raw stored record.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document body into out.
func (d Document) Decode(out any) error {
	return json.Unmarshal(d.Data, out)
}

// Store defines the operations services need from persistence.
// All implementations must be safe for concurrent use.
type Store interface {
	// Get decodes the document into out. Returns ErrNotFound if absent.
	Get(ctx context.Context, collection, id string, out any) error

	// Set writes the whole document, replacing any previous value.
	Set(ctx context.Context, collection, id string, value any) error

	// Update merges fields into an existing document. Keys may be dotted
	// paths ("data.status"). Returns ErrNotFound if absent.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete removes the document. No error if it doesn't exist.
	Delete(ctx context.Context, collection, id string) error

	// QueryByField returns documents whose field equals value, ordered by id.
	QueryByField(ctx context.Context, collection, field string, value any) ([]Document, error)

	// List returns every document of a collection, ordered by id.
	List(ctx context.Context, collection string) ([]Document, error)

	// PushID returns a new unique, time-ordered id for the collection.
	PushID(collection string) string
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// mergeFields applies fields on top of the JSON object in raw.
func mergeFields(raw []byte, fields map[string]any) ([]byte, error) {
	doc := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
	}
	for key, value := range fields {
		setPath(doc, strings.Split(key, "."), value)
	}
	return json.Marshal(doc)
}

func setPath(doc map[string]any, path []string, value any) {
	for _, key := range path[:len(path)-1] {
		next, ok := doc[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			doc[key] = next
		}
		doc = next
	}
	doc[path[len(path)-1]] = value
}

// matchField reports whether the field at the dotted path in raw equals
// value once both sides are normalised through JSON.
func matchField(raw []byte, field string, value any) bool {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false
	}
	var current any = doc
	for _, key := range strings.Split(field, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		if current, ok = m[key]; !ok {
			return false
		}
	}
	want, err := normalise(value)
	if err != nil {
		return false
	}
	got, err := json.Marshal(current)
	if err != nil {
		return false
	}
	return string(got) == string(want)
}

func normalise(value any) ([]byte, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func sortDocuments(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}
