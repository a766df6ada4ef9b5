package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// document is the single table backing every collection on Postgres.
type document struct {
	Collection string         `gorm:"primaryKey;size:64"`
	ID         string         `gorm:"primaryKey;size:64"`
	Body       datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (document) TableName() string { return "documents" }

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the documents table.
func (g *GormStore) Migrate() error {
	return g.db.AutoMigrate(&document{})
}

func (g *GormStore) Get(ctx context.Context, collection, id string, out any) error {
	var doc document
	err := g.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load %s/%s: %w", collection, id, err)
	}
	return Document{ID: doc.ID, Data: []byte(doc.Body)}.Decode(out)
}

func (g *GormStore) Set(ctx context.Context, collection, id string, value any) error {
	raw, err := normalise(value)
	if err != nil {
		return err
	}
	doc := document{Collection: collection, ID: id, Body: datatypes.JSON(raw)}
	err = g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&doc).Error
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update locks the row for the read-merge-write so concurrent updates to the
// same document serialise.
func (g *GormStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc document
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("collection = ? AND id = ?", collection, id).
			First(&doc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock %s/%s: %w", collection, id, err)
		}

		merged, err := mergeFields(doc.Body, fields)
		if err != nil {
			return err
		}
		return tx.Model(&document{}).
			Where("collection = ? AND id = ?", collection, id).
			Updates(map[string]any{
				"body":       datatypes.JSON(merged),
				"updated_at": time.Now(),
			}).Error
	})
}

func (g *GormStore) Delete(ctx context.Context, collection, id string) error {
	err := g.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&document{}).Error
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (g *GormStore) QueryByField(ctx context.Context, collection, field string, value any) ([]Document, error) {
	var rows []document
	err := g.db.WithContext(ctx).
		Where("collection = ?", collection).
		Where(datatypes.JSONQuery("body").Equals(value, strings.Split(field, ".")...)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", collection, field, err)
	}
	return toDocuments(rows), nil
}

func (g *GormStore) List(ctx context.Context, collection string) ([]Document, error) {
	var rows []document
	err := g.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return toDocuments(rows), nil
}

func (g *GormStore) PushID(string) string { return newID() }

func toDocuments(rows []document) []Document {
	docs := make([]Document, len(rows))
	for i, row := range rows {
		docs[i] = Document{ID: row.ID, Data: []byte(row.Body)}
	}
	return docs
}
