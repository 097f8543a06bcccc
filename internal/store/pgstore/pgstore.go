// Package pgstore is the document-store option for the Persistence
// Adapter (spec.md §6): a single JSONB-backed table on Postgres, giving
// schemaless per-collection documents instead of sqlitestore's typed
// columns — useful when account/task shapes evolve without migrations.
package pgstore

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mjproxy/core/internal/model"
	"github.com/mjproxy/core/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// document is the single physical table every collection is stored in:
// a (collection, id) key with an opaque JSONB payload.
type document struct {
	Collection string    `gorm:"primaryKey;column:collection"`
	ID         string    `gorm:"primaryKey;column:id"`
	Data       string    `gorm:"column:data;type:jsonb"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (document) TableName() string { return "documents" }

// Store is a gorm-backed document store over Postgres.
type Store struct {
	db *gorm.DB
}

// Open connects to (and migrates) the given Postgres DSN.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	if err := db.AutoMigrate(&document{}); err != nil {
		return nil, fmt.Errorf("pgstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

const (
	collAccounts    = "account"
	collTasks       = "task"
	collUsers       = "user"
	collBannedWords = "banned-word"
)

func (s *Store) Accounts() store.AccountCollection {
	return typedCollection[model.Account]{db: s.db, collection: collAccounts}
}
func (s *Store) Tasks() store.TaskCollection {
	return typedCollection[model.Task]{db: s.db, collection: collTasks}
}
func (s *Store) Users() store.UserCollection {
	return typedCollection[model.User]{db: s.db, collection: collUsers}
}
func (s *Store) BannedWords() store.BannedWordCollection {
	return typedCollection[model.BannedWord]{db: s.db, collection: collBannedWords}
}
func (s *Store) BanCounters() store.BanCounterStore { return inMemoryBanCounters{} }

// typedCollection implements every *Collection interface in store.go
// generically over the document table: a get by id is a row lookup by
// (collection, id); find by predicate loads rows by id list (or the
// whole collection) and decodes them in Go. Find applies only the IDs
// and Limit fields of the predicate; the other fields are ignored.
type typedCollection[T any] struct {
	db         *gorm.DB
	collection string
}

func (c typedCollection[T]) GetByID(ctx context.Context, id string) (*T, error) {
	var doc document
	err := c.db.WithContext(ctx).Where("collection = ? AND id = ?", c.collection, id).First(&doc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	var v T
	if err := json.UnmarshalFromString(doc.Data, &v); err != nil {
		return nil, fmt.Errorf("pgstore: decode %s/%s: %w", c.collection, id, err)
	}
	return &v, nil
}

func (c typedCollection[T]) Find(ctx context.Context, p store.Predicate) ([]*T, error) {
	q := c.db.WithContext(ctx).Where("collection = ?", c.collection)
	if len(p.IDs) > 0 {
		q = q.Where("id IN ?", p.IDs)
	}
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	var docs []document
	if err := q.Find(&docs).Error; err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.UnmarshalFromString(doc.Data, &v); err != nil {
			return nil, fmt.Errorf("pgstore: decode %s/%s: %w", c.collection, doc.ID, err)
		}
		out = append(out, &v)
	}
	return out, nil
}

func (c typedCollection[T]) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	existing, err := c.GetByID(ctx, id)
	if err != nil {
		return err
	}
	merged, err := json.MarshalToString(existing)
	if err != nil {
		return err
	}
	var raw map[string]interface{}
	if err := json.UnmarshalFromString(merged, &raw); err != nil {
		return err
	}
	for k, v := range fields {
		raw[k] = v
	}
	data, err := json.MarshalToString(raw)
	if err != nil {
		return err
	}
	return c.db.WithContext(ctx).Model(&document{}).
		Where("collection = ? AND id = ?", c.collection, id).
		Updates(map[string]interface{}{"data": data, "updated_at": time.Now()}).Error
}

func (c typedCollection[T]) DeleteByID(ctx context.Context, id string) error {
	return c.db.WithContext(ctx).Where("collection = ? AND id = ?", c.collection, id).Delete(&document{}).Error
}

func (c typedCollection[T]) Create(ctx context.Context, v *T) error {
	id, err := documentID(v)
	if err != nil {
		return err
	}
	data, err := json.MarshalToString(v)
	if err != nil {
		return err
	}
	return c.db.WithContext(ctx).Create(&document{
		Collection: c.collection,
		ID:         id,
		Data:       data,
		UpdatedAt:  time.Now(),
	}).Error
}

// documentID extracts the ID field any of the four record types carry,
// without importing a common base type (spec.md §9: the domain records
// share only id and a serialization strategy).
func documentID(v interface{}) (string, error) {
	switch r := v.(type) {
	case *model.Account:
		return r.ID, nil
	case *model.Task:
		return r.ID, nil
	case *model.User:
		return r.ID, nil
	case *model.BannedWord:
		return r.ID, nil
	default:
		return "", fmt.Errorf("pgstore: unsupported record type %T", v)
	}
}

// inMemoryBanCounters is a placeholder for deployments that run pgstore
// without rediscache; see rediscache.Cache for the real TTL-backed
// implementation used in production wiring.
type inMemoryBanCounters struct{}

func (inMemoryBanCounters) Increment(ctx context.Context, userID, clientIP string) error { return nil }
func (inMemoryBanCounters) Count(ctx context.Context, userID, clientIP string) (int64, int64, error) {
	return 0, 0, nil
}
