// Package sqlitestore is the embedded store option for the Persistence
// Adapter (spec.md §6): a single-file gorm+sqlite database, the choice
// for a single-process deployment with no external database dependency.
package sqlitestore

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mjproxy/core/internal/model"
	"github.com/mjproxy/core/internal/store"
)

// Store is a gorm-backed store.Store over a local sqlite file.
type Store struct {
	db *gorm.DB
}

// Open connects to (and migrates) the sqlite database at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&model.Account{}, &model.Task{}, &model.User{}, &model.BannedWord{}); err != nil {
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Accounts() store.AccountCollection       { return accountCollection{db: s.db} }
func (s *Store) Tasks() store.TaskCollection             { return taskCollection{db: s.db} }
func (s *Store) Users() store.UserCollection             { return userCollection{db: s.db} }
func (s *Store) BannedWords() store.BannedWordCollection { return bannedWordCollection{db: s.db} }

// BanCounters is supplied separately (spec.md §6 notes the ban
// counters are TTL-backed, naturally a cache concern); callers compose
// a Store with a rediscache.Cache, or this in-process stub for
// tests/single-node runs without redis.
func (s *Store) BanCounters() store.BanCounterStore { return noopBanCounters{} }

type noopBanCounters struct{}

func (noopBanCounters) Increment(ctx context.Context, userID, clientIP string) error { return nil }
func (noopBanCounters) Count(ctx context.Context, userID, clientIP string) (int64, int64, error) {
	return 0, 0, nil
}

type accountCollection struct{ db *gorm.DB }

func (c accountCollection) GetByID(ctx context.Context, id string) (*model.Account, error) {
	var acc model.Account
	err := c.db.WithContext(ctx).First(&acc, "id = ?", id).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &acc, nil
}

func (c accountCollection) Find(ctx context.Context, p store.Predicate) ([]*model.Account, error) {
	q := c.db.WithContext(ctx).Model(&model.Account{})
	q = applyPredicate(q, p)
	var accs []*model.Account
	if err := q.Find(&accs).Error; err != nil {
		return nil, err
	}
	return accs, nil
}

func (c accountCollection) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	return c.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).Updates(fields).Error
}

func (c accountCollection) DeleteByID(ctx context.Context, id string) error {
	return c.db.WithContext(ctx).Delete(&model.Account{}, "id = ?", id).Error
}

func (c accountCollection) Create(ctx context.Context, acc *model.Account) error {
	return c.db.WithContext(ctx).Create(acc).Error
}

type taskCollection struct{ db *gorm.DB }

func (c taskCollection) GetByID(ctx context.Context, id string) (*model.Task, error) {
	var t model.Task
	if err := c.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &t, nil
}

func (c taskCollection) Find(ctx context.Context, p store.Predicate) ([]*model.Task, error) {
	q := c.db.WithContext(ctx).Model(&model.Task{})
	q = applyPredicate(q, p)
	if p.Status != "" {
		q = q.Where("status = ?", p.Status)
	}
	if p.UserID != "" {
		q = q.Where("user_id = ?", p.UserID)
	}
	var tasks []*model.Task
	if err := q.Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c taskCollection) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	return c.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).Updates(fields).Error
}

func (c taskCollection) DeleteByID(ctx context.Context, id string) error {
	return c.db.WithContext(ctx).Delete(&model.Task{}, "id = ?", id).Error
}

func (c taskCollection) Create(ctx context.Context, t *model.Task) error {
	return c.db.WithContext(ctx).Create(t).Error
}

type userCollection struct{ db *gorm.DB }

func (c userCollection) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := c.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &u, nil
}

func (c userCollection) Find(ctx context.Context, p store.Predicate) ([]*model.User, error) {
	q := c.db.WithContext(ctx).Model(&model.User{})
	q = applyPredicate(q, p)
	var users []*model.User
	if err := q.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (c userCollection) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	return c.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}

func (c userCollection) DeleteByID(ctx context.Context, id string) error {
	return c.db.WithContext(ctx).Delete(&model.User{}, "id = ?", id).Error
}

func (c userCollection) Create(ctx context.Context, u *model.User) error {
	return c.db.WithContext(ctx).Create(u).Error
}

type bannedWordCollection struct{ db *gorm.DB }

func (c bannedWordCollection) GetByID(ctx context.Context, id string) (*model.BannedWord, error) {
	var w model.BannedWord
	if err := c.db.WithContext(ctx).First(&w, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &w, nil
}

func (c bannedWordCollection) Find(ctx context.Context, p store.Predicate) ([]*model.BannedWord, error) {
	q := c.db.WithContext(ctx).Model(&model.BannedWord{})
	q = applyPredicate(q, p)
	var words []*model.BannedWord
	if err := q.Find(&words).Error; err != nil {
		return nil, err
	}
	return words, nil
}

func (c bannedWordCollection) DeleteByID(ctx context.Context, id string) error {
	return c.db.WithContext(ctx).Delete(&model.BannedWord{}, "id = ?", id).Error
}

func (c bannedWordCollection) Create(ctx context.Context, w *model.BannedWord) error {
	return c.db.WithContext(ctx).Create(w).Error
}

func applyPredicate(q *gorm.DB, p store.Predicate) *gorm.DB {
	if len(p.IDs) > 0 {
		q = q.Where("id IN ?", p.IDs)
	}
	if p.Enabled != nil {
		q = q.Where("enable = ?", *p.Enabled)
	}
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	return q
}

func translateErr(err error) error {
	if err == gorm.ErrRecordNotFound {
		return store.ErrNotFound
	}
	return err
}
