// Package store defines the persistence adapter interface (spec.md §6):
// an abstract store exposing the account, task, user and banned-word
// collections, each supporting get-by-id, find-by-predicate,
// update-by-id-and-field-mask and delete-by-id.
package store

import (
	"context"
	"errors"

	"github.com/mjproxy/core/internal/model"
)

// ErrNotFound is returned by GetByID when no record matches.
var ErrNotFound = errors.New("store: record not found")

// Predicate narrows a Find call. Collections interpret the zero value
// of each field as "don't filter on this".
type Predicate struct {
	IDs      []string
	Enabled  *bool
	BotType  model.BotType
	Status   model.Status
	UserID   string
	ClientIP string
	Limit    int
}

// AccountCollection persists model.Account records.
type AccountCollection interface {
	GetByID(ctx context.Context, id string) (*model.Account, error)
	Find(ctx context.Context, p Predicate) ([]*model.Account, error)
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error
	DeleteByID(ctx context.Context, id string) error
	Create(ctx context.Context, acc *model.Account) error
}

// TaskCollection persists model.Task records.
type TaskCollection interface {
	GetByID(ctx context.Context, id string) (*model.Task, error)
	Find(ctx context.Context, p Predicate) ([]*model.Task, error)
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error
	DeleteByID(ctx context.Context, id string) error
	Create(ctx context.Context, t *model.Task) error
}

// UserCollection persists model.User records.
type UserCollection interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	Find(ctx context.Context, p Predicate) ([]*model.User, error)
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error
	DeleteByID(ctx context.Context, id string) error
	Create(ctx context.Context, u *model.User) error
}

// BannedWordCollection persists model.BannedWord records.
type BannedWordCollection interface {
	GetByID(ctx context.Context, id string) (*model.BannedWord, error)
	Find(ctx context.Context, p Predicate) ([]*model.BannedWord, error)
	DeleteByID(ctx context.Context, id string) error
	Create(ctx context.Context, w *model.BannedWord) error
}

// Store groups the four collections spec.md §6 names, plus the ban
// counters that back spec.md §8 scenario 6 (banned-prompt counters with
// a one-day TTL) — a concern the spec assigns to persistence but whose
// natural implementation is a TTL-backed cache, not a row store.
type Store interface {
	Accounts() AccountCollection
	Tasks() TaskCollection
	Users() UserCollection
	BannedWords() BannedWordCollection
	BanCounters() BanCounterStore
}

// BanCounterStore increments and reads the per-user/per-IP banned
// prompt counters (spec.md §8 scenario 6: keys
// "banned:YYYYMMDD:<user_id>" and "banned:YYYYMMDD:<client_ip>", each
// with a one-day TTL).
type BanCounterStore interface {
	Increment(ctx context.Context, userID, clientIP string) error
	Count(ctx context.Context, userID, clientIP string) (userCount, ipCount int64, err error)
}
