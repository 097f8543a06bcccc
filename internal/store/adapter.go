package store

import (
	"context"
	"errors"

	"github.com/mjproxy/core/internal/model"
)

// AccountCache invalidates a cached account snapshot. Optional: a nil
// Cache on RuntimeAdapter just skips invalidation, so callers without a
// redis-backed cache configured don't need a no-op stand-in.
type AccountCache interface {
	InvalidateAccount(ctx context.Context, id string) error
}

// RuntimeAdapter narrows a Store down to the three methods the Account
// Runtime needs (account.Persister), so runtime package never imports
// the full store surface.
type RuntimeAdapter struct {
	Store Store
	Cache AccountCache
}

func (a RuntimeAdapter) SaveTask(ctx context.Context, t *model.Task) error {
	if _, err := a.Store.Tasks().GetByID(ctx, t.ID); errors.Is(err, ErrNotFound) {
		return a.Store.Tasks().Create(ctx, t)
	}
	return a.Store.Tasks().UpdateFields(ctx, t.ID, map[string]interface{}{
		"status":        t.Status,
		"progress":      t.Progress,
		"image_url":     t.ImageURL,
		"thumbnail_url": t.ThumbnailURL,
		"fail_reason":   t.FailReason,
		"finish_time":   t.FinishTime,
		"message_id":    t.MessageID,
	})
}

func (a RuntimeAdapter) SaveAccountFields(ctx context.Context, accountID string, fields map[string]interface{}) error {
	if err := a.Store.Accounts().UpdateFields(ctx, accountID, fields); err != nil {
		return err
	}
	if a.Cache != nil {
		return a.Cache.InvalidateAccount(ctx, accountID)
	}
	return nil
}

func (a RuntimeAdapter) IncrementBanCounters(ctx context.Context, userID, clientIP string) error {
	return a.Store.BanCounters().Increment(ctx, userID, clientIP)
}
