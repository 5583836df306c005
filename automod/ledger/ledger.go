// Durable warning ledger and moderation action log, on any database gorm supports (sqlite and postgres in practice).
//
// The ledger is the only writer of the `warnings` and `moderation_actions` tables. Warnings for a (group, user) pair are only ever removed all together; moderation actions are append-only.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"

	"gorm.io/gorm"
)

type Warning struct {
	ID       uint         `gorm:"primarykey" json:"id"`
	GroupID  chat.GroupID `gorm:"index:idx_warnings_pair;not null" json:"group_id"`
	UserID   chat.UserID  `gorm:"index:idx_warnings_pair;not null" json:"user_id"`
	Reason   string       `json:"reason"`
	IssuedBy chat.UserID  `json:"issued_by"`
	IssuedAt time.Time    `gorm:"not null" json:"issued_at"`
}

type ModerationAction struct {
	ID              uint            `gorm:"primarykey" json:"id"`
	GroupID         chat.GroupID    `gorm:"index:idx_actions_pair;not null" json:"group_id"`
	UserID          chat.UserID     `gorm:"index:idx_actions_pair;not null" json:"user_id"`
	Kind            chat.ActionKind `gorm:"not null" json:"kind"`
	DurationSeconds int64           `json:"duration_seconds"`
	Reason          string          `json:"reason"`
	IssuedBy        chat.UserID     `json:"issued_by"`
	IssuedAt        time.Time       `gorm:"not null" json:"issued_at"`
}

// Warning total for one user, as returned by TopWarned.
type WarnCount struct {
	UserID chat.UserID `json:"user_id"`
	Count  int64       `json:"count"`
}

type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Creates or updates the ledger tables.
func (l *Ledger) Migrate() error {
	if err := l.db.AutoMigrate(&Warning{}, &ModerationAction{}); err != nil {
		return fmt.Errorf("failed to auto-migrate ledger tables: %w", err)
	}
	return nil
}

// Appends a warning and counts the pair's warnings, in one transaction. If decide returns true for the new count, every warning for the pair is cleared in the same transaction.
//
// Returns the count including the new warning (before any clearing), and whether the pair was cleared. On error nothing is committed.
func (l *Ledger) Warn(ctx context.Context, w *Warning, decide func(count int64) bool) (int64, bool, error) {
	if w.UserID == 0 || w.GroupID == 0 {
		return 0, false, fmt.Errorf("%w: warning needs a group and a user", chat.ErrInvalidInput)
	}
	var count int64
	var cleared bool
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(w).Error; err != nil {
			return err
		}
		if err := pairScope(tx.Model(&Warning{}), w.GroupID, w.UserID).Count(&count).Error; err != nil {
			return err
		}
		if decide != nil && decide(count) {
			if err := pairScope(tx, w.GroupID, w.UserID).Delete(&Warning{}).Error; err != nil {
				return err
			}
			cleared = true
		}
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("recording warning: %w", err)
	}
	return count, cleared, nil
}

func pairScope(tx *gorm.DB, group chat.GroupID, user chat.UserID) *gorm.DB {
	return tx.Where("group_id = ? AND user_id = ?", group, user)
}

func (l *Ledger) CountWarnings(ctx context.Context, group chat.GroupID, user chat.UserID) (int64, error) {
	var count int64
	if err := pairScope(l.db.WithContext(ctx).Model(&Warning{}), group, user).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Warnings for the pair, oldest first.
func (l *Ledger) ListWarnings(ctx context.Context, group chat.GroupID, user chat.UserID) ([]Warning, error) {
	var out []Warning
	if err := pairScope(l.db.WithContext(ctx), group, user).Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Removes every warning for the pair. Returns how many were removed.
func (l *Ledger) ClearWarnings(ctx context.Context, group chat.GroupID, user chat.UserID) (int64, error) {
	res := pairScope(l.db.WithContext(ctx), group, user).Delete(&Warning{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// Users in the group with the most outstanding warnings, highest first. Ties are broken by user id.
func (l *Ledger) TopWarned(ctx context.Context, group chat.GroupID, n int) ([]WarnCount, error) {
	var out []WarnCount
	err := l.db.WithContext(ctx).Model(&Warning{}).
		Select("user_id, COUNT(*) AS count").
		Where("group_id = ?", group).
		Group("user_id").
		Order("count DESC, user_id ASC").
		Limit(n).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Appends an entry to the moderation log.
func (l *Ledger) RecordAction(ctx context.Context, a *ModerationAction) error {
	if err := l.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("recording moderation action: %w", err)
	}
	return nil
}

// Most recent moderation actions in a group, newest first. A zero user matches every user.
func (l *Ledger) ListActions(ctx context.Context, group chat.GroupID, user chat.UserID, limit int) ([]ModerationAction, error) {
	q := l.db.WithContext(ctx).Where("group_id = ?", group)
	if user != 0 {
		q = q.Where("user_id = ?", user)
	}
	var out []ModerationAction
	if err := q.Order("id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
