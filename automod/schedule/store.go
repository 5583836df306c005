package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Durable backing for the pending set. Removed posts must not be forgotten entirely: MaxID reports the highest id ever inserted, so ids are not reused after a restart.
type PostStore interface {
	Insert(ctx context.Context, p *ScheduledPost) error
	Remove(ctx context.Context, id int64) error
	LoadPending(ctx context.Context) ([]ScheduledPost, error)
	// highest id ever inserted, and whether any post was ever inserted
	MaxID(ctx context.Context) (int64, bool, error)
}

type postRow struct {
	gorm.Model
	PostID      int64 `gorm:"uniqueIndex"`
	Destination string
	Body        string
	FireAt      time.Time `gorm:"index"`
}

func (postRow) TableName() string {
	return "scheduled_posts"
}

// PostStore on a SQL database. Dispatched and cancelled posts are soft-deleted.
type GormPostStore struct {
	db *gorm.DB
}

var _ PostStore = (*GormPostStore)(nil)

func NewGormPostStore(db *gorm.DB) *GormPostStore {
	return &GormPostStore{db: db}
}

func (s *GormPostStore) Migrate() error {
	if err := s.db.AutoMigrate(&postRow{}); err != nil {
		return fmt.Errorf("failed to auto-migrate scheduled posts: %w", err)
	}
	return nil
}

func (s *GormPostStore) Insert(ctx context.Context, p *ScheduledPost) error {
	row := postRow{
		PostID:      p.ID,
		Destination: p.Destination,
		Body:        p.Body,
		FireAt:      p.FireAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormPostStore) Remove(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Where("post_id = ?", id).Delete(&postRow{}).Error
}

func (s *GormPostStore) LoadPending(ctx context.Context) ([]ScheduledPost, error) {
	var rows []postRow
	if err := s.db.WithContext(ctx).Order("post_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ScheduledPost, 0, len(rows))
	for _, r := range rows {
		out = append(out, ScheduledPost{
			ID:          r.PostID,
			Destination: r.Destination,
			Body:        r.Body,
			FireAt:      r.FireAt,
		})
	}
	return out, nil
}

func (s *GormPostStore) MaxID(ctx context.Context) (int64, bool, error) {
	var row postRow
	err := s.db.WithContext(ctx).Unscoped().Order("post_id DESC").Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return row.PostID, true, nil
}
