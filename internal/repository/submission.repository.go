package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/intake-gateway/internal/model"
	"github.com/nimasrn/intake-gateway/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrDuplicateID  = errors.New("submission id already exists")
	ErrMissingEmail = errors.New("submission email is empty")
)

const maxListLimit = 200

type SubmissionRepository struct {
	*pg.DB
}

func NewSubmissionRepository(db *pg.DB) *SubmissionRepository {
	return &SubmissionRepository{
		db,
	}
}

func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission) (*model.Submission, error) {
	if s.Email == "" {
		return nil, ErrMissingEmail
	}
	entity := toSubmissionEntity(s)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateID
		}
		return nil, err
	}

	return toSubmissionModel(entity), nil
}

// List returns one page of submissions matching f, newest first, and the
// total count of matching rows.
func (r *SubmissionRepository) List(ctx context.Context, f model.SubmissionFilter) ([]*model.Submission, int64, error) {
	q := applySubmissionFilter(r.Read(ctx).Model(&SubmissionEntity{}), f)

	// Count before pagination
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit < 1 {
		limit = 1
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*SubmissionEntity
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toSubmissionModels(entities), total, nil
}

// applySubmissionFilter appends one fixed predicate per active filter.
// Values only ever travel as bind parameters.
func applySubmissionFilter(q *gorm.DB, f model.SubmissionFilter) *gorm.DB {
	if !f.IncludeDeleted {
		q = q.Where("deleted_at IS NULL")
	}
	switch f.Status {
	case model.SubmissionStatusUnread:
		q = q.Where("read_at IS NULL")
	case model.SubmissionStatusRead:
		q = q.Where("read_at IS NOT NULL")
	}
	if f.Source != nil && *f.Source != "" {
		q = q.Where("source = ?", *f.Source)
	}
	return q
}

// MarkRead sets read_at on live, unread rows among ids and reports how many
// rows changed.
func (r *SubmissionRepository) MarkRead(ctx context.Context, ids []string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.Write(ctx).Model(&SubmissionEntity{}).
		Where("id IN ?", ids).
		Where("deleted_at IS NULL").
		Where("read_at IS NULL").
		Update("read_at", now.UTC())
	return res.RowsAffected, res.Error
}

// SoftDelete sets deleted_at on live rows among ids and reports how many
// rows changed.
func (r *SubmissionRepository) SoftDelete(ctx context.Context, ids []string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.Write(ctx).Model(&SubmissionEntity{}).
		Where("id IN ?", ids).
		Where("deleted_at IS NULL").
		Update("deleted_at", now.UTC())
	return res.RowsAffected, res.Error
}
