package repository

import (
	"time"

	"github.com/nimasrn/intake-gateway/internal/model"
)

type SubmissionEntity struct {
	ID        string     `db:"id"         gorm:"primaryKey;column:id;type:uuid"`
	CreatedAt time.Time  `db:"created_at" gorm:"column:created_at;not null;index"`
	Source    string     `db:"source"     gorm:"column:source;size:80;not null;default:unknown;index"`
	Subject   *string    `db:"subject"    gorm:"column:subject;size:160"`
	Name      *string    `db:"name"       gorm:"column:name;size:120"`
	Email     string     `db:"email"      gorm:"column:email;not null"`
	Phone     *string    `db:"phone"      gorm:"column:phone;size:80"`
	Location  *string    `db:"location"   gorm:"column:location;size:160"`
	Timeline  *string    `db:"timeline"   gorm:"column:timeline;size:160"`
	Message   *string    `db:"message"    gorm:"column:message;type:text"`
	PagePath  *string    `db:"page_path"  gorm:"column:page_path;size:240"`
	UserAgent string     `db:"user_agent" gorm:"column:user_agent;size:240;not null;default:''"`
	ReadAt    *time.Time `db:"read_at"    gorm:"column:read_at"`
	DeletedAt *time.Time `db:"deleted_at" gorm:"column:deleted_at;index"`
}

func (SubmissionEntity) TableName() string {
	return "submissions"
}

func toSubmissionEntity(s *model.Submission) *SubmissionEntity {
	if s == nil {
		return nil
	}
	return &SubmissionEntity{
		ID:        s.ID,
		CreatedAt: s.CreatedAt.UTC(),
		Source:    s.Source,
		Subject:   s.Subject,
		Name:      s.Name,
		Email:     s.Email,
		Phone:     s.Phone,
		Location:  s.Location,
		Timeline:  s.Timeline,
		Message:   s.Message,
		PagePath:  s.PagePath,
		UserAgent: s.UserAgent,
		ReadAt:    s.ReadAt,
		DeletedAt: s.DeletedAt,
	}
}

func toSubmissionModel(e *SubmissionEntity) *model.Submission {
	if e == nil {
		return nil
	}
	return &model.Submission{
		ID:        e.ID,
		CreatedAt: e.CreatedAt.UTC(),
		Source:    e.Source,
		Subject:   e.Subject,
		Name:      e.Name,
		Email:     e.Email,
		Phone:     e.Phone,
		Location:  e.Location,
		Timeline:  e.Timeline,
		Message:   e.Message,
		PagePath:  e.PagePath,
		UserAgent: e.UserAgent,
		ReadAt:    utcPtr(e.ReadAt),
		DeletedAt: utcPtr(e.DeletedAt),
	}
}

func toSubmissionModels(entities []*SubmissionEntity) []*model.Submission {
	models := make([]*model.Submission, len(entities))
	for i, e := range entities {
		models[i] = toSubmissionModel(e)
	}
	return models
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
