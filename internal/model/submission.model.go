package model

import (
	"strings"
	"time"
)

// SubmissionStatus filters admin listings by read state.
type SubmissionStatus string

const (
	SubmissionStatusAll    SubmissionStatus = "all"
	SubmissionStatusUnread SubmissionStatus = "unread"
	SubmissionStatusRead   SubmissionStatus = "read"
)

// ParseSubmissionStatus maps a query value to a status. Unknown values
// fall back to all.
func ParseSubmissionStatus(s string) SubmissionStatus {
	switch SubmissionStatus(strings.ToLower(strings.TrimSpace(s))) {
	case SubmissionStatusUnread:
		return SubmissionStatusUnread
	case SubmissionStatusRead:
		return SubmissionStatusRead
	}
	return SubmissionStatusAll
}

// Submission is one contact form entry. ReadAt and DeletedAt are set at
// most once and never cleared.
type Submission struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Source    string     `json:"source"`
	Subject   *string    `json:"subject"`
	Name      *string    `json:"name"`
	Email     string     `json:"email"`
	Phone     *string    `json:"phone"`
	Location  *string    `json:"location"`
	Timeline  *string    `json:"timeline"`
	Message   *string    `json:"message"`
	PagePath  *string    `json:"page_path"`
	UserAgent string     `json:"user_agent,omitempty"`
	ReadAt    *time.Time `json:"read_at"`
	DeletedAt *time.Time `json:"deleted_at"`
}

func (s *Submission) IsRead() bool    { return s.ReadAt != nil }
func (s *Submission) IsDeleted() bool { return s.DeletedAt != nil }

// Routing carries the metadata the notification relay needs besides the
// submission values.
type Routing struct {
	Subject  string
	Source   string
	Template string
}

const defaultRelayTemplate = "table"

// RoutingFor derives relay routing from a submission.
func RoutingFor(s *Submission) Routing {
	subject := "New submission"
	if s.Subject != nil && *s.Subject != "" {
		subject = *s.Subject
	}
	return Routing{Subject: subject, Source: s.Source, Template: defaultRelayTemplate}
}

// SubmissionFilter controls admin List queries.
type SubmissionFilter struct {
	Status         SubmissionStatus
	Source         *string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// SubmissionPage is one page of a filtered listing.
type SubmissionPage struct {
	Items  []*Submission `json:"items"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// IDsRequest is the body of the admin mutation endpoints.
type IDsRequest struct {
	IDs []string `json:"ids"`
}
