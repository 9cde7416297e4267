package model

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidJSON   = errors.New("Invalid JSON")
	ErrEmailRequired = errors.New("Email is required")
)

// Maximum lengths in runes.
const (
	MaxSourceLen    = 80
	MaxSubjectLen   = 160
	MaxNameLen      = 120
	MaxPhoneLen     = 80
	MaxLocationLen  = 160
	MaxTimelineLen  = 160
	MaxMessageLen   = 4000
	MaxPagePathLen  = 240
	MaxUserAgentLen = 240

	DefaultSource = "unknown"
)

// IntakePayload is the untrusted contact form body. Fields that were absent
// or not JSON strings are nil.
type IntakePayload struct {
	Email    *string
	Source   *string
	Subject  *string
	Name     *string
	Phone    *string
	Location *string
	Timeline *string
	Message  *string
	PagePath *string
}

// DecodeIntake parses body permissively: it must be a JSON object, but
// any field holding a non-string value is treated as absent.
func DecodeIntake(body []byte) (IntakePayload, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return IntakePayload{}, ErrInvalidJSON
	}
	p := IntakePayload{
		Email:    stringField(raw, "email"),
		Source:   stringField(raw, "source"),
		Subject:  stringField(raw, "subject"),
		Name:     stringField(raw, "name"),
		Phone:    stringField(raw, "phone"),
		Location: stringField(raw, "location"),
		Timeline: stringField(raw, "timeline"),
		Message:  stringField(raw, "message"),
		PagePath: stringField(raw, "pagePath"),
	}
	if p.PagePath == nil {
		p.PagePath = stringField(raw, "page_path")
	}
	return p, nil
}

func stringField(raw map[string]any, key string) *string {
	s, ok := raw[key].(string)
	if !ok {
		return nil
	}
	return &s
}

// Normalize validates the email contract and returns a Submission with
// every string trimmed and truncated. ID and CreatedAt are left for the
// caller to stamp.
func (p IntakePayload) Normalize(userAgent string) (*Submission, error) {
	email := ""
	if p.Email != nil {
		email = strings.TrimSpace(*p.Email)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrEmailRequired
	}

	source := DefaultSource
	if v := optional(p.Source, MaxSourceLen); v != nil {
		source = *v
	}

	return &Submission{
		Source:    source,
		Subject:   optional(p.Subject, MaxSubjectLen),
		Name:      optional(p.Name, MaxNameLen),
		Email:     email,
		Phone:     optional(p.Phone, MaxPhoneLen),
		Location:  optional(p.Location, MaxLocationLen),
		Timeline:  optional(p.Timeline, MaxTimelineLen),
		Message:   optional(p.Message, MaxMessageLen),
		PagePath:  optional(p.PagePath, MaxPagePathLen),
		UserAgent: Truncate(userAgent, MaxUserAgentLen),
	}, nil
}

func optional(v *string, max int) *string {
	if v == nil {
		return nil
	}
	s := Truncate(strings.TrimSpace(*v), max)
	if s == "" {
		return nil
	}
	return &s
}

// Truncate cuts s to at most max runes without splitting a UTF-8 sequence.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
