package fixtures

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/intake-gateway/internal/repository"
)

const AdminToken = "e2e-admin-token-0123456789"

const Recipient = "inbox@example.com"

// IntakeBody is a contact form payload as the browser would send it.
func IntakeBody(email string, extra map[string]any) []byte {
	body := map[string]any{
		"email":    email,
		"name":     "Test Visitor",
		"message":  "Hello from the contact form",
		"source":   "contact_form",
		"subject":  "New website enquiry",
		"pagePath": "/contact",
	}
	for k, v := range extra {
		body[k] = v
	}
	b, _ := json.Marshal(body)
	return b
}

func LongMessage(n int) string {
	return strings.Repeat("x", n)
}

// Submissions returns n rows created one minute apart, newest first.
func Submissions(n int, source string, base time.Time) []*repository.SubmissionEntity {
	out := make([]*repository.SubmissionEntity, 0, n)
	for i := 0; i < n; i++ {
		name := "Visitor"
		out = append(out, &repository.SubmissionEntity{
			ID:        uuid.NewString(),
			CreatedAt: base.Add(-time.Duration(i) * time.Minute).UTC(),
			Source:    source,
			Name:      &name,
			Email:     "visitor" + string(rune('a'+i%26)) + "@example.com",
			UserAgent: "fixtures",
		})
	}
	return out
}
