package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/intake-gateway/internal/model"
	"github.com/nimasrn/intake-gateway/pkg/logger"
	"github.com/nimasrn/intake-gateway/pkg/prom"
)

const (
	MaxListLimit     = 200
	DefaultListLimit = 25
	MaxMutationIDs   = 500
)

var (
	ErrNoIDs      = errors.New("No ids provided")
	ErrTooManyIDs = errors.New("Too many ids")
)

type SubmissionRepository interface {
	List(ctx context.Context, f model.SubmissionFilter) ([]*model.Submission, int64, error)
	MarkRead(ctx context.Context, ids []string, now time.Time) (int64, error)
	SoftDelete(ctx context.Context, ids []string, now time.Time) (int64, error)
}

// ListParams are the raw admin list query values.
type ListParams struct {
	Limit          string
	Offset         string
	Status         string
	Source         string
	IncludeDeleted string
}

type AdminConfig struct {
	DefaultLimit    int
	ExposeUserAgent bool
}

type AdminService struct {
	repo            SubmissionRepository
	defaultLimit    int
	exposeUserAgent bool
	now             func() time.Time
}

func NewAdminService(repo SubmissionRepository, cfg AdminConfig) *AdminService {
	def := cfg.DefaultLimit
	if def < 1 || def > MaxListLimit {
		def = DefaultListLimit
	}
	return &AdminService{
		repo:            repo,
		defaultLimit:    def,
		exposeUserAgent: cfg.ExposeUserAgent,
		now:             time.Now,
	}
}

// Filter turns raw query values into a bounded filter. Malformed numbers
// are clamped, never rejected.
func (s *AdminService) Filter(p ListParams) model.SubmissionFilter {
	f := model.SubmissionFilter{
		Status:         model.ParseSubmissionStatus(p.Status),
		IncludeDeleted: truthy(p.IncludeDeleted),
		Limit:          s.defaultLimit,
	}
	if v := strings.TrimSpace(p.Limit); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = clamp(n, 1, MaxListLimit)
		}
	}
	if n, err := strconv.Atoi(strings.TrimSpace(p.Offset)); err == nil && n > 0 {
		f.Offset = n
	}
	if src := strings.TrimSpace(p.Source); src != "" {
		f.Source = &src
	}
	return f
}

func (s *AdminService) List(ctx context.Context, p ListParams) (*model.SubmissionPage, error) {
	f := s.Filter(p)
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		logger.Error("admin list failed", "error", err)
		return nil, err
	}
	if items == nil {
		items = []*model.Submission{}
	}
	if !s.exposeUserAgent {
		for _, it := range items {
			it.UserAgent = ""
		}
	}
	return &model.SubmissionPage{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func (s *AdminService) MarkRead(ctx context.Context, ids []string) (int64, error) {
	ids, err := normalizeIDs(ids)
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	n, err := s.repo.MarkRead(ctx, ids, s.now())
	if err != nil {
		logger.Error("admin mark-read failed", "error", err, "ids", len(ids))
		return 0, err
	}
	prom.AddAdminMutatedRows("mark_read", n)
	logger.Info("submissions marked read", "requested", len(ids), "updated", n)
	return n, nil
}

func (s *AdminService) Delete(ctx context.Context, ids []string) (int64, error) {
	ids, err := normalizeIDs(ids)
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	n, err := s.repo.SoftDelete(ctx, ids, s.now())
	if err != nil {
		logger.Error("admin delete failed", "error", err, "ids", len(ids))
		return 0, err
	}
	prom.AddAdminMutatedRows("delete", n)
	logger.Info("submissions deleted", "requested", len(ids), "deleted", n)
	return n, nil
}

// normalizeIDs trims, drops blanks and de-duplicates while keeping order.
// Entries that are not UUIDs cannot match a row and are dropped, so the
// result may be empty without an error.
func normalizeIDs(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	given := 0
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		given++
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		id = parsed.String()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if given == 0 {
		return nil, ErrNoIDs
	}
	if len(out) > MaxMutationIDs {
		return nil, ErrTooManyIDs
	}
	return out, nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
