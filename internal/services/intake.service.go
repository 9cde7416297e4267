package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/intake-gateway/internal/model"
	"github.com/nimasrn/intake-gateway/pkg/prom"
)

type IntakeRequest struct {
	Body      []byte
	UserAgent string
}

type IntakeResult struct {
	ID      string `json:"id"`
	Emailed bool   `json:"emailed"`
	Saved   bool   `json:"saved"`
}

type IntakeService struct {
	dispatcher *Dispatcher
	newID      func() string
	now        func() time.Time
}

type IntakeOption func(*IntakeService)

func WithIDGenerator(fn func() string) IntakeOption {
	return func(s *IntakeService) { s.newID = fn }
}

func WithClock(fn func() time.Time) IntakeOption {
	return func(s *IntakeService) { s.now = fn }
}

func NewIntakeService(dispatcher *Dispatcher, opts ...IntakeOption) *IntakeService {
	s := &IntakeService{
		dispatcher: dispatcher,
		newID:      uuid.NewString,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit validates the raw form body, stamps identity and time, and
// dispatches it. Validation errors come back untouched so callers can map
// them to 400.
func (s *IntakeService) Submit(ctx context.Context, req IntakeRequest) (*IntakeResult, error) {
	payload, err := model.DecodeIntake(req.Body)
	if err != nil {
		prom.IncIntakeRejected("invalid_json")
		return nil, err
	}

	sub, err := payload.Normalize(req.UserAgent)
	if err != nil {
		prom.IncIntakeRejected("email")
		return nil, err
	}
	sub.ID = s.newID()
	sub.CreatedAt = s.now().UTC()

	res, err := s.dispatcher.Dispatch(ctx, sub, model.RoutingFor(sub))
	if err != nil {
		return nil, err
	}
	return &IntakeResult{ID: sub.ID, Emailed: res.Emailed, Saved: res.Saved}, nil
}

// IsValidationError reports whether err is a caller mistake rather than a
// dependency failure.
func IsValidationError(err error) bool {
	return errors.Is(err, model.ErrInvalidJSON) || errors.Is(err, model.ErrEmailRequired)
}
