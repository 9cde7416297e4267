package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/intake-gateway/internal/model"
	"github.com/nimasrn/intake-gateway/pkg/logger"
	"github.com/nimasrn/intake-gateway/pkg/prom"
)

const (
	DestinationRelay = "relay"
	DestinationStore = "store"
)

var (
	ErrDeliveryFailed  = errors.New("submission could not be delivered")
	ErrNotifierMissing = errors.New("no notifier configured")
)

type Notifier interface {
	Notify(ctx context.Context, s *model.Submission, r model.Routing) error
}

type SubmissionWriter interface {
	Create(ctx context.Context, s *model.Submission) (*model.Submission, error)
}

// DeliveryError is returned when every destination failed. It matches
// ErrDeliveryFailed and both underlying causes with errors.Is.
type DeliveryError struct {
	Relay error
	Store error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: relay: %v; store: %v", ErrDeliveryFailed, e.Relay, e.Store)
}

func (e *DeliveryError) Unwrap() []error {
	return []error{ErrDeliveryFailed, e.Relay, e.Store}
}

// Cause is the preferred single error: the relay's when present.
func (e *DeliveryError) Cause() error {
	if e.Relay != nil {
		return e.Relay
	}
	return e.Store
}

type DispatchResult struct {
	Emailed bool
	Saved   bool
}

type DispatcherConfig struct {
	RelayTimeout time.Duration
	StoreTimeout time.Duration
}

// Dispatcher delivers one submission to the email relay and the store at
// the same time. The call succeeds when at least one destination accepts it.
type Dispatcher struct {
	notifier     Notifier
	store        SubmissionWriter
	relayTimeout time.Duration
	storeTimeout time.Duration
}

func NewDispatcher(notifier Notifier, store SubmissionWriter, cfg DispatcherConfig) *Dispatcher {
	if cfg.RelayTimeout <= 0 {
		cfg.RelayTimeout = 8 * time.Second
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &Dispatcher{
		notifier:     notifier,
		store:        store,
		relayTimeout: cfg.RelayTimeout,
		storeTimeout: cfg.StoreTimeout,
	}
}

// Dispatch waits for both destinations. Neither attempt is cancelled by the
// other's outcome, and the caller going away does not abort them either;
// only the per-destination timeouts bound them.
func (d *Dispatcher) Dispatch(ctx context.Context, s *model.Submission, r model.Routing) (DispatchResult, error) {
	base := context.WithoutCancel(ctx)

	var (
		wg                 sync.WaitGroup
		relayErr, storeErr error
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		relayErr = d.notify(base, s, r)
	}()

	go func() {
		defer wg.Done()
		storeErr = d.save(base, s)
	}()

	wg.Wait()

	res := DispatchResult{Emailed: relayErr == nil, Saved: storeErr == nil}

	switch {
	case res.Emailed && res.Saved:
	case res.Emailed:
		logger.Warn("intake partially delivered", "id", s.ID, "failed_destination", DestinationStore, "error", storeErr)
	case res.Saved:
		logger.Warn("intake partially delivered", "id", s.ID, "failed_destination", DestinationRelay, "error", relayErr)
	default:
		logger.Error("intake delivery failed", "id", s.ID, "relay_error", relayErr, "store_error", storeErr)
		return res, &DeliveryError{Relay: relayErr, Store: storeErr}
	}
	return res, nil
}

func (d *Dispatcher) notify(ctx context.Context, s *model.Submission, r model.Routing) (err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("relay panicked: %v", p)
		}
		prom.ObserveDispatch(DestinationRelay, err == nil, time.Since(start))
	}()

	if d.notifier == nil {
		return ErrNotifierMissing
	}
	ctx, cancel := context.WithTimeout(ctx, d.relayTimeout)
	defer cancel()
	return d.notifier.Notify(ctx, s, r)
}

func (d *Dispatcher) save(ctx context.Context, s *model.Submission) (err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("store panicked: %v", p)
		}
		prom.ObserveDispatch(DestinationStore, err == nil, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	defer cancel()
	_, err = d.store.Create(ctx, s)
	return err
}
