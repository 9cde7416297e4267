package console

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nimasrn/intake-gateway/internal/model"
	"github.com/nimasrn/intake-gateway/pkg/logger"
)

const PageSize = 25

var (
	ErrActionBusy  = errors.New("another action is in progress")
	ErrNoSelection = errors.New("no submissions selected")
	ErrNotSignedIn = errors.New("not signed in")
)

const (
	ActionMarkRead = "mark-read"
	ActionDelete   = "delete"
)

// API is the part of the admin HTTP surface the console drives.
type API interface {
	List(ctx context.Context, token string, q ListQuery) (*model.SubmissionPage, error)
	MarkRead(ctx context.Context, token string, ids []string) (int64, error)
	Delete(ctx context.Context, token string, ids []string) (int64, error)
}

// Console is the operator's view of the inbox. All exported methods are
// safe for concurrent use; network calls run without holding the lock.
type Console struct {
	mu      sync.Mutex
	api     API
	session *Session
	now     func() time.Time

	state    State
	rows     []*model.Submission
	total    int64
	page     int
	status   model.SubmissionStatus
	source   string
	query    string
	selected map[string]struct{}
	busy     string
}

func New(api API, session *Session) *Console {
	return &Console{
		api:      api,
		session:  session,
		now:      time.Now,
		page:     1,
		status:   model.SubmissionStatusAll,
		selected: make(map[string]struct{}),
	}
}

func (c *Console) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Login validates the shape of token and loads the first page with it.
// The token is persisted only once the server has accepted it.
func (c *Console) Login(ctx context.Context, token string) error {
	if err := c.session.Use(token); err != nil {
		return err
	}
	if err := c.transition(Event{Type: EventTokenEntered, Token: token}); err != nil {
		return err
	}
	return c.Load(ctx, 1)
}

// Resume enters the authenticated phase with the stored token, if any.
func (c *Console) Resume() error {
	tok := c.session.Token()
	if !ValidToken(tok) {
		return ErrNotSignedIn
	}
	return c.transition(Event{Type: EventTokenEntered, Token: tok})
}

func (c *Console) SetStatus(s model.SubmissionStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Console) SetSource(source string) {
	c.mu.Lock()
	c.source = strings.TrimSpace(source)
	c.mu.Unlock()
}

// Load replaces the current rows with the given 1-based page.
func (c *Console) Load(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}

	c.mu.Lock()
	if err := c.reduceLocked(Event{Type: EventLoad}); err != nil {
		c.mu.Unlock()
		return err
	}
	q := ListQuery{Limit: PageSize, Offset: (page - 1) * PageSize, Status: c.status, Source: c.source}
	c.mu.Unlock()

	res, err := c.api.List(ctx, c.session.Token(), q)

	c.mu.Lock()
	defer c.mu.Unlock()
	if errors.Is(err, ErrUnauthorized) {
		return c.unauthorizedLocked()
	}
	c.selected = make(map[string]struct{})
	if err != nil {
		c.rows = nil
		c.total = 0
		_ = c.reduceLocked(Event{Type: EventLoadFailed})
		return err
	}

	c.rows = res.Items
	c.total = res.Total
	c.page = page
	if err := c.session.Persist(); err != nil {
		logger.Warn("could not persist admin token", "error", err)
	}
	return c.reduceLocked(Event{Type: EventLoadSucceeded})
}

// MarkRead marks ids read on the server and stamps read_at locally on rows
// that had none. Stamped rows are replaced by copies; rows already handed
// out are never written.
func (c *Console) MarkRead(ctx context.Context, ids []string) (int64, error) {
	n, err := c.runAction(ctx, ActionMarkRead, ids, c.api.MarkRead)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	now := c.now().UTC()
	for i, r := range c.rows {
		if r.ReadAt == nil && slices.Contains(ids, r.ID) {
			cp := *r
			cp.ReadAt = &now
			c.rows[i] = &cp
		}
	}
	c.mu.Unlock()
	return n, nil
}

// Delete soft-deletes ids on the server and drops them from the page.
func (c *Console) Delete(ctx context.Context, ids []string) (int64, error) {
	n, err := c.runAction(ctx, ActionDelete, ids, c.api.Delete)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.rows = slices.DeleteFunc(c.rows, func(r *model.Submission) bool {
		return slices.Contains(ids, r.ID)
	})
	c.total = max(0, c.total-int64(len(ids)))
	c.mu.Unlock()
	return n, nil
}

func (c *Console) runAction(ctx context.Context, action string, ids []string, call func(context.Context, string, []string) (int64, error)) (int64, error) {
	c.mu.Lock()
	if c.busy != "" {
		c.mu.Unlock()
		return 0, ErrActionBusy
	}
	if len(ids) == 0 {
		c.mu.Unlock()
		return 0, ErrNoSelection
	}
	if err := c.reduceLocked(Event{Type: EventActionStarted}); err != nil {
		c.mu.Unlock()
		return 0, err
	}
	c.busy = action
	c.mu.Unlock()

	n, err := call(ctx, c.session.Token(), ids)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = ""
	if errors.Is(err, ErrUnauthorized) {
		return 0, c.unauthorizedLocked()
	}
	if err != nil {
		_ = c.reduceLocked(Event{Type: EventActionFailed})
		return 0, err
	}
	for _, id := range ids {
		delete(c.selected, id)
	}
	return n, c.reduceLocked(Event{Type: EventActionSucceeded})
}

// Busy names the action in flight, or "" when idle.
func (c *Console) Busy() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// SignOut forgets the token and everything loaded with it.
func (c *Console) SignOut() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.page = 1
	c.query = ""
	if c.state.Phase != PhaseUnauthenticated {
		_ = c.reduceLocked(Event{Type: EventSignOut})
	}
	return c.session.Discard()
}

func (c *Console) unauthorizedLocked() error {
	c.resetLocked()
	if err := c.session.Discard(); err != nil {
		logger.Warn("could not clear admin token", "error", err)
	}
	_ = c.reduceLocked(Event{Type: EventUnauthorized})
	return ErrUnauthorized
}

func (c *Console) resetLocked() {
	c.rows = nil
	c.total = 0
	c.busy = ""
	c.selected = make(map[string]struct{})
}

func (c *Console) transition(e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reduceLocked(e)
}

func (c *Console) reduceLocked(e Event) error {
	next, err := Reduce(c.state, e)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}
