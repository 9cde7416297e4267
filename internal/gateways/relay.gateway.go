package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nimasrn/intake-gateway/internal/model"
	"github.com/nimasrn/intake-gateway/pkg/logger"
	"github.com/nimasrn/intake-gateway/pkg/prom"
	"github.com/valyala/fasthttp"
)

var (
	ErrRelayNotConfigured = errors.New("email relay is not configured")
	ErrRelayCircuitOpen   = errors.New("email relay circuit is open")
	ErrRelayRejected      = errors.New("email relay rejected the submission")
)

type RelayState int32

const (
	StateHealthy RelayState = iota
	StateDegraded
	StateCircuitOpen
)

func (s RelayState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateCircuitOpen:
		return "circuit_open"
	}
	return "unknown"
}

// relayPayload is the FormSubmit ajax body: the visitor's values plus the
// underscore-prefixed control fields.
type relayPayload struct {
	Name     *string `json:"name,omitempty"`
	Email    string  `json:"email"`
	Phone    *string `json:"phone,omitempty"`
	Location *string `json:"location,omitempty"`
	Timeline *string `json:"timeline,omitempty"`
	Message  *string `json:"message,omitempty"`
	PagePath *string `json:"page_path,omitempty"`
	Source   string  `json:"source"`
	Subject  string  `json:"_subject"`
	Template string  `json:"_template"`
}

type RelayConfig struct {
	BaseURL          string
	Recipient        string
	Timeout          time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	MaxConns         int
	// Dial overrides the TCP dialer; tests plug an in-memory listener here.
	Dial fasthttp.DialFunc
}

// RelayClient posts submissions to a FormSubmit-compatible email relay.
// Each Notify is a single attempt; repeated failures open a circuit that
// fails fast until the cooldown passes. Latency and outcomes are recorded
// by the dispatcher; the client only publishes its breaker state.
type RelayClient struct {
	config           RelayConfig
	endpoint         string
	client           *fasthttp.Client
	consecutiveFails atomic.Int32
	state            atomic.Int32
	circuitOpenUntil atomic.Int64
}

func NewRelayClient(cfg RelayConfig) (*RelayClient, error) {
	if strings.TrimSpace(cfg.Recipient) == "" {
		return nil, ErrRelayNotConfigured
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("relay base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 64
	}

	c := &RelayClient{
		config:   cfg,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/ajax/" + url.PathEscape(cfg.Recipient),
		client: &fasthttp.Client{
			Name:                "intake-gateway",
			MaxConnsPerHost:     cfg.MaxConns,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
			Dial:                cfg.Dial,
		},
	}
	c.setState(StateHealthy)

	logger.Info("email relay client initialized", "endpoint", cfg.BaseURL, "timeout", cfg.Timeout)
	return c, nil
}

func (c *RelayClient) State() RelayState {
	return RelayState(c.state.Load())
}

// ConsecutiveFailures is the number of failed attempts since the last success.
func (c *RelayClient) ConsecutiveFailures() int {
	return int(c.consecutiveFails.Load())
}

func (c *RelayClient) setState(s RelayState) {
	c.state.Store(int32(s))
	prom.SetRelayState(int(s))
}

// Available reports whether a request may be attempted now. An expired
// circuit moves to degraded so the next call is a trial request.
func (c *RelayClient) Available() bool {
	if c.State() != StateCircuitOpen {
		return true
	}
	if time.Now().UnixNano() >= c.circuitOpenUntil.Load() {
		if c.state.CompareAndSwap(int32(StateCircuitOpen), int32(StateDegraded)) {
			prom.SetRelayState(int(StateDegraded))
		}
		return true
	}
	return false
}

// Notify sends s to the relay. Any non-2xx response or a body reporting
// success=false is an error.
func (c *RelayClient) Notify(ctx context.Context, s *model.Submission, r model.Routing) error {
	if !c.Available() {
		return ErrRelayCircuitOpen
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(relayPayload{
		Name:     s.Name,
		Email:    s.Email,
		Phone:    s.Phone,
		Location: s.Location,
		Timeline: s.Timeline,
		Message:  s.Message,
		PagePath: s.PagePath,
		Source:   r.Source,
		Subject:  r.Subject,
		Template: r.Template,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal relay payload: %w", err)
	}

	start := time.Now()
	err = c.doRequest(ctx, body)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		c.checkCircuitBreaker(c.consecutiveFails.Add(1))
		return err
	}

	c.consecutiveFails.Store(0)
	c.setState(StateHealthy)
	logger.Debug("submission relayed", "id", s.ID, "latency_ms", latency)
	return nil
}

func (c *RelayClient) doRequest(ctx context.Context, body []byte) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBodyRaw(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("relay request failed: %w", err)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		text := strings.TrimSpace(string(resp.Body()))
		if text == "" {
			text = fmt.Sprintf("status %d", status)
		}
		return fmt.Errorf("%w: %s", ErrRelayRejected, text)
	}

	if rejected, msg := bodyReportsFailure(resp.Body()); rejected {
		return fmt.Errorf("%w: %s", ErrRelayRejected, msg)
	}
	return nil
}

// bodyReportsFailure inspects a 2xx JSON reply. FormSubmit answers with
// "success" as either a string or a bool.
func bodyReportsFailure(body []byte) (bool, string) {
	var reply map[string]any
	if len(body) == 0 || json.Unmarshal(body, &reply) != nil {
		return false, ""
	}
	msg, _ := reply["message"].(string)
	switch v := reply["success"].(type) {
	case bool:
		return !v, msg
	case string:
		return strings.EqualFold(v, "false"), msg
	}
	return false, ""
}

func (c *RelayClient) checkCircuitBreaker(consecutiveFails int32) {
	if consecutiveFails < int32(c.config.BreakerThreshold) {
		c.setState(StateDegraded)
		return
	}
	c.circuitOpenUntil.Store(time.Now().Add(c.config.BreakerCooldown).UnixNano())
	c.setState(StateCircuitOpen)
	prom.IncRelayBreakerOpened()
	logger.Warn("email relay circuit opened", "consecutive_fails", consecutiveFails, "cooldown", c.config.BreakerCooldown)
}

func (c *RelayClient) Close() {
	c.client.CloseIdleConnections()
}
