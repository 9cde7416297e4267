package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nimasrn/intake-gateway/internal/model"
	"github.com/valyala/fasthttp"
)

var ErrUnauthorized = errors.New("unauthorized")

// APIError carries the server's error string unchanged.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

type ListQuery struct {
	Limit  int
	Offset int
	Status model.SubmissionStatus
	Source string
}

type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// Dial overrides the TCP dialer; tests plug an in-memory listener here.
	Dial fasthttp.DialFunc
}

// Client talks to the admin endpoints of the gateway.
type Client struct {
	baseURL string
	timeout time.Duration
	client  *fasthttp.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		client: &fasthttp.Client{
			Name:         "intake-inbox",
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
			Dial:         cfg.Dial,
		},
	}
}

type listReply struct {
	OK     bool                `json:"ok"`
	Error  string              `json:"error"`
	Items  []*model.Submission `json:"items"`
	Total  int64               `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

type mutationReply struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Updated int64  `json:"updated"`
	Deleted int64  `json:"deleted"`
}

func (c *Client) List(ctx context.Context, token string, q ListQuery) (*model.SubmissionPage, error) {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("offset", strconv.Itoa(q.Offset))
	if q.Status != "" && q.Status != model.SubmissionStatusAll {
		v.Set("status", string(q.Status))
	}
	if q.Source != "" {
		v.Set("source", q.Source)
	}

	var reply listReply
	if err := c.do(ctx, fasthttp.MethodGet, "/api/admin/submissions?"+v.Encode(), token, nil, &reply, &reply.OK, &reply.Error, "Could not load submissions."); err != nil {
		return nil, err
	}
	if reply.Items == nil {
		reply.Items = []*model.Submission{}
	}
	return &model.SubmissionPage{Items: reply.Items, Total: reply.Total, Limit: reply.Limit, Offset: reply.Offset}, nil
}

func (c *Client) MarkRead(ctx context.Context, token string, ids []string) (int64, error) {
	var reply mutationReply
	if err := c.post(ctx, "/api/admin/mark-read", token, ids, &reply); err != nil {
		return 0, err
	}
	return reply.Updated, nil
}

func (c *Client) Delete(ctx context.Context, token string, ids []string) (int64, error) {
	var reply mutationReply
	if err := c.post(ctx, "/api/admin/delete", token, ids, &reply); err != nil {
		return 0, err
	}
	return reply.Deleted, nil
}

func (c *Client) post(ctx context.Context, path, token string, ids []string, reply *mutationReply) error {
	body, err := json.Marshal(model.IDsRequest{IDs: ids})
	if err != nil {
		return err
	}
	return c.do(ctx, fasthttp.MethodPost, path, token, body, reply, &reply.OK, &reply.Error, "Request failed.")
}

// do sends one request and decodes the envelope into out. ok and msg point
// into out so the envelope fields can be checked after decoding.
func (c *Client) do(ctx context.Context, method, path, token string, body []byte, out any, ok *bool, msg *string, fallback string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(body)
	}

	deadline, has := ctx.Deadline()
	if !has {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("admin request failed: %w", err)
	}

	if resp.StatusCode() == fasthttp.StatusUnauthorized {
		return ErrUnauthorized
	}

	decodeErr := json.Unmarshal(resp.Body(), out)
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 || decodeErr != nil || !*ok {
		m := *msg
		if m == "" {
			m = fallback
		}
		return &APIError{Status: resp.StatusCode(), Message: m}
	}
	return nil
}
