package e2e

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nimasrn/intake-gateway/internal/app"
	"github.com/nimasrn/intake-gateway/internal/config"
	"github.com/nimasrn/intake-gateway/internal/console"
	gateway "github.com/nimasrn/intake-gateway/internal/gateways"
	"github.com/nimasrn/intake-gateway/internal/repository"
	"github.com/nimasrn/intake-gateway/pkg/pg"
	"github.com/nimasrn/intake-gateway/pkg/redis"
	"github.com/nimasrn/intake-gateway/test/fixtures"
	"github.com/nimasrn/intake-gateway/test/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type fakeRelay struct {
	mu       sync.Mutex
	fail     bool
	received []map[string]any
}

func (f *fakeRelay) handle(ctx *fasthttp.RequestCtx) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		ctx.SetStatusCode(fasthttp.StatusBadGateway)
		ctx.SetBodyString(`{"success":"false","message":"upstream down"}`)
		return
	}
	var body map[string]any
	_ = json.Unmarshal(ctx.PostBody(), &body)
	f.received = append(f.received, body)
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString(`{"success":"true"}`)
}

func (f *fakeRelay) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeRelay) snapshot() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.received...)
}

type TestEnvironment struct {
	DB     *pg.DB
	Relay  *fakeRelay
	Dial   fasthttp.DialFunc
	client *fasthttp.Client
}

type envOptions struct {
	redis     redis.RedisAdapter
	rateLimit int64
}

func setupE2EEnvironment(t *testing.T, opts envOptions) *TestEnvironment {
	db := helpers.SetupTestDB(t)

	relay := &fakeRelay{}
	relayClient, err := gateway.NewRelayClient(gateway.RelayConfig{
		BaseURL:          "http://relay.test",
		Recipient:        fixtures.Recipient,
		Timeout:          2 * time.Second,
		BreakerThreshold: 100,
		Dial:             helpers.ServeInMemory(t, relay.handle),
	})
	require.NoError(t, err)
	t.Cleanup(relayClient.Close)

	cfg := &config.Config{
		AdminToken:        fixtures.AdminToken,
		IntakeRateLimit:   opts.rateLimit,
		IntakeRateWindow:  time.Minute,
		RelayTimeout:      2 * time.Second,
		StoreTimeout:      2 * time.Second,
		TrustedProxyCount: 1,
	}
	cfg.Defaults()

	s := app.NewServer(cfg, app.Deps{DB: db, Notifier: relayClient, Redis: opts.redis})
	dial := helpers.ServeInMemory(t, s.Handler())

	return &TestEnvironment{
		DB:     db,
		Relay:  relay,
		Dial:   dial,
		client: &fasthttp.Client{Dial: dial},
	}
}

func (e *TestEnvironment) do(t *testing.T, method, uri string, body []byte, headers map[string]string) (int, map[string]any, *fasthttp.ResponseHeader) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://gateway.test" + uri)
	req.Header.SetMethod(method)
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	require.NoError(t, e.client.DoTimeout(req, resp, 5*time.Second))

	var out map[string]any
	_ = json.Unmarshal(resp.Body(), &out)
	h := &fasthttp.ResponseHeader{}
	resp.Header.CopyTo(h)
	return resp.StatusCode(), out, h
}

func (e *TestEnvironment) intake(t *testing.T, body []byte) (int, map[string]any) {
	status, out, _ := e.do(t, "POST", "/api/intake", body, map[string]string{"User-Agent": "e2e-browser"})
	return status, out
}

func (e *TestEnvironment) console(t *testing.T) (*console.Console, *console.MemoryTokenStore) {
	store := &console.MemoryTokenStore{}
	session, err := console.NewSession(store)
	require.NoError(t, err)
	client := console.NewClient(console.ClientConfig{BaseURL: "http://gateway.test", Dial: e.Dial})
	return console.New(client, session), store
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func TestE2E_IntakeToInbox(t *testing.T) {
	env := setupE2EEnvironment(t, envOptions{})

	ids := make([]string, 0, 3)
	for _, email := range []string{"ana@example.com", "ben@example.com", "cy@example.com"} {
		status, out := env.intake(t, fixtures.IntakeBody(email, nil))
		require.Equal(t, 200, status, out)
		assert.Equal(t, true, out["ok"])
		assert.Equal(t, true, out["emailed"])
		assert.Equal(t, true, out["saved"])
		ids = append(ids, out["id"].(string))
		time.Sleep(5 * time.Millisecond)
	}
	assert.Len(t, map[string]bool{ids[0]: true, ids[1]: true, ids[2]: true}, 3, "ids are unique")
	assert.Equal(t, 3, len(env.Relay.snapshot()))
	assert.Equal(t, "New website enquiry", env.Relay.snapshot()[0]["_subject"])

	ctx := context.Background()
	c, store := env.console(t)
	require.NoError(t, c.Login(ctx, fixtures.AdminToken))
	stored, _ := store.Load()
	assert.Equal(t, fixtures.AdminToken, stored)

	rows := c.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, ids[2], rows[0].ID, "newest first")
	assert.Equal(t, "e2e-browser", rows[0].UserAgent)
	assert.Equal(t, 3, c.UnreadCount())

	n, err := c.MarkRead(ctx, []string{ids[0], ids[1]})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = c.MarkRead(ctx, []string{ids[0], ids[1]})
	require.NoError(t, err)
	assert.Zero(t, n, "mark-read is idempotent")

	c.Toggle(ids[0])
	c.Toggle(ids[1])
	c.Toggle(ids[2])
	var buf bytes.Buffer
	exported, err := c.Export(&buf, console.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, 2, exported)
	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(buf.String(), "\ufeff"))).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3)

	n, err = c.Delete(ctx, []string{ids[2]})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = c.Delete(ctx, []string{ids[2]})
	require.NoError(t, err)
	assert.Zero(t, n, "delete is idempotent")

	require.NoError(t, c.Load(ctx, 1))
	assert.Equal(t, int64(2), c.Total())

	status, out, _ := env.do(t, "GET", "/api/admin/submissions?includeDeleted=1", nil, bearer(fixtures.AdminToken))
	require.Equal(t, 200, status)
	assert.Equal(t, float64(3), out["total"])

	status, out, _ = env.do(t, "GET", "/api/admin/submissions?status=unread&includeDeleted=1", nil, bearer(fixtures.AdminToken))
	require.Equal(t, 200, status)
	assert.Equal(t, float64(1), out["total"])
}

func TestE2E_PartialDelivery(t *testing.T) {
	env := setupE2EEnvironment(t, envOptions{})
	env.Relay.setFail(true)

	status, out := env.intake(t, fixtures.IntakeBody("partial@example.com", nil))
	require.Equal(t, 200, status)
	assert.Equal(t, false, out["emailed"])
	assert.Equal(t, true, out["saved"])

	var count int64
	require.NoError(t, env.DB.Read(context.Background()).Model(&repository.SubmissionEntity{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestE2E_RelayOnly(t *testing.T) {
	env := setupE2EEnvironment(t, envOptions{})
	require.NoError(t, env.DB.Write(context.Background()).Migrator().DropTable(&repository.SubmissionEntity{}))

	status, out := env.intake(t, fixtures.IntakeBody("relay-only@example.com", nil))
	require.Equal(t, 200, status)
	assert.Equal(t, true, out["emailed"])
	assert.Equal(t, false, out["saved"])
}

func TestE2E_TotalFailureIsGeneric(t *testing.T) {
	env := setupE2EEnvironment(t, envOptions{})
	env.Relay.setFail(true)
	require.NoError(t, env.DB.Write(context.Background()).Migrator().DropTable(&repository.SubmissionEntity{}))

	status, out := env.intake(t, fixtures.IntakeBody("nobody@example.com", nil))
	require.Equal(t, 500, status)
	assert.Equal(t, false, out["ok"])
	msg := out["error"].(string)
	assert.NotContains(t, msg, "upstream")
	assert.NotContains(t, strings.ToLower(msg), "table")
}

func TestE2E_IntakeValidation(t *testing.T) {
	env := setupE2EEnvironment(t, envOptions{})

	status, out := env.intake(t, []byte(`{"email":`))
	assert.Equal(t, 400, status)
	assert.Equal(t, "Invalid JSON", out["error"])

	status, out = env.intake(t, []byte(`{"name":"No Email"}`))
	assert.Equal(t, 400, status)
	assert.Equal(t, "Email is required", out["error"])

	status, _ = env.intake(t, fixtures.IntakeBody("not-an-address", nil))
	assert.Equal(t, 400, status)

	var count int64
	require.NoError(t, env.DB.Read(context.Background()).Model(&repository.SubmissionEntity{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Zero(t, len(env.Relay.snapshot()))
}

func TestE2E_LongFieldsAreTruncated(t *testing.T) {
	env := setupE2EEnvironment(t, envOptions{})

	status, out := env.intake(t, fixtures.IntakeBody("long@example.com", map[string]any{
		"message": fixtures.LongMessage(5000),
		"phone":   12345,
	}))
	require.Equal(t, 200, status)

	var e repository.SubmissionEntity
	require.NoError(t, env.DB.Read(context.Background()).First(&e, "id = ?", out["id"]).Error)
	require.NotNil(t, e.Message)
	assert.Len(t, *e.Message, 4000)
	assert.Nil(t, e.Phone, "non-string fields are dropped")
}

func TestE2E_AdminRequiresToken(t *testing.T) {
	env := setupE2EEnvironment(t, envOptions{})
	status, _ := env.intake(t, fixtures.IntakeBody("secret@example.com", nil))
	require.Equal(t, 200, status)

	for _, h := range []map[string]string{nil, bearer("wrong-token-value"), {"Authorization": fixtures.AdminToken}} {
		status, out, hdr := env.do(t, "GET", "/api/admin/submissions", nil, h)
		assert.Equal(t, 401, status)
		assert.Nil(t, out["items"])
		assert.Equal(t, "no-store", string(hdr.Peek("Cache-Control")))
	}

	status, _, _ = env.do(t, "POST", "/api/admin/mark-read", []byte(`{"ids":["x"]}`), nil)
	assert.Equal(t, 401, status)

	c, store := env.console(t)
	require.NoError(t, store.Save("stale-token-value"))
	err := c.Login(context.Background(), "stale-token-value")
	assert.ErrorIs(t, err, console.ErrUnauthorized)
	assert.Equal(t, console.ReasonUnauthorized, c.State().Reason)
	stored, _ := store.Load()
	assert.Empty(t, stored)
}

func TestE2E_MutationInput(t *testing.T) {
	env := setupE2EEnvironment(t, envOptions{})

	status, out, _ := env.do(t, "POST", "/api/admin/delete", []byte(`{"ids":[]}`), bearer(fixtures.AdminToken))
	assert.Equal(t, 400, status)
	assert.Equal(t, "No ids provided", out["error"])

	status, out, _ = env.do(t, "POST", "/api/admin/mark-read", []byte(`nope`), bearer(fixtures.AdminToken))
	assert.Equal(t, 400, status)
	assert.Equal(t, "Invalid JSON", out["error"])

	status, out, _ = env.do(t, "POST", "/api/admin/mark-read", []byte(`{"ids":["nope"]}`), bearer(fixtures.AdminToken))
	assert.Equal(t, 200, status)
	assert.Equal(t, 0.0, out["updated"])
}

func TestE2E_Pagination(t *testing.T) {
	env := setupE2EEnvironment(t, envOptions{})
	for _, e := range fixtures.Submissions(30, "briefing_pdf", time.Now()) {
		helpers.CreateTestSubmission(t, env.DB, e)
	}

	status, out, _ := env.do(t, "GET", "/api/admin/submissions?limit=300&source=briefing_pdf", nil, bearer(fixtures.AdminToken))
	require.Equal(t, 200, status)
	assert.Equal(t, float64(200), out["limit"])
	assert.Len(t, out["items"], 30)

	status, out, _ = env.do(t, "GET", "/api/admin/submissions?limit=0", nil, bearer(fixtures.AdminToken))
	require.Equal(t, 200, status)
	assert.Equal(t, float64(1), out["limit"])
	assert.Len(t, out["items"], 1)
	assert.Equal(t, float64(30), out["total"])

	c, _ := env.console(t)
	require.NoError(t, c.Login(context.Background(), fixtures.AdminToken))
	assert.Equal(t, 2, c.PageCount())
	require.NoError(t, c.Load(context.Background(), 2))
	assert.Len(t, c.Rows(), 5)
	assert.False(t, c.CanNext())
}

func TestE2E_RateLimit(t *testing.T) {
	_, rdb := helpers.SetupTestRedis(t)
	env := setupE2EEnvironment(t, envOptions{redis: rdb, rateLimit: 2})
	xff := map[string]string{"X-Forwarded-For": "203.0.113.9"}

	for i := 0; i < 2; i++ {
		status, _, _ := env.do(t, "POST", "/api/intake", fixtures.IntakeBody("rl@example.com", nil), xff)
		require.Equal(t, 200, status)
	}
	status, out, hdr := env.do(t, "POST", "/api/intake", fixtures.IntakeBody("rl@example.com", nil), xff)
	assert.Equal(t, 429, status)
	assert.Equal(t, "Too many requests", out["error"])
	assert.NotEmpty(t, string(hdr.Peek("Retry-After")))

	status, _, _ = env.do(t, "POST", "/api/intake", fixtures.IntakeBody("rl@example.com", nil), map[string]string{"X-Forwarded-For": "1.1.1.1, 203.0.113.9"})
	assert.Equal(t, 429, status, "a client-written hop does not reset the budget")

	status, _, _ = env.do(t, "POST", "/api/intake", fixtures.IntakeBody("other@example.com", nil), map[string]string{"X-Forwarded-For": "198.51.100.7"})
	assert.Equal(t, 200, status)

	status, _, _ = env.do(t, "GET", "/api/admin/submissions", nil, bearer(fixtures.AdminToken))
	assert.Equal(t, 200, status, "admin routes are not rate limited")
}

func TestE2E_IdempotentIntake(t *testing.T) {
	_, rdb := helpers.SetupTestRedis(t)
	env := setupE2EEnvironment(t, envOptions{redis: rdb})
	key := map[string]string{"Idempotency-Key": "form-7f3a"}

	status, first, hdr := env.do(t, "POST", "/api/intake", fixtures.IntakeBody("twice@example.com", nil), key)
	require.Equal(t, 200, status)
	assert.Empty(t, string(hdr.Peek("Idempotency-Replayed")))

	status, second, hdr := env.do(t, "POST", "/api/intake", fixtures.IntakeBody("twice@example.com", nil), key)
	require.Equal(t, 200, status)
	assert.Equal(t, "true", string(hdr.Peek("Idempotency-Replayed")))
	assert.Equal(t, first["id"], second["id"])

	assert.Len(t, env.Relay.snapshot(), 1)
	_, out, _ := env.do(t, "GET", "/api/admin/submissions", nil, bearer(fixtures.AdminToken))
	assert.Equal(t, 1.0, out["total"])

	status, _, _ = env.do(t, "POST", "/api/intake", fixtures.IntakeBody("twice@example.com", nil), nil)
	require.Equal(t, 200, status)
	assert.Len(t, env.Relay.snapshot(), 2, "requests without a key are never deduplicated")
}

func TestE2E_Health(t *testing.T) {
	env := setupE2EEnvironment(t, envOptions{})

	status, out, hdr := env.do(t, "GET", "/api/health", nil, nil)
	assert.Equal(t, 200, status)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "nosniff", string(hdr.Peek("X-Content-Type-Options")))

	status, out, _ = env.do(t, "GET", "/api/nope", nil, nil)
	assert.Equal(t, 404, status)
	assert.Equal(t, false, out["ok"])
}
