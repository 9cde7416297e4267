package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nimasrn/intake-gateway/internal/model"
	"github.com/nimasrn/intake-gateway/internal/services"
	xhttp "github.com/nimasrn/intake-gateway/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

const testToken = "admin-token-0123456789"

type MockIntakeService struct {
	mock.Mock
}

func (m *MockIntakeService) Submit(ctx context.Context, req services.IntakeRequest) (*services.IntakeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.IntakeResult), args.Error(1)
}

type MockAdminService struct {
	mock.Mock
}

func (m *MockAdminService) List(ctx context.Context, p services.ListParams) (*model.SubmissionPage, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubmissionPage), args.Error(1)
}

func (m *MockAdminService) MarkRead(ctx context.Context, ids []string) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAdminService) Delete(ctx context.Context, ids []string) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

type MockHealthService struct {
	mock.Mock
}

func (m *MockHealthService) Get(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func withBearer(ctx *xhttp.RequestCtx, token string) *xhttp.RequestCtx {
	ctx.Request.Header.Set("Authorization", "Bearer "+token)
	return ctx
}

func decodeBody(t *testing.T, ctx *xhttp.RequestCtx) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out))
	return out
}

func assertJSONHeaders(t *testing.T, ctx *xhttp.RequestCtx) {
	t.Helper()
	assert.Equal(t, "application/json; charset=utf-8", string(ctx.Response.Header.Peek("Content-Type")))
	assert.Equal(t, "no-store", string(ctx.Response.Header.Peek("Cache-Control")))
}

func TestIntakeHandler_Submit(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		svc := new(MockIntakeService)
		h := NewIntakeHandler(svc)
		body := []byte(`{"email":"a@b.co","message":"hi"}`)

		svc.On("Submit", mock.Anything, mock.MatchedBy(func(r services.IntakeRequest) bool {
			return string(r.Body) == string(body) && r.UserAgent == "test-agent"
		})).Return(&services.IntakeResult{ID: "id-1", Emailed: true, Saved: false}, nil)

		ctx := setupTestContext("POST", "/api/intake", body)
		ctx.Request.Header.SetUserAgent("test-agent")
		h.Submit(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assertJSONHeaders(t, ctx)
		resp := decodeBody(t, ctx)
		assert.Equal(t, true, resp["ok"])
		assert.Equal(t, "id-1", resp["id"])
		assert.Equal(t, true, resp["emailed"])
		assert.Equal(t, false, resp["saved"])
		svc.AssertExpectations(t)
	})

	t.Run("validation errors are 400 with the message", func(t *testing.T) {
		for _, e := range []error{model.ErrInvalidJSON, model.ErrEmailRequired} {
			svc := new(MockIntakeService)
			svc.On("Submit", mock.Anything, mock.Anything).Return(nil, e)

			ctx := setupTestContext("POST", "/api/intake", []byte(`{}`))
			NewIntakeHandler(svc).Submit(ctx)

			assert.Equal(t, 400, ctx.Response.StatusCode())
			resp := decodeBody(t, ctx)
			assert.Equal(t, false, resp["ok"])
			assert.Equal(t, e.Error(), resp["error"])
		}
	})

	t.Run("delivery failure hides the cause", func(t *testing.T) {
		svc := new(MockIntakeService)
		svc.On("Submit", mock.Anything, mock.Anything).Return(nil, errors.New("relay: dial tcp 10.0.0.1:443: refused"))

		ctx := setupTestContext("POST", "/api/intake", []byte(`{"email":"a@b.co"}`))
		NewIntakeHandler(svc).Submit(ctx)

		assert.Equal(t, 500, ctx.Response.StatusCode())
		resp := decodeBody(t, ctx)
		assert.Equal(t, intakeFailureMessage, resp["error"])
		assert.NotContains(t, string(ctx.Response.Body()), "10.0.0.1")
	})
}

func TestBearerAuth(t *testing.T) {
	called := false
	next := func(ctx *xhttp.RequestCtx) { called = true }

	cases := []struct {
		name       string
		configured string
		header     string
		allowed    bool
	}{
		{"valid token", testToken, "Bearer " + testToken, true},
		{"wrong token", testToken, "Bearer nope", false},
		{"missing header", testToken, "", false},
		{"wrong scheme", testToken, "Basic " + testToken, false},
		{"empty bearer", testToken, "Bearer ", false},
		{"unconfigured token", "", "Bearer ", false},
		{"unconfigured token with header", "", "Bearer anything", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called = false
			ctx := setupTestContext("GET", "/api/admin/submissions", nil)
			if tc.header != "" {
				ctx.Request.Header.Set("Authorization", tc.header)
			}
			BearerAuth(tc.configured)(next)(ctx)

			assert.Equal(t, tc.allowed, called)
			if !tc.allowed {
				assert.Equal(t, 401, ctx.Response.StatusCode())
				assert.Equal(t, "Unauthorized", decodeBody(t, ctx)["error"])
			}
		})
	}
}

func TestAdminHandler_ListSubmissions(t *testing.T) {
	t.Run("passes raw query values", func(t *testing.T) {
		svc := new(MockAdminService)
		h := NewAdminHandler(svc)
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		page := &model.SubmissionPage{
			Items:  []*model.Submission{{ID: "s1", Email: "a@b.co", Source: "home", CreatedAt: now}},
			Total:  7,
			Limit:  5,
			Offset: 5,
		}
		svc.On("List", mock.Anything, services.ListParams{
			Limit: "5", Offset: "5", Status: "unread", Source: "home", IncludeDeleted: "1",
		}).Return(page, nil)

		ctx := setupTestContext("GET", "/api/admin/submissions?limit=5&offset=5&status=unread&source=home&includeDeleted=1", nil)
		h.ListSubmissions(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assertJSONHeaders(t, ctx)
		resp := decodeBody(t, ctx)
		assert.Equal(t, true, resp["ok"])
		assert.Equal(t, float64(7), resp["total"])
		assert.Equal(t, float64(5), resp["limit"])
		assert.Equal(t, float64(5), resp["offset"])
		items := resp["items"].([]any)
		require.Len(t, items, 1)
		assert.Equal(t, "s1", items[0].(map[string]any)["id"])
		svc.AssertExpectations(t)
	})

	t.Run("store failure", func(t *testing.T) {
		svc := new(MockAdminService)
		svc.On("List", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		ctx := setupTestContext("GET", "/api/admin/submissions", nil)
		NewAdminHandler(svc).ListSubmissions(ctx)

		assert.Equal(t, 500, ctx.Response.StatusCode())
		assert.Equal(t, "db down", decodeBody(t, ctx)["error"])
	})
}

func TestAdminHandler_MarkRead(t *testing.T) {
	t.Run("keeps only string ids", func(t *testing.T) {
		svc := new(MockAdminService)
		svc.On("MarkRead", mock.Anything, []string{"a", "b"}).Return(int64(2), nil)

		ctx := setupTestContext("POST", "/api/admin/mark-read", []byte(`{"ids":["a",1,null,"b",{"x":1}]}`))
		NewAdminHandler(svc).MarkRead(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		resp := decodeBody(t, ctx)
		assert.Equal(t, true, resp["ok"])
		assert.Equal(t, float64(2), resp["updated"])
		svc.AssertExpectations(t)
	})

	t.Run("bad bodies", func(t *testing.T) {
		cases := map[string]string{
			`not json`:        "Invalid JSON",
			`null`:            "Invalid JSON",
			`{}`:              "No ids provided",
			`{"ids":[]}`:      "No ids provided",
			`{"ids":"a"}`:     "No ids provided",
			`{"ids":[1,2,3]}`: "No ids provided",
		}
		for body, want := range cases {
			svc := new(MockAdminService)
			ctx := setupTestContext("POST", "/api/admin/mark-read", []byte(body))
			NewAdminHandler(svc).MarkRead(ctx)

			assert.Equal(t, 400, ctx.Response.StatusCode(), body)
			assert.Equal(t, want, decodeBody(t, ctx)["error"], body)
			svc.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything)
		}
	})

	t.Run("service rejects the id list", func(t *testing.T) {
		svc := new(MockAdminService)
		svc.On("MarkRead", mock.Anything, mock.Anything).Return(int64(0), services.ErrTooManyIDs)

		ctx := setupTestContext("POST", "/api/admin/mark-read", []byte(`{"ids":["a"]}`))
		NewAdminHandler(svc).MarkRead(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		assert.Equal(t, "Too many ids", decodeBody(t, ctx)["error"])
	})
}

func TestAdminHandler_Delete(t *testing.T) {
	svc := new(MockAdminService)
	svc.On("Delete", mock.Anything, []string{"x"}).Return(int64(0), nil)

	ctx := setupTestContext("POST", "/api/admin/delete", []byte(`{"ids":["x"]}`))
	NewAdminHandler(svc).Delete(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	resp := decodeBody(t, ctx)
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, float64(0), resp["deleted"])

	svc = new(MockAdminService)
	svc.On("Delete", mock.Anything, mock.Anything).Return(int64(0), errors.New("boom"))
	ctx = setupTestContext("POST", "/api/admin/delete", []byte(`{"ids":["x"]}`))
	NewAdminHandler(svc).Delete(ctx)
	assert.Equal(t, 500, ctx.Response.StatusCode())
}

func TestRegisterAdminRoutes_RequireToken(t *testing.T) {
	svc := new(MockAdminService)
	svc.On("List", mock.Anything, mock.Anything).Return(&model.SubmissionPage{Items: []*model.Submission{}, Limit: 25}, nil)

	e := xhttp.CreateServer()
	RegisterAdminRoutes(e.Group("/api"), NewAdminHandler(svc), testToken)
	handler := e.Handler()

	ctx := setupTestContext("GET", "/api/admin/submissions", nil)
	handler(ctx)
	assert.Equal(t, 401, ctx.Response.StatusCode())
	svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything)

	ctx = withBearer(setupTestContext("GET", "/api/admin/submissions", nil), testToken)
	handler(ctx)
	assert.Equal(t, 200, ctx.Response.StatusCode())
	svc.AssertNumberOfCalls(t, "List", 1)
}

func TestHealthHandler(t *testing.T) {
	svc := new(MockHealthService)
	svc.On("Get", mock.Anything).Return(nil).Once()
	svc.On("Get", mock.Anything).Return(errors.New("db down")).Once()
	h := NewHealthHandler(svc)

	ctx := setupTestContext("GET", "/api/health", nil)
	h.GetHealth(ctx)
	assert.Equal(t, 200, ctx.Response.StatusCode())
	assert.Equal(t, "ok", decodeBody(t, ctx)["status"])

	ctx = setupTestContext("GET", "/api/health", nil)
	h.GetHealth(ctx)
	assert.Equal(t, 503, ctx.Response.StatusCode())
	assert.Equal(t, false, decodeBody(t, ctx)["ok"])
}
