package ez

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tour-booking-api/internal/core/apperr"
	"tour-booking-api/internal/core/auth"
	"tour-booking-api/internal/domain"
	"tour-booking-api/internal/query"
	mdw "tour-booking-api/internal/transport/http/middleware"
	resp "tour-booking-api/internal/transport/http/response"
)

func init() { gin.SetMode(gin.TestMode) }

type body struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	Errors  []apperr.Violation `json:"errors"`
	Data    map[string]any     `json:"data"`
}

func do(t *testing.T, r http.Handler, method, path, payload string) (*httptest.ResponseRecorder, body) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var b body
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b), w.Body.String())
	}
	return w, b
}

// asUser 测试里代替 Protect
func asUser(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if role != "" {
			c.Set(mdw.KeyUser, &domain.User{Name: "t", Role: role})
		}
		c.Next()
	}
}

func engine(role string, register func(EZ)) *gin.Engine {
	r := gin.New()
	g := r.Group("/v1", asUser(role))
	policy := auth.NewPolicy().Requires("things", "create", domain.RoleAdmin)
	register(New(g, nil, policy))
	return r
}

type thing struct {
	Name string `json:"name"`
}

func TestErrorKindsMapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		code   int
		status string
	}{
		{apperr.BadRequest("bad"), http.StatusBadRequest, "fail"},
		{apperr.NotFound("No document found with that ID"), http.StatusNotFound, "fail"},
		{apperr.Duplicate("dup", nil), http.StatusConflict, "fail"},
		{apperr.Unauthorized("who"), http.StatusUnauthorized, "fail"},
		{apperr.Forbidden("no"), http.StatusForbidden, "fail"},
		{errors.New("socket closed"), http.StatusInternalServerError, "error"},
		{apperr.Internal("db", errors.New("x")), http.StatusInternalServerError, "error"},
	}
	for _, tc := range cases {
		r := engine("", func(e EZ) {
			RegisterAction(e, Action[struct{}, resp.Resp]{
				Method: http.MethodGet,
				Path:   "/x",
				Binder: BindNone,
				Handler: func(*gin.Context, *struct{}) (resp.Resp, error) {
					return resp.Resp{}, tc.err
				},
			})
		})
		w, b := do(t, r, http.MethodGet, "/v1/x", "")
		assert.Equal(t, tc.code, w.Code, tc.err.Error())
		assert.Equal(t, tc.status, b.Status)
		if tc.code == http.StatusInternalServerError {
			assert.Equal(t, resp.MsgUnexpected, b.Message)
		} else {
			assert.Equal(t, tc.err.Error(), b.Message)
		}
	}
}

func TestValidationErrorCarriesViolations(t *testing.T) {
	r := engine("", func(e EZ) {
		RegisterAction(e, Action[thing, resp.Resp]{
			Path:   "/things",
			Binder: BindJSON,
			Handler: func(_ *gin.Context, in *thing) (resp.Resp, error) {
				return resp.Resp{}, apperr.Validation([]apperr.Violation{
					{Field: "name", Rule: "min", Message: "too short"},
					{Field: "price", Rule: "required", Message: "A tour must have a price"},
				})
			},
		})
	})
	w, b := do(t, r, http.MethodPost, "/v1/things", `{"name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, b.Errors, 2)
	assert.Contains(t, b.Message, "Invalid input data.")
}

func TestBadJSONIsBadRequest(t *testing.T) {
	called := false
	r := engine("", func(e EZ) {
		RegisterAction(e, Action[thing, resp.Resp]{
			Path:   "/things",
			Binder: BindJSON,
			Handler: func(*gin.Context, *thing) (resp.Resp, error) {
				called = true
				return resp.OK(nil), nil
			},
		})
	})
	w, b := do(t, r, http.MethodPost, "/v1/things", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "fail", b.Status)
	assert.False(t, called)
}

func TestPolicyIsCheckedBeforeHandler(t *testing.T) {
	register := func(e EZ) {
		RegisterAction(e, Action[thing, resp.Resp]{
			Path:     "/things",
			Binder:   BindJSON,
			Resource: "things",
			Act:      "create",
			Status:   http.StatusCreated,
			Handler: func(_ *gin.Context, in *thing) (resp.Resp, error) {
				return resp.OK(in), nil
			},
		})
	}

	w, _ := do(t, engine("", register), http.MethodPost, "/v1/things", `{"name":"a"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, engine(domain.RoleUser, register), http.MethodPost, "/v1/things", `{"name":"a"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, b := do(t, engine(domain.RoleAdmin, register), http.MethodPost, "/v1/things", `{"name":"a"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "success", b.Status)
	assert.Equal(t, map[string]any{"name": "a"}, b.Data["data"])
}

func TestNoContentHasEmptyBody(t *testing.T) {
	r := engine("", func(e EZ) {
		RegisterAction(e, Action[struct{}, struct{}]{
			Method: http.MethodDelete,
			Path:   "/things/:id",
			Binder: BindNone,
			Status: http.StatusNoContent,
			Handler: func(*gin.Context, *struct{}) (struct{}, error) {
				return struct{}{}, nil
			},
		})
	})
	w, _ := do(t, r, http.MethodDelete, "/v1/things/1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, w.Body.Len())
}

func TestRawAndQueryBinders(t *testing.T) {
	var raw []byte
	var params query.Params
	r := engine("", func(e EZ) {
		RegisterAction(e, Action[[]byte, resp.Resp]{
			Method: http.MethodPatch,
			Path:   "/things/:id",
			Binder: BindRaw,
			Handler: func(_ *gin.Context, in *[]byte) (resp.Resp, error) {
				raw = *in
				return resp.OK(nil), nil
			},
		})
		RegisterAction(e, Action[query.Params, resp.Resp]{
			Method: http.MethodGet,
			Path:   "/things",
			Binder: BindQuery,
			Handler: func(_ *gin.Context, in *query.Params) (resp.Resp, error) {
				params = *in
				return resp.List([]string{}, 0), nil
			},
		})
	})
	w, _ := do(t, r, http.MethodPatch, "/v1/things/1", `{"price":1}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"price":1}`, string(raw))

	w, _ = do(t, r, http.MethodGet, "/v1/things?sort=price&sort=-price&page=2", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "-price", params["sort"])
	assert.Equal(t, "2", params["page"])
}
