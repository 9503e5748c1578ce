package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routes func(e *echo.Echo)

func (r routes) RegisterRoutes(e *echo.Echo) { r(e) }

type reviewRequest struct {
	ID       string   `param:"id" validate:"required"`
	Reviewer string   `json:"reviewer" validate:"required"`
	Decision string   `json:"decision" validate:"required,oneof=approve reject"`
	Note     string   `json:"note" validate:"max=5"`
	Tags     []string `json:"tags" validate:"max=2"`
	Currency string   `json:"currency" default:"USD" validate:"len=3"`
}

func newTestServer(t *testing.T, opts ...ServerOption) *echo.Echo {
	t.Helper()
	srv := NewServer(routes(func(e *echo.Echo) {
		e.POST("/reviews/:id", func(c echo.Context) error {
			req := new(reviewRequest)
			if verr := ReadAndValidateRequest(c, req); verr != nil {
				return BadRequestResponse(c, verr)
			}
			return CreatedResponse(c, req)
		})
		e.GET("/missing", func(c echo.Context) error {
			return AppErrorResponse(c, NotFoundErrorf("pipeline %s not found", "tx-1").WithParam("id", "tx-1"))
		})
		e.GET("/boom", func(c echo.Context) error {
			return errors.New("db down")
		})
		e.GET("/panic", func(c echo.Context) error {
			panic("handler bug")
		})
	}), append([]ServerOption{WithMetrics(false)}, opts...)...)
	return srv.Echo()
}

func serve(e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, APIResponse) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var out APIResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestValidRequestGetsDefaults(t *testing.T) {
	e := newTestServer(t)

	rec, resp := serve(e, http.MethodPost, "/reviews/tx-9", `{"reviewer":"ana","decision":"approve"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "USD", data["currency"])
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestValidationErrorsNameJSONFields(t *testing.T) {
	e := newTestServer(t)

	rec, _ := serve(e, http.MethodPost, "/reviews/tx-9",
		`{"decision":"maybe","note":"too long","tags":["a","b","c"],"currency":"EURO"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Data []ValidationError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	byField := map[string]ValidationError{}
	for _, v := range body.Data {
		byField[v.Field] = v
	}
	require.Len(t, byField, 5)
	assert.Equal(t, "reviewer is required", byField["reviewer"].Message)
	assert.Equal(t, "ERR_ONEOF", byField["decision"].Code)
	assert.Equal(t, "decision must be one of: approve, reject", byField["decision"].Message)
	assert.Equal(t, "note must be at most 5 characters", byField["note"].Message)
	assert.Equal(t, "tags must be at most 2 items", byField["tags"].Message)
	assert.Equal(t, "currency must have length 3", byField["currency"].Message)
}

func TestMalformedBody(t *testing.T) {
	e := newTestServer(t)

	rec, _ := serve(e, http.MethodPost, "/reviews/tx-9", `{"reviewer":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_MALFORMED")
}

func TestAppErrorEnvelope(t *testing.T) {
	e := newTestServer(t)

	rec, resp := serve(e, http.MethodGet, "/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", resp.Message)
	assert.Contains(t, rec.Body.String(), `"code":"ERR_NOT_FOUND"`)
	assert.Contains(t, rec.Body.String(), `"id":"tx-1"`)

	rec, _ = serve(e, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestRoutingErrorsUseEnvelope(t *testing.T) {
	e := newTestServer(t)

	rec, resp := serve(e, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")
}

func TestPanicIsRecovered(t *testing.T) {
	e := newTestServer(t)

	rec, _ := serve(e, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBodyLimit(t *testing.T) {
	e := newTestServer(t, WithBodyLimit("64B"))

	rec, _ := serve(e, http.MethodPost, "/reviews/tx-9", `{"reviewer":"`+strings.Repeat("x", 200)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_TOO_LARGE")
}

func TestCORSPreflight(t *testing.T) {
	e := newTestServer(t, WithCORSOrigins("https://ops.example"))

	req := httptest.NewRequest(http.MethodOptions, "/reviews/tx-9", nil)
	req.Header.Set(echo.HeaderOrigin, "https://ops.example")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ops.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
