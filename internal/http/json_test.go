package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/target/waypoint/internal/errors"
)

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
		wantField   string
	}{
		{
			name:        "not found",
			err:         apperrors.NotFound("user not found"),
			wantStatus:  http.StatusNotFound,
			wantCode:    "not_found",
			wantMessage: "user not found",
		},
		{
			name:        "validation with field",
			err:         apperrors.ValidationField("step", "unknown onboarding step"),
			wantStatus:  http.StatusBadRequest,
			wantCode:    "validation",
			wantMessage: "unknown onboarding step",
			wantField:   "step",
		},
		{
			name:        "forbidden",
			err:         apperrors.Forbidden("account suspended"),
			wantStatus:  http.StatusForbidden,
			wantCode:    "forbidden",
			wantMessage: "account suspended",
		},
		{
			name:        "conflict",
			err:         apperrors.Conflict("already exists"),
			wantStatus:  http.StatusConflict,
			wantCode:    "conflict",
			wantMessage: "already exists",
		},
		{
			name:        "internal hides message",
			err:         apperrors.Wrap(errors.New("pq: connection reset"), apperrors.ErrCodeInternal, "load user"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "internal",
			wantMessage: http.StatusText(http.StatusInternalServerError),
		},
		{
			name:        "plain error",
			err:         errors.New("boom"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "internal",
			wantMessage: http.StatusText(http.StatusInternalServerError),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteAppError(w, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			var body errorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error)
			assert.Equal(t, tt.wantMessage, body.Message)
			assert.Equal(t, tt.wantField, body.Field)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Path string `json:"path" validate:"required,max=8"`
	}

	tests := []struct {
		name      string
		body      string
		wantOK    bool
		wantCode  string
		wantField string
	}{
		{name: "valid", body: `{"path":"/a"}`, wantOK: true},
		{name: "malformed", body: `{"path":`, wantCode: "invalid_json"},
		{name: "unknown field", body: `{"path":"/a","x":1}`, wantCode: "invalid_json"},
		{name: "missing required", body: `{}`, wantCode: "validation", wantField: "path"},
		{name: "too long", body: `{"path":"/abcdefghij"}`, wantCode: "validation", wantField: "path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload
			ok := DecodeJSON(w, r, &dst)

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, "/a", dst.Path)
				return
			}
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error)
			assert.Equal(t, tt.wantField, body.Field)
		})
	}
}

func TestWriteError_DefaultsToStatusText(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found"})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not_found","message":"Not Found"}`, w.Body.String())
}
