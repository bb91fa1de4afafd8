package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Dan9191/card-service/internal/models"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuthenticator map[string]models.Principal

func (s stubAuthenticator) Authenticate(token string) (models.Principal, error) {
	p, ok := s[token]
	if !ok {
		return models.Principal{}, errors.New("unknown token")
	}
	return p, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

var principalEcho = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	_ = json.NewEncoder(w).Encode(p)
})

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestAuthMiddleware(t *testing.T) {
	auth := stubAuthenticator{"good": {UserID: 7, Username: "john", Role: models.RoleUser}}
	h := AuthMiddleware(auth, quietLogger())(principalEcho)

	tests := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{name: "missing header", status: http.StatusUnauthorized, message: "Authorization header required"},
		{name: "wrong scheme", header: "Basic good", status: http.StatusUnauthorized, message: "Invalid Authorization header format"},
		{name: "bad token", header: "Bearer bad", status: http.StatusUnauthorized, message: "Invalid token"},
		{name: "valid token", header: "Bearer good", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/cards", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status != http.StatusOK {
				body := decodeError(t, rec)
				assert.Equal(t, tt.message, body.Message)
				assert.Equal(t, "/api/cards", body.Path)
				assert.Equal(t, tt.status, body.Status)
				return
			}
			var p models.Principal
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
			assert.Equal(t, int64(7), p.UserID)
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(models.RoleAdmin)(principalEcho)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/cards/all", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/cards/all", nil)
	req = req.WithContext(WithPrincipal(req.Context(), models.Principal{UserID: 1, Role: models.RoleUser}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, models.ErrForbidden.Message, decodeError(t, rec).Message)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/cards/all", nil)
	req = req.WithContext(WithPrincipal(req.Context(), models.Principal{UserID: 1, Role: models.RoleAdmin}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestLogger(t *testing.T) {
	log, hook := test.NewNullLogger()
	r := mux.NewRouter()
	r.Use(RequestLogger(log))
	r.HandleFunc("/api/cards/{id}/balance", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/cards/5/balance", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "req-1", entry.Data["request_id"])
	assert.Equal(t, http.StatusTeapot, entry.Data["status"])
	assert.Equal(t, logrus.InfoLevel, entry.Level)
}

func TestRequestLogger_GeneratesID(t *testing.T) {
	h := RequestLogger(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
}
