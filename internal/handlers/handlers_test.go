package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fitgoals/apiserver/internal/auth"
	"github.com/fitgoals/apiserver/internal/services"
	"github.com/fitgoals/apiserver/internal/store/memory"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testAPI struct {
	router  *chi.Mux
	tokens  *auth.TokenManager
	metrics *Metrics
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tokens, err := auth.NewTokenManager("handler-test-secret", time.Hour)
	require.NoError(t, err)

	userService := services.NewUserService(memory.NewUserRepository(), auth.NewPasswordHasher(bcrypt.MinCost), tokens, logger)
	goalService := services.NewGoalService(memory.NewGoalRepository(), logger)
	authMiddleware := RequireAuth(tokens, logger)
	metrics := NewMetrics()

	router := chi.NewRouter()
	router.Use(RequestLogger(logger, metrics))
	router.Get("/healthz", Healthz)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, userService, authMiddleware, logger)
	})
	router.Route("/goals", func(r chi.Router) {
		GoalRouter(r, goalService, authMiddleware, logger)
	})

	return &testAPI{router: router, tokens: tokens, metrics: metrics}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(v)
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// signupAndLogin creates an account and returns its id and a fresh token.
func (a *testAPI) signupAndLogin(t *testing.T, username string) (string, string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/auth/signup", "", SignupRequest{
		Username: username,
		Email:    username + "@x.com",
		Password: "password1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Username: username, Password: "password1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LoginResponse
	decodeBody(t, rec, &resp)
	return resp.User.ID, resp.Token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v), "body: %s", rec.Body.String())
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	return resp
}

type failingVerifier struct{ err error }

func (f failingVerifier) Verify(string) (string, error) {
	return "", f.err
}

var errVerifierDown = errors.New("key service unreachable")
