package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fitgoals/apiserver/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignup_ReturnsUserWithoutPassword(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/auth/signup", "", SignupRequest{
		Username: "ann",
		Email:    "Ann@X.com",
		Password: "password1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")

	var resp map[string]any
	decodeBody(t, rec, &resp)
	assert.Equal(t, "User created successfully", resp["message"])
	user, ok := resp["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ann", user["username"])
	assert.Equal(t, "ann@x.com", user["email"])
	assert.NotEmpty(t, user["id"])
	assert.Len(t, user, 3)
}

func TestSignup_Duplicate(t *testing.T) {
	api := newTestAPI(t)
	body := SignupRequest{Username: "ann", Email: "ann@x.com", Password: "password1"}

	require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, "/auth/signup", "", body).Code)

	rec := api.do(t, http.MethodPost, "/auth/signup", "", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "User already exists", errorBody(t, rec).Message)

	rec = api.do(t, http.MethodPost, "/auth/signup", "", SignupRequest{Username: "other", Email: "ANN@x.com", Password: "password1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSignup_ValidationErrors(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/auth/signup", "", SignupRequest{Username: "an", Email: "nope", Password: " short  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := errorBody(t, rec)
	assert.NotEmpty(t, resp.Message)
	assert.Contains(t, resp.Errors, "username")
	assert.Contains(t, resp.Errors, "email")
	assert.Contains(t, resp.Errors, "password")
}

func TestSignup_PasswordOverBcryptLimit(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/auth/signup", "", SignupRequest{
		Username: "ann",
		Email:    "ann@x.com",
		Password: strings.Repeat("a", 80),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Password must be at most 72 bytes", errorBody(t, rec).Errors["password"])

	rec = api.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Username: "ann", Password: strings.Repeat("a", 80)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignup_InvalidJSON(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/auth/signup", "", `{"username":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", errorBody(t, rec).Message)
}

func TestLogin_WrongUsernameAndPasswordLookAlike(t *testing.T) {
	api := newTestAPI(t)
	api.signupAndLogin(t, "ann")

	wrongPassword := api.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Username: "ann", Password: "password2"})
	unknownUser := api.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Username: "bob", Password: "password1"})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, wrongPassword.Code, unknownUser.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())
	assert.JSONEq(t, `{"message":"Invalid credentials"}`, wrongPassword.Body.String())
}

func TestLogin_ReturnsTokenForUser(t *testing.T) {
	api := newTestAPI(t)
	userID, token := api.signupAndLogin(t, "ann")

	subject, err := api.tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, subject)
}

func TestLogin_ValidationError(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Username: "ann", Password: "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec).Errors, "password")
}

func TestMe(t *testing.T) {
	api := newTestAPI(t)
	userID, token := api.signupAndLogin(t, "ann")

	rec := api.do(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UserResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, UserResponse{ID: userID, Username: "ann", Email: "ann@x.com"}, resp)
}

func TestRequireAuth_Rejections(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.signupAndLogin(t, "ann")

	issuedAt := time.Now().Add(-2 * time.Hour)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "4f7c8c1e-9a51-4a8e-a7b0-5d7a31f3c2aa",
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
	}).SignedString([]byte("handler-test-secret"))
	require.NoError(t, err)

	otherIssuer, err := auth.NewTokenManager("some-other-secret", time.Hour)
	require.NoError(t, err)
	forged, err := otherIssuer.Issue("4f7c8c1e-9a51-4a8e-a7b0-5d7a31f3c2aa")
	require.NoError(t, err)

	cases := []struct {
		name    string
		header  string
		message string
	}{
		{"missing", "", msgNoToken},
		{"wrong scheme", "Basic " + token, msgBadFormat},
		{"lowercase scheme", "bearer " + token, msgBadFormat},
		{"no token", "Bearer", msgBadFormat},
		{"extra part", "Bearer " + token + " extra", msgBadFormat},
		{"expired", "Bearer " + expired, msgTokenExpired},
		{"wrong secret", "Bearer " + forged, msgTokenInvalid},
		{"garbage", "Bearer not.a.jwt", msgTokenInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/goals", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			api.router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tc.message, errorBody(t, rec).Message)
		})
	}
}

func TestRequireAuth_VerifierFaultIsServerError(t *testing.T) {
	gate := RequireAuth(failingVerifier{err: fmt.Errorf("load key: %w", errVerifierDown)}, nil)
	called := false
	handler := gate(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/goals", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), errVerifierDown.Error())
}

func TestRequireAuth_BindsSubject(t *testing.T) {
	api := newTestAPI(t)
	token, err := api.tokens.Issue("user-123")
	require.NoError(t, err)

	var seen string
	handler := RequireAuth(api.tokens, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = userIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "user-123", seen)
}

func TestBearerToken(t *testing.T) {
	token, ok := bearerToken("Bearer abc.def.ghi")
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", token)

	for _, header := range []string{"Bearer", "Bearer ", "Token abc", "Bearer  abc", "Bearer a b"} {
		_, ok := bearerToken(header)
		assert.False(t, ok, "header %q", header)
	}
}
