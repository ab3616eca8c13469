//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fitgoals/apiserver/config"
	"github.com/fitgoals/apiserver/internal/db"
	"github.com/fitgoals/apiserver/internal/server"
	_ "github.com/lib/pq"
)

const (
	serverPort = 18080
)

var baseURL = fmt.Sprintf("http://localhost:%d", serverPort)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestGoalLifecycle(t *testing.T) {
	suffix := time.Now().UnixNano()
	owner := fmt.Sprintf("ann_%d", suffix)
	intruder := fmt.Sprintf("bob_%d", suffix)

	ownerToken := signupAndLogin(t, owner)
	intruderToken := signupAndLogin(t, intruder)

	status, body := doJSON(t, http.MethodGet, "/goals", ownerToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for empty goal list, got %d: %s", status, body)
	}

	status, body = doJSON(t, http.MethodPost, "/goals", ownerToken, goalPayload("Run 5k", 5))
	if status != http.StatusCreated {
		t.Fatalf("create goal status %d: %s", status, body)
	}
	var created goalResponse
	mustDecode(t, body, &created)
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("expected server-assigned id and timestamps, got %+v", created)
	}

	status, body = doJSON(t, http.MethodGet, "/goals", ownerToken, nil)
	if status != http.StatusOK {
		t.Fatalf("list goals status %d: %s", status, body)
	}
	var listed []goalResponse
	mustDecode(t, body, &listed)
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("unexpected goal list: %+v", listed)
	}

	status, body = doJSON(t, http.MethodPut, "/goals/"+created.ID, ownerToken, goalPayload("Run 10k", 10))
	if status != http.StatusOK {
		t.Fatalf("update goal status %d: %s", status, body)
	}
	var updated goalResponse
	mustDecode(t, body, &updated)
	if updated.Name != "Run 10k" || updated.TargetValue != 10 {
		t.Fatalf("unexpected updated goal: %+v", updated)
	}

	status, body = doJSON(t, http.MethodPost, "/goals/"+created.ID+"/progress", ownerToken, map[string]any{
		"date":  "2026-01-05",
		"value": 2.5,
	})
	if status != http.StatusOK {
		t.Fatalf("record progress status %d: %s", status, body)
	}
	var progressed goalResponse
	mustDecode(t, body, &progressed)
	if len(progressed.Progress) != 1 || progressed.Progress[0].Value != 2.5 {
		t.Fatalf("unexpected progress: %+v", progressed.Progress)
	}

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		status, body = doJSON(t, method, "/goals/"+created.ID, intruderToken, nil)
		if status != http.StatusNotFound {
			t.Fatalf("%s by another user: expected 404, got %d: %s", method, status, body)
		}
	}
	status, body = doJSON(t, http.MethodPut, "/goals/"+created.ID, intruderToken, goalPayload("Hijacked", 1))
	if status != http.StatusNotFound {
		t.Fatalf("update by another user: expected 404, got %d: %s", status, body)
	}

	status, body = doJSON(t, http.MethodDelete, "/goals/"+created.ID, ownerToken, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete goal status %d: %s", status, body)
	}
	status, body = doJSON(t, http.MethodDelete, "/goals/"+created.ID, ownerToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d: %s", status, body)
	}
}

func TestSignupConflictAndLoginFailure(t *testing.T) {
	username := fmt.Sprintf("carl_%d", time.Now().UnixNano())
	signupAndLogin(t, username)

	status, body := doJSON(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": username,
		"email":    "other+" + username + "@example.com",
		"password": "password1",
	})
	if status != http.StatusConflict {
		t.Fatalf("duplicate signup: expected 409, got %d: %s", status, body)
	}

	wrongPassword, wrongBody := doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": username,
		"password": "password2",
	})
	unknownUser, unknownBody := doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": username + "_missing",
		"password": "password1",
	})
	if wrongPassword != http.StatusUnauthorized || unknownUser != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad credentials, got %d and %d", wrongPassword, unknownUser)
	}
	if !bytes.Equal(wrongBody, unknownBody) {
		t.Fatalf("bad credential responses differ: %s vs %s", wrongBody, unknownBody)
	}
}

type goalResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	TargetValue float64   `json:"targetValue"`
	CreatedAt   time.Time `json:"createdAt"`
	Progress    []struct {
		Date  time.Time `json:"date"`
		Value float64   `json:"value"`
	} `json:"progress"`
}

func goalPayload(name string, target float64) map[string]any {
	return map[string]any{
		"name":        name,
		"description": "e2e goal",
		"type":        "endurance",
		"startDate":   "2026-01-01",
		"endDate":     "2026-03-01",
		"targetValue": target,
		"unit":        "km",
	}
}

func signupAndLogin(t *testing.T, username string) string {
	t.Helper()

	status, body := doJSON(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password1",
	})
	if status != http.StatusCreated {
		t.Fatalf("signup status %d: %s", status, body)
	}
	if bytes.Contains(body, []byte("password")) {
		t.Fatalf("signup response leaks password: %s", body)
	}

	status, body = doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": username,
		"password": "password1",
	})
	if status != http.StatusOK {
		t.Fatalf("login status %d: %s", status, body)
	}

	var resp struct {
		Token string `json:"token"`
	}
	mustDecode(t, body, &resp)
	if resp.Token == "" {
		t.Fatalf("expected token in login response")
	}
	return resp.Token
}

func doJSON(t *testing.T, method, path, token string, payload any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode payload: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, bytes.TrimSpace(body)
}

func mustDecode(t *testing.T, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("decode %s: %v", strings.TrimSpace(string(body)), err)
	}
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.DSN(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	return db.MigrateUp(cfg.Database, filepath.Join(root, "internal", "db", "migrations"))
}

func startServer() (*server.Server, error) {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "fitgoals")
	_ = os.Setenv("DB_PASSWORD", "password")
	_ = os.Setenv("DB_NAME", "fitgoals_db")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("MQ_BACKEND", "none")
	_ = os.Setenv("STORAGE_BACKEND", "none")

	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
