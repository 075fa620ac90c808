package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicsched/clinic/internal/config"
	"github.com/clinicsched/clinic/internal/platform/auth"
	"github.com/clinicsched/clinic/internal/platform/events"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:            "development",
		CORSOrigins:    []string{"http://localhost:3000"},
		SessionTTL:     time.Hour,
		RequestTimeout: 5 * time.Second,
		KafkaTopic:     "clinic.appointments",
	}
}

// ---------------------------------------------------------------------------
// resolveSessionKey
// ---------------------------------------------------------------------------

func TestResolveSessionKey_FromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.SessionSigningKey = strings.Repeat("0a", 32)

	key, random, err := resolveSessionKey(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if random {
		t.Error("expected random=false when a key is configured")
	}
	if len(key) != 32 || key[0] != 0x0a {
		t.Errorf("unexpected key %x", key)
	}
}

func TestResolveSessionKey_InvalidHex(t *testing.T) {
	cfg := testConfig()
	cfg.SessionSigningKey = "not-valid-hex!!!"
	if _, _, err := resolveSessionKey(cfg); err == nil {
		t.Fatal("expected error for invalid hex, got nil")
	}
}

func TestResolveSessionKey_RandomGeneration(t *testing.T) {
	key, random, err := resolveSessionKey(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !random {
		t.Error("expected random=true when no key is configured")
	}
	key2, _, err := resolveSessionKey(testConfig())
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if bytes.Equal(key, key2) {
		t.Error("two random keys should differ")
	}
}

// ---------------------------------------------------------------------------
// newEcho middleware chain
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T) (*echo.Echo, *auth.SessionManager) {
	t.Helper()
	sessions := auth.NewSessionManager(bytes.Repeat([]byte{7}, 32), time.Hour)
	e := newEcho(testConfig(), zerolog.Nop(), sessions)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/api/v1/ping", func(c echo.Context) error {
		p := auth.PrincipalFromContext(c.Request().Context())
		return c.String(http.StatusOK, string(p.Role))
	})
	return e, sessions
}

func TestNewEcho_PublicHealth(t *testing.T) {
	e, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestNewEcho_RequiresSession(t *testing.T) {
	e, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"unauthenticated"`) {
		t.Errorf("expected unauthenticated code, got %s", rec.Body.String())
	}
}

func TestNewEcho_UnknownURLIsNotFound(t *testing.T) {
	e, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/no-such-thing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNewEcho_AcceptsSession(t *testing.T) {
	e, sessions := newTestServer(t)
	token, _, err := sessions.Issue(auth.Principal{ID: uuid.New(), Name: "Dr. Reis", Role: auth.RoleClinician})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "CLINICIAN" {
		t.Fatalf("unexpected response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNewPublisher_DisabledWithoutBrokers(t *testing.T) {
	pub := newPublisher(testConfig(), zerolog.Nop())
	if _, ok := pub.(events.NopPublisher); !ok {
		t.Errorf("expected NopPublisher, got %T", pub)
	}
}

func TestNewPublisher_Kafka(t *testing.T) {
	cfg := testConfig()
	cfg.KafkaBrokers = []string{"localhost:9092"}
	pub := newPublisher(cfg, zerolog.Nop())
	defer pub.Close()
	if _, ok := pub.(*events.KafkaPublisher); !ok {
		t.Errorf("expected KafkaPublisher, got %T", pub)
	}
}
