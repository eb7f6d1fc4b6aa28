package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/swpsco/nockpool-launcher/internal/supervisor"
)

type fakeBackend struct {
	version   string
	installed bool
	status    supervisor.Status
	updated   bool
	checkErr  error
	checks    int
}

func (f *fakeBackend) CurrentVersion() (string, bool) { return f.version, f.installed }
func (f *fakeBackend) MinerStatus() supervisor.Status { return f.status }
func (f *fakeBackend) CheckNow(context.Context) (bool, error) {
	f.checks++
	return f.updated, f.checkErr
}

func setupRouter(t *testing.T, backend Backend, base string) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(backend, base).Handler()
}

func doReq(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusInstalled(t *testing.T) {
	b := &fakeBackend{
		version:   "1.2.3",
		installed: true,
		status:    supervisor.Status{Running: true, PID: 4242, Restarts: 2},
	}
	h := setupRouter(t, b, "/api")
	rec := doReq(t, h, http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got statusResp
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Version != "1.2.3" || !got.Installed {
		t.Fatalf("unexpected status: %+v", got)
	}
	if !got.Miner.Running || got.Miner.PID != 4242 || got.Miner.Restarts != 2 {
		t.Fatalf("unexpected miner status: %+v", got.Miner)
	}
}

func TestStatusNotInstalled(t *testing.T) {
	h := setupRouter(t, &fakeBackend{}, "")
	rec := doReq(t, h, http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got statusResp
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Installed || got.Version != "" {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestCheckTriggersUpdate(t *testing.T) {
	b := &fakeBackend{version: "2.0.0", installed: true, updated: true}
	h := setupRouter(t, b, "")
	rec := doReq(t, h, http.MethodPost, "/check")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got checkResp
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.OK || !got.Updated || got.Version != "2.0.0" {
		t.Fatalf("unexpected check result: %+v", got)
	}
	if b.checks != 1 {
		t.Fatalf("expected 1 check, got %d", b.checks)
	}
}

func TestCheckError(t *testing.T) {
	b := &fakeBackend{checkErr: errors.New("manifest unreachable")}
	h := setupRouter(t, b, "")
	rec := doReq(t, h, http.MethodPost, "/check")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := setupRouter(t, &fakeBackend{}, "/api")
	rec := doReq(t, h, http.MethodGet, "/api/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":      "",
		"/":     "",
		"api":   "/api",
		"/api/": "/api",
		" /x ":  "/x",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Fatalf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}
