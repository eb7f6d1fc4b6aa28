package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swpsco/nockpool-launcher/internal/supervisor"
)

// Backend is the slice of the launcher the HTTP surface needs.
type Backend interface {
	// CurrentVersion reports the installed miner version, false when no
	// version has been promoted yet.
	CurrentVersion() (string, bool)
	// MinerStatus reports the supervised child process.
	MinerStatus() supervisor.Status
	// CheckNow runs one update cycle and reports whether a new version
	// was installed.
	CheckNow(ctx context.Context) (bool, error)
}

// Router provides embeddable HTTP handlers for inspecting the launcher.
// Endpoints:
//
//	GET  {basePath}/status   current version and miner process state
//	POST {basePath}/check    run an update check immediately
//	GET  {basePath}/healthz  liveness probe
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	backend  Backend
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/status, /api/check, /api/healthz.
func NewRouter(backend Backend, basePath string) *Router {
	return &Router{backend: backend, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/check", r.handleCheck)
	group.GET("/healthz", r.handleHealthz)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// The caller shuts it down via http.Server's Shutdown or Close.
func NewServer(addr, basePath string, backend Backend) *http.Server {
	r := NewRouter(backend, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type statusResp struct {
	Version   string            `json:"version"`
	Installed bool              `json:"installed"`
	Miner     supervisor.Status `json:"miner"`
}

type checkResp struct {
	OK      bool   `json:"ok"`
	Updated bool   `json:"updated"`
	Version string `json:"version,omitempty"`
}

func (r *Router) handleStatus(c *gin.Context) {
	version, installed := r.backend.CurrentVersion()
	writeJSON(c, http.StatusOK, statusResp{
		Version:   version,
		Installed: installed,
		Miner:     r.backend.MinerStatus(),
	})
}

func (r *Router) handleCheck(c *gin.Context) {
	updated, err := r.backend.CheckNow(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	version, _ := r.backend.CurrentVersion()
	writeJSON(c, http.StatusOK, checkResp{OK: true, Updated: updated, Version: version})
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
