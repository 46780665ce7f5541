// Package api serves the read-only operator API. Mutations stay on the
// file inbox; everything here is observational, so every route is a GET.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/showrunner-io/showrunner/pkg/cron"
	"github.com/showrunner-io/showrunner/pkg/database"
	"github.com/showrunner-io/showrunner/pkg/sched"
	"github.com/showrunner-io/showrunner/pkg/services"
)

// SystemStatus is the daemon runtime snapshot served by /system/status.
type SystemStatus struct {
	Instance      string                   `json:"instance"`
	Version       string                   `json:"version"`
	StartedAt     time.Time                `json:"started_at"`
	LastHeartbeat time.Time                `json:"last_heartbeat"`
	Scheduler     sched.RunnerHealth       `json:"scheduler"`
	Jobs          []cron.EntryInfo         `json:"jobs"`
	Warnings      []services.SystemWarning `json:"warnings,omitempty"`
}

// StatusSource reports daemon runtime state. Satisfied by
// *orchestrator.Orchestrator.
type StatusSource interface {
	SystemStatus(ctx context.Context) SystemStatus
}

// Deps wires the API server's read paths.
type Deps struct {
	DB         *database.Client
	Approvals  *services.ApprovalService
	Schedules  *services.ScheduleService
	Plans      *services.PlanService
	Research   *services.ResearchService
	KillSwitch *services.KillSwitchService
	Status     StatusSource
}

// Server is the HTTP observability surface.
type Server struct {
	deps   Deps
	router *gin.Engine
	http   *http.Server
}

// NewServer creates the API server and registers all routes.
func NewServer(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{deps: deps}
	router := gin.New()
	router.Use(requestLogger(), gin.Recovery(), securityHeaders())

	router.GET("/health", s.healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.GET("/approvals", s.listApprovals)
	v1.GET("/approvals/stats", s.approvalStats)
	v1.GET("/approvals/:id", s.getApproval)
	v1.GET("/approvals/:id/preview", s.approvalPreview)
	v1.GET("/schedule/pending", s.pendingSchedule)
	v1.GET("/schedule/upcoming", s.upcomingSchedule)
	v1.GET("/plan/today", s.todayPlan)
	v1.GET("/killswitch", s.killSwitchState)
	v1.GET("/digests", s.listDigests)
	v1.GET("/system/status", s.systemStatus)

	s.router = router
	return s
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves on addr until Shutdown. Blocks; returns nil after a clean
// shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("API server listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
