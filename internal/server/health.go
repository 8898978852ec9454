package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health tracks database reachability and reports it over HTTP and the gRPC health protocol.
type Health struct {
	db  Pinger
	srv *health.Server
}

func NewHealth(db Pinger) *Health {
	return &Health{
		db:  db,
		srv: health.NewServer(),
	}
}

func (h *Health) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

func (h *Health) Check(ctx context.Context) error {
	err := h.db.PingContext(ctx)
	if err != nil {
		h.srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	} else {
		h.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}
	return err
}

// Shutdown flips every service to NOT_SERVING and ignores later updates.
func (h *Health) Shutdown() {
	h.srv.Shutdown()
}

func (h *Health) Handle(c *gin.Context) {
	if err := h.Check(c.Request.Context()); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
