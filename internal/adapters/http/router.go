package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/Callhub/internal/adapters/signal"
	"github.com/dkeye/Callhub/internal/app/orch"
	"github.com/dkeye/Callhub/internal/config"
	"github.com/dkeye/Callhub/internal/domain"
	"github.com/dkeye/Callhub/internal/platform/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const queryTimeout = 2 * time.Second

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ctrl *signal.SignalWSController, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	}

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	api.GET("/online", func(c *gin.Context) {
		qctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
		defer cancel()
		ids, err := o.OnlineUsers(qctx)
		if err != nil {
			unavailable(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"userIds": ids})
	})

	api.GET("/users/:id/presence", func(c *gin.Context) {
		user, err := domain.ParseUserID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		qctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
		defer cancel()
		view, err := o.UserPresence(qctx, user)
		if err != nil {
			unavailable(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	})

	api.GET("/conversations/:id/members", func(c *gin.Context) {
		conv := domain.ConversationID(c.Param("id"))
		qctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
		defer cancel()
		ids, err := o.ConversationMembers(qctx, conv)
		if err != nil {
			unavailable(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversationId": conv, "userIds": ids})
	})

	return r
}

func unavailable(c *gin.Context, err error) {
	log.Warn().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("dispatcher query failed")
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
}
