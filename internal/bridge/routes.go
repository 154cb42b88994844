package bridge

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/groundctl/internal/auth"
	"github.com/danmuck/groundctl/internal/logs"
	"github.com/danmuck/groundctl/internal/protocol/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type commandRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

type gotoRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  *float64 `json:"altitude"`
}

type waypointsRequest struct {
	Waypoints []session.Waypoint `json:"waypoints"`
}

func (b *Bridge) registerRoutes(v auth.Validator) {
	r := b.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(b.appeared).String(),
			"component": "groundctl-bridge",
			"version":   Version,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/")
	if v != nil {
		api.Use(requireToken(v))
	}

	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, b.status())
	})

	api.POST("/connect", func(c *gin.Context) {
		s, err := b.connect(c.Request.Context())
		if err != nil {
			status := http.StatusBadGateway
			if s == nil {
				status = http.StatusInternalServerError
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
			}
			c.JSON(status, gin.H{"error": err.Error(), "status": b.status()})
			return
		}
		c.JSON(http.StatusOK, b.status())
	})

	api.POST("/disconnect", func(c *gin.Context) {
		b.disconnect()
		c.JSON(http.StatusOK, b.status())
	})

	api.POST("/commands", func(c *gin.Context) {
		var req commandRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s := b.Session()
		if s == nil {
			respondError(c, session.ErrNotConnected)
			return
		}
		if err := s.SendCommand(req.Command, req.Params); err != nil {
			respondError(c, err)
			return
		}
		commandID, _ := req.Params["commandId"].(string)
		b.track(commandID, strings.TrimSpace(req.Command))
		c.JSON(http.StatusAccepted, gin.H{"status": "sent", "command": strings.TrimSpace(req.Command), "commandId": commandID})
	})

	api.POST("/commands/goto", func(c *gin.Context) {
		var req gotoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Latitude == nil || req.Longitude == nil {
			respondError(c, session.ErrInvalidCoordinates)
			return
		}
		alt := session.DefaultAltitude
		if req.Altitude != nil {
			alt = *req.Altitude
		}
		s := b.Session()
		if s == nil {
			respondError(c, session.ErrNotConnected)
			return
		}
		id, err := s.SendGoToLocation(*req.Latitude, *req.Longitude, alt)
		if err != nil {
			respondError(c, err)
			return
		}
		b.track(id, session.FrameGoToLocation)
		c.JSON(http.StatusAccepted, gin.H{"status": "sent", "command": session.FrameGoToLocation, "commandId": id})
	})

	api.POST("/commands/waypoints", func(c *gin.Context) {
		var req waypointsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s := b.Session()
		if s == nil {
			respondError(c, session.ErrNotConnected)
			return
		}
		id, err := s.SendExecuteWaypoints(req.Waypoints)
		if err != nil {
			respondError(c, err)
			return
		}
		b.track(id, session.FrameExecuteWaypoints)
		c.JSON(http.StatusAccepted, gin.H{
			"status":         "sent",
			"command":        session.FrameExecuteWaypoints,
			"commandId":      id,
			"totalWaypoints": len(req.Waypoints),
		})
	})

	api.GET("/commands", func(c *gin.Context) {
		items := b.outbox.List()
		if raw := strings.TrimSpace(c.Query("answered")); raw != "" {
			want, err := strconv.ParseBool(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "answered must be a boolean"})
				return
			}
			filtered := items[:0]
			for _, item := range items {
				if item.Answered() == want {
					filtered = append(filtered, item)
				}
			}
			items = filtered
		}
		c.JSON(http.StatusOK, gin.H{"commands": items})
	})

	api.GET("/commands/:id", func(c *gin.Context) {
		item, ok := b.outbox.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "command not found"})
			return
		}
		c.JSON(http.StatusOK, item)
	})

	api.DELETE("/commands/:id", func(c *gin.Context) {
		if !b.outbox.Remove(c.Param("id")) {
			c.JSON(http.StatusNotFound, gin.H{"error": "command not found"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.GET("/messages", func(c *gin.Context) {
		msgs := b.Recent(queryLimit(c, 0))
		out := make([]any, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, m.Raw())
		}
		c.JSON(http.StatusOK, gin.H{"messages": out})
	})

	api.GET("/flightlog", func(c *gin.Context) {
		if b.journal == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "flight log disabled"})
			return
		}
		ctx := c.Request.Context()
		var (
			entries any
			err     error
		)
		if id := strings.TrimSpace(c.Query("commandId")); id != "" {
			entries, err = b.journal.ByCommandID(ctx, id)
		} else {
			entries, err = b.journal.Recent(ctx, queryLimit(c, 50))
		}
		if err != nil {
			logs.Errf("bridge.Bridge.flightlog query failed err=%v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	})
}

func (b *Bridge) track(commandID, command string) {
	if commandID == "" {
		return
	}
	b.outbox.Track(PendingCommand{CommandID: commandID, Type: command, SentAt: time.Now()})
}

func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.CheckHeader(v, c.GetHeader("Authorization")); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidCommand),
		errors.Is(err, session.ErrInvalidCoordinates),
		errors.Is(err, session.ErrAltitudeOutOfRange),
		errors.Is(err, session.ErrTooFewWaypoints):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func queryLimit(c *gin.Context, fallback int) int {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
