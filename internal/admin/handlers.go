package admin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/ringbus/internal/bus"
	"github.com/dshills/ringbus/internal/event"
)

// publishRequest is the body of POST /events.
type publishRequest struct {
	Name    string `json:"name" binding:"required,excludesall=/"`
	Tag     string `json:"tag" binding:"excludesall=/"`
	Key     string `json:"key" binding:"excludesall=/"`
	Payload any    `json:"payload"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(c *gin.Context) {
	state := s.bus.State()
	if state != bus.StateRunning {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "state": state.String()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": state.String()})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.bus.Stats())
}

func (s *Server) publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	evt := &event.Event{
		ID:      uuid.NewString(),
		Name:    req.Name,
		Tag:     req.Tag,
		Key:     req.Key,
		Payload: req.Payload,
	}
	if err := s.bus.PublishEvent(c.Request.Context(), evt); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, bus.ErrBusNotRunning):
			status = http.StatusServiceUnavailable
		case errors.Is(err, bus.ErrInsufficientCapacity), errors.Is(err, bus.ErrCapacityTimeout):
			status = http.StatusTooManyRequests
		}
		s.logger.Warn("Admin publish failed", zap.String("route", evt.Route()), zap.Error(err))
		c.JSON(status, errorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": evt.ID, "route": evt.Route()})
}
