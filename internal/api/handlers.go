package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultDecisionLimit = 20

func (s *Server) handleHealth(c *gin.Context) {
	st := s.engine.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"running": st.Running,
		"clients": s.hub.ClientCount(),
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	successResponse(c, s.engine.Status())
}

func (s *Server) handleDecisions(c *gin.Context) {
	limit := defaultDecisionLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			errorResponse(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	successResponse(c, s.engine.RecentDecisions(limit))
}

func (s *Server) handleScalingState(c *gin.Context) {
	index := strings.ToUpper(c.Param("index"))
	state, ok := s.engine.ScalingState(c.Request.Context(), index)
	if !ok {
		errorResponse(c, http.StatusNotFound, fmt.Sprintf("no active scaling streak for %s", index))
		return
	}
	successResponse(c, state)
}

func (s *Server) handleSelection(c *gin.Context) {
	selection := s.engine.LastSelection()
	if selection == nil {
		errorResponse(c, http.StatusNotFound, "no selection pass has completed yet")
		return
	}
	successResponse(c, selection)
}

func (s *Server) handleBreakerTrip(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	// Body is optional, a bare POST trips with a stock reason.
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "manual trip via API"
	}

	s.breaker.Trip(req.Reason)
	s.logger.Warn().Str("reason", req.Reason).Msg("Breaker tripped via API")
	successResponse(c, s.breaker.Stats())
}

func (s *Server) handleBreakerReset(c *gin.Context) {
	s.breaker.Reset()
	s.logger.Info().Msg("Breaker reset via API")
	successResponse(c, s.breaker.Stats())
}
