package httpapi

import (
	"context"
	"errors"
	"net/http"
	"os"

	"cryptostats/internal/market"
	"cryptostats/internal/market/updater"
	"cryptostats/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatsService answers the read endpoints.
type StatsService interface {
	Latest(ctx context.Context, asset string) (market.Stats, error)
	Deviation(ctx context.Context, asset string) (float64, error)
}

// CycleRunner runs a manually requested update cycle.
type CycleRunner interface {
	RunUpdateCycle(ctx context.Context, trigger updater.Trigger) ([]market.Snapshot, error)
}

// Handler holds the endpoint implementations.
type Handler struct {
	stats   StatsService
	updater CycleRunner
	logPath string
	logger  *zap.Logger
}

func NewHandler(stats StatsService, runner CycleRunner, logPath string, logger *zap.Logger) *Handler {
	return &Handler{
		stats:   stats,
		updater: runner,
		logPath: logPath,
		logger:  logger,
	}
}

// GetStats returns the latest price, market cap and 24h change for a coin.
// GET /stats?coin=bitcoin
func (h *Handler) GetStats(c *gin.Context) {
	coin := c.Query("coin")

	stats, err := h.stats.Latest(c.Request.Context(), coin)
	if err != nil {
		h.logger.Warn("stats request failed", zap.String("coin", coin), zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetDeviation returns the price standard deviation over the recent window.
// GET /deviation?coin=bitcoin
func (h *Handler) GetDeviation(c *gin.Context) {
	coin := c.Query("coin")

	deviation, err := h.stats.Deviation(c.Request.Context(), coin)
	if err != nil {
		h.logger.Warn("deviation request failed", zap.String("coin", coin), zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deviation": deviation})
}

// UpdateStats runs an update cycle and reports how many snapshots were stored.
// GET|POST /update
func (h *Handler) UpdateStats(c *gin.Context) {
	stored, err := h.updater.RunUpdateCycle(c.Request.Context(), updater.TriggerManual)
	if err != nil {
		h.logger.Error("manual update failed", zap.Error(err))
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to update crypto stats",
			Code:    codeUpdate,
			Details: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Crypto stats updated successfully",
		"count":   len(stored),
	})
}

// GetLog returns the tail of the process log as plain text.
// GET /log
func (h *Handler) GetLog(c *gin.Context) {
	if h.logPath == "" {
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Error: "Log file not found", Code: codeLogMissing})
		return
	}

	text, err := logger.Tail(h.logPath, logger.DefaultTailLines)
	if errors.Is(err, os.ErrNotExist) {
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Error: "Log file not found", Code: codeLogMissing})
		return
	}
	if err != nil {
		h.logger.Error("failed to read log file", zap.String("path", h.logPath), zap.Error(err))
		writeError(c, err)
		return
	}
	c.String(http.StatusOK, text)
}

// Health reports that the process is serving.
// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
