package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/san-kum/fencing-cv/server/analysis"
	"github.com/san-kum/fencing-cv/server/models"
	"github.com/san-kum/fencing-cv/server/pose"
	"github.com/san-kum/fencing-cv/server/processor"
	"github.com/san-kum/fencing-cv/server/store"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryReader is the read side of the analysis history. *store.Store
// implements it.
type HistoryReader interface {
	Get(ctx context.Context, id string) (*models.AnalysisRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*models.AnalysisRecord, error)
	Summary(ctx context.Context) (*models.HistorySummary, error)
}

type AnalyzeHandler struct {
	processor   *processor.AnalysisProcessor
	history     HistoryReader
	logger      *zap.Logger
	defaultPose pose.Stance
	stats       *SystemStats
	mutex       sync.Mutex
}

type SystemStats struct {
	TotalRequests  int64     `json:"total_requests"`
	ProcessedOK    int64     `json:"processed_ok"`
	ProcessedError int64     `json:"processed_error"`
	AvgProcessTime float64   `json:"avg_process_time_ms"`
	LastUpdated    time.Time `json:"last_updated"`
}

// NewAnalyzeHandler builds the REST handlers. history may be nil when the
// history database is disabled.
func NewAnalyzeHandler(processor *processor.AnalysisProcessor, history HistoryReader, defaultPose pose.Stance, logger *zap.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		processor:   processor,
		history:     history,
		logger:      logger,
		defaultPose: defaultPose,
		stats: &SystemStats{
			LastUpdated: time.Now(),
		},
	}
}

// Analyze handles the multipart form upload: an "image" file and an
// optional "pose_type" field.
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	startTime := time.Now()

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.fail(c, http.StatusRequestEntityTooLarge, "Request too large")
			return
		}
		h.fail(c, http.StatusBadRequest, "No image file provided")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		h.fail(c, http.StatusBadRequest, "No image file selected")
		return
	}

	stance, err := h.parsePoseType(c.PostForm("pose_type"))
	if err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Sprintf("Invalid pose type: %q", c.PostForm("pose_type")))
		return
	}

	imageData, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read uploaded file", zap.Error(err))
		h.fail(c, http.StatusBadRequest, "Failed to read image file")
		return
	}

	h.run(c, startTime, &processor.AnalysisRequest{
		ImageData: imageData,
		PoseType:  stance,
		ClientID:  clientID(c),
	})
}

// AnalyzeFrame handles a JSON body carrying the image as a data URL.
func (h *AnalyzeHandler) AnalyzeFrame(c *gin.Context) {
	startTime := time.Now()

	var request models.AnalyzeFrameRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.ImageData == "" {
		h.fail(c, http.StatusBadRequest, "No image data provided")
		return
	}

	stance, err := h.parsePoseType(request.PoseType)
	if err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Sprintf("Invalid pose type: %q", request.PoseType))
		return
	}

	imageData, err := processor.DecodeDataURL(request.ImageData)
	if err != nil {
		h.fail(c, http.StatusBadRequest, "Invalid image data")
		return
	}

	id := request.ClientID
	if id == "" {
		id = clientID(c)
	}

	h.run(c, startTime, &processor.AnalysisRequest{
		ImageData: imageData,
		PoseType:  stance,
		ClientID:  id,
	})
}

func (h *AnalyzeHandler) run(c *gin.Context, startTime time.Time, request *processor.AnalysisRequest) {
	response, err := h.processor.Process(c.Request.Context(), request)
	if err != nil {
		status, message := errorStatus(err)
		h.logger.Error("Analysis failed",
			zap.Error(err),
			zap.String("pose_type", string(request.PoseType)),
			zap.String("client_ip", c.ClientIP()))

		h.record(false, time.Since(startTime))
		if response != nil {
			c.JSON(status, response)
			return
		}
		c.JSON(status, models.ErrorResponse{Success: false, Error: message})
		return
	}

	h.record(true, time.Since(startTime))
	c.JSON(http.StatusOK, response)
}

// errorStatus maps pipeline errors onto HTTP statuses and client messages.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, processor.ErrInvalidImage):
		return http.StatusBadRequest, "Invalid image file"
	case errors.Is(err, pose.ErrInvalidStance):
		return http.StatusBadRequest, "Invalid pose type"
	case errors.Is(err, processor.ErrQueueFull):
		return http.StatusTooManyRequests, "Server busy, try again later"
	case errors.Is(err, analysis.ErrUpstreamAnalysis):
		return http.StatusBadGateway, fmt.Sprintf("Analysis failed: %v", err)
	case errors.Is(err, processor.ErrProcessingTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Analysis timed out"
	default:
		return http.StatusInternalServerError, fmt.Sprintf("Analysis failed: %v", err)
	}
}

// clientID prefers the authenticated username set by OptionalAuth.
func clientID(c *gin.Context) string {
	if username := c.GetString("username"); username != "" {
		return username
	}
	return c.ClientIP()
}

func (h *AnalyzeHandler) parsePoseType(value string) (pose.Stance, error) {
	if value == "" {
		return h.defaultPose, nil
	}
	return pose.ParseStance(value)
}

func (h *AnalyzeHandler) ListAnalyses(c *gin.Context) {
	if h.history == nil {
		h.fail(c, http.StatusServiceUnavailable, "Analysis history is disabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.fail(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}

	records, err := h.history.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list analyses", zap.Error(err))
		h.fail(c, http.StatusInternalServerError, "Failed to load history")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"analyses": records,
		"count":    len(records),
	})
}

func (h *AnalyzeHandler) GetAnalysis(c *gin.Context) {
	if h.history == nil {
		h.fail(c, http.StatusServiceUnavailable, "Analysis history is disabled")
		return
	}

	record, err := h.history.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		h.fail(c, http.StatusNotFound, "Analysis not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load analysis", zap.Error(err))
		h.fail(c, http.StatusInternalServerError, "Failed to load analysis")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "analysis": record})
}

func (h *AnalyzeHandler) GetStats(c *gin.Context) {
	h.mutex.Lock()
	h.stats.LastUpdated = time.Now()
	system := *h.stats
	h.mutex.Unlock()

	var successRate, errorRate float64
	if system.TotalRequests > 0 {
		successRate = float64(system.ProcessedOK) / float64(system.TotalRequests) * 100
		errorRate = float64(system.ProcessedError) / float64(system.TotalRequests) * 100
	}

	processorStats := h.processor.GetStats()

	response := gin.H{
		"system":    system,
		"processor": processorStats,
		"queue":     h.processor.GetQueueStats(),
		"metrics": gin.H{
			"success_rate":   successRate,
			"error_rate":     errorRate,
			"uptime_seconds": time.Since(processorStats.StartTime).Seconds(),
		},
	}

	if h.history != nil {
		if summary, err := h.history.Summary(c.Request.Context()); err == nil {
			response["history"] = summary
		} else {
			h.logger.Warn("Failed to summarize history", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, response)
}

func (h *AnalyzeHandler) GetCacheStats(c *gin.Context) {
	stats, err := h.processor.GetCacheStats(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cache": stats})
}

func (h *AnalyzeHandler) fail(c *gin.Context, status int, message string) {
	c.JSON(status, models.ErrorResponse{Success: false, Error: message})
}

func (h *AnalyzeHandler) record(ok bool, duration time.Duration) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.stats.TotalRequests++
	if !ok {
		h.stats.ProcessedError++
		return
	}
	h.stats.ProcessedOK++

	currentTime := float64(duration.Milliseconds())
	if h.stats.AvgProcessTime == 0 {
		h.stats.AvgProcessTime = currentTime
	} else {
		alpha := 0.1
		h.stats.AvgProcessTime = alpha*currentTime + (1-alpha)*h.stats.AvgProcessTime
	}
}
