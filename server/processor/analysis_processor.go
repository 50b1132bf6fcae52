package processor

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/fencing-cv/server/analysis"
	"github.com/san-kum/fencing-cv/server/cache"
	"github.com/san-kum/fencing-cv/server/models"
	"github.com/san-kum/fencing-cv/server/pose"
	"github.com/san-kum/fencing-cv/server/render"
	"go.uber.org/zap"
)

var (
	ErrQueueFull         = errors.New("processing queue full, try again later")
	ErrProcessingTimeout = errors.New("processing timeout")
)

// Analyzer is satisfied by *analysis.Orchestrator.
type Analyzer interface {
	Analyze(ctx context.Context, img image.Image, stance pose.Stance) (*analysis.Result, error)
}

// History records finished analyses. *store.Store implements it.
type History interface {
	Save(ctx context.Context, record *models.AnalysisRecord) error
}

// AnalysisProcessor runs uploaded stills through decode, analysis, rendering
// and encoding on a bounded worker pool. Responses are cached by image hash
// and stance.
type AnalysisProcessor struct {
	analyzer Analyzer
	renderer *render.Renderer
	cache    cache.Cache
	history  History
	logger   *zap.Logger
	queue    *ProcessingQueue
	stats    *ProcessorStats
	config   *ProcessorConfig
	mutex    sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
}

type ProcessorStats struct {
	StartTime             time.Time        `json:"start_time"`
	TotalProcessed        int64            `json:"total_processed"`
	SuccessfullyProcessed int64            `json:"successfully_processed"`
	NoPoseDetected        int64            `json:"no_pose_detected"`
	FailedProcessed       int64            `json:"failed_processed"`
	CacheHits             int64            `json:"cache_hits"`
	AverageLatency        float64          `json:"average_latency_ms"`
	QueueSize             int              `json:"queue_size"`
	ActiveWorkers         int              `json:"active_workers"`
	ByPoseType            map[string]int64 `json:"by_pose_type"`
}

type ProcessorConfig struct {
	MaxQueueSize      int           `json:"max_queue_size"`
	MaxWorkers        int           `json:"max_workers"`
	ProcessingTimeout time.Duration `json:"processing_timeout"`
	JPEGQuality       int           `json:"jpeg_quality"`
}

func DefaultProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{
		MaxQueueSize:      64,
		MaxWorkers:        4,
		ProcessingTimeout: 45 * time.Second,
		JPEGQuality:       90,
	}
}

type AnalysisRequest struct {
	ImageData []byte
	PoseType  pose.Stance
	ClientID  string
}

// NewAnalysisProcessor wires the pipeline. cache and history may be nil.
func NewAnalysisProcessor(analyzer Analyzer, renderer *render.Renderer, cache cache.Cache, history History, config *ProcessorConfig, logger *zap.Logger) *AnalysisProcessor {
	if config == nil {
		config = DefaultProcessorConfig()
	}

	stats := &ProcessorStats{
		StartTime:     time.Now(),
		ActiveWorkers: config.MaxWorkers,
		ByPoseType:    make(map[string]int64),
	}

	ctx, cancel := context.WithCancel(context.Background())

	processor := &AnalysisProcessor{
		analyzer: analyzer,
		renderer: renderer,
		cache:    cache,
		history:  history,
		logger:   logger,
		stats:    stats,
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
	}

	processor.queue = NewProcessingQueue(config.MaxQueueSize, config.MaxWorkers, processor.processAnalysis)

	return processor
}

// Process analyzes one still. The response is non-nil whenever the image
// decoded, including analysis failures, so callers can report the status.
func (p *AnalysisProcessor) Process(ctx context.Context, request *AnalysisRequest) (*models.AnalyzeResponse, error) {
	startTime := time.Now()

	if !request.PoseType.Valid() {
		return nil, fmt.Errorf("%w: %q", pose.ErrInvalidStance, string(request.PoseType))
	}

	img, format, err := DecodeImage(request.ImageData)
	if err != nil {
		return nil, err
	}

	p.mutex.Lock()
	p.stats.TotalProcessed++
	p.stats.ByPoseType[string(request.PoseType)]++
	p.mutex.Unlock()

	imageHash := fmt.Sprintf("%x", md5.Sum(request.ImageData))
	cacheKey := cache.GenerateCacheKey("analysis", imageHash, string(request.PoseType))

	if p.cache != nil {
		var cached models.AnalyzeResponse
		if err := p.cache.Get(ctx, cacheKey, &cached); err == nil {
			p.logger.Debug("Cache hit for analysis", zap.String("key", cacheKey))
			p.recordOutcome(cached.Status, time.Since(startTime), true)
			cached.Cached = true
			cached.ProcessingTime = float64(time.Since(startTime).Microseconds()) / 1000
			return &cached, nil
		}
	}

	resultChan := make(chan *ProcessingResult, 1)
	queueItem := &QueueItem{
		Ctx:        ctx,
		Request:    request,
		Image:      img,
		ResultChan: resultChan,
		StartTime:  startTime,
	}

	if !p.queue.Enqueue(queueItem) {
		p.recordOutcome(string(analysis.StatusAnalysisFailure), 0, false)
		return nil, ErrQueueFull
	}

	timer := time.NewTimer(p.config.ProcessingTimeout)
	defer timer.Stop()

	select {
	case result := <-resultChan:
		latency := time.Since(startTime)
		if result.Response == nil {
			p.recordOutcome(string(analysis.StatusAnalysisFailure), latency, false)
			return nil, result.Error
		}

		response := result.Response
		response.ProcessingTime = float64(latency.Microseconds()) / 1000
		p.recordOutcome(response.Status, latency, false)

		if result.Error != nil {
			return response, result.Error
		}

		p.logger.Info("Analysis complete",
			zap.String("analysis_id", response.AnalysisID),
			zap.String("pose_type", response.PoseType),
			zap.String("status", response.Status),
			zap.String("format", format),
			zap.Int("feedback", len(response.Feedback)),
			zap.Duration("latency", latency))

		p.remember(ctx, request, imageHash, img.Bounds(), cacheKey, response)

		return response, nil

	case <-timer.C:
		p.recordOutcome(string(analysis.StatusAnalysisFailure), 0, false)
		return nil, ErrProcessingTimeout

	case <-ctx.Done():
		p.recordOutcome(string(analysis.StatusAnalysisFailure), 0, false)
		return nil, ctx.Err()
	}
}

func (p *AnalysisProcessor) processAnalysis(item *QueueItem) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Analysis processing panic", zap.Any("panic", r))
			item.ResultChan <- &ProcessingResult{
				Error: fmt.Errorf("processing failed: %v", r),
			}
		}
	}()

	ctx := item.Ctx
	if ctx == nil {
		ctx = p.ctx
	}

	result, err := p.analyzer.Analyze(ctx, item.Image, item.Request.PoseType)
	if result == nil {
		item.ResultChan <- &ProcessingResult{Error: err}
		return
	}

	response, buildErr := p.buildResponse(item.Image, result)
	if buildErr != nil {
		item.ResultChan <- &ProcessingResult{Error: buildErr}
		return
	}

	if err != nil {
		p.logger.Error("Pose analysis failed",
			zap.String("pose_type", string(item.Request.PoseType)),
			zap.Error(err))
	}

	item.ResultChan <- &ProcessingResult{Response: response, Error: err}
}

func (p *AnalysisProcessor) buildResponse(img image.Image, result *analysis.Result) (*models.AnalyzeResponse, error) {
	response := &models.AnalyzeResponse{
		Success:  result.Status != analysis.StatusAnalysisFailure,
		Feedback: result.Feedback,
		PoseType: string(result.Stance),
		Status:   string(result.Status),
	}

	if result.Status == analysis.StatusAnalysisFailure {
		response.Error = fmt.Sprintf("Analysis failed: %s", result.Reason)
		return response, nil
	}

	original, err := EncodeDataURI(img, p.config.JPEGQuality)
	if err != nil {
		return nil, err
	}
	response.OriginalImage = original
	response.AnnotatedImage = original

	if result.Status == analysis.StatusSuccess {
		annotated, err := EncodeDataURI(p.renderer.Render(img, result.Instructions), p.config.JPEGQuality)
		if err != nil {
			return nil, err
		}
		response.AnnotatedImage = annotated
		response.Annotations = result.Instructions
		response.Angles = make(map[string]float64, len(result.Angles))
		for name, value := range result.Angles {
			response.Angles[string(name)] = value
		}
		response.Facing = models.FacingLeft
		if result.FacingRight {
			response.Facing = models.FacingRight
		}
	}

	return response, nil
}

// remember stores the response in history and the cache. Failures here are
// logged and never fail the request.
func (p *AnalysisProcessor) remember(ctx context.Context, request *AnalysisRequest, imageHash string, bounds image.Rectangle, cacheKey string, response *models.AnalyzeResponse) {
	record := &models.AnalysisRecord{
		PoseType:  response.PoseType,
		Status:    response.Status,
		Feedback:  response.Feedback,
		Angles:    response.Angles,
		Facing:    response.Facing,
		ImageHash: imageHash,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		ClientID:  request.ClientID,
	}

	if p.history != nil {
		if err := p.history.Save(context.WithoutCancel(ctx), record); err != nil {
			p.logger.Warn("Failed to save analysis history", zap.Error(err))
		}
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	response.AnalysisID = record.ID

	if p.cache != nil {
		if err := p.cache.Set(p.ctx, cacheKey, *response); err != nil {
			p.logger.Warn("Failed to cache result", zap.Error(err))
		}
	}
}

func (p *AnalysisProcessor) recordOutcome(status string, latency time.Duration, cached bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	switch analysis.Status(status) {
	case analysis.StatusSuccess:
		p.stats.SuccessfullyProcessed++
	case analysis.StatusNoPoseDetected:
		p.stats.NoPoseDetected++
	default:
		p.stats.FailedProcessed++
	}

	if cached {
		p.stats.CacheHits++
	}
	if latency > 0 {
		p.updateLatencyStats(latency)
	}
}

func (p *AnalysisProcessor) updateLatencyStats(latency time.Duration) {
	currentLatency := float64(latency.Milliseconds())

	if p.stats.AverageLatency == 0 {
		p.stats.AverageLatency = currentLatency
	} else {
		alpha := 0.1
		p.stats.AverageLatency = alpha*currentLatency + (1-alpha)*p.stats.AverageLatency
	}
}

func (p *AnalysisProcessor) GetStats() *ProcessorStats {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	stats := *p.stats
	stats.ByPoseType = make(map[string]int64, len(p.stats.ByPoseType))
	for k, v := range p.stats.ByPoseType {
		stats.ByPoseType[k] = v
	}
	stats.QueueSize = p.queue.Size()
	return &stats
}

func (p *AnalysisProcessor) GetQueueStats() QueueStats {
	return p.queue.GetQueueStats()
}

func (p *AnalysisProcessor) GetCacheStats(ctx context.Context) (*cache.CacheStats, error) {
	if p.cache == nil {
		return nil, fmt.Errorf("cache not initialized")
	}

	return p.cache.GetStats(ctx)
}

// Shutdown gracefully shuts down the processor. The cache is owned by the
// caller and left open.
func (p *AnalysisProcessor) Shutdown() error {
	p.logger.Info("Shutting down analysis processor...")

	p.cancel()

	if err := p.queue.Shutdown(30 * time.Second); err != nil {
		p.logger.Error("Failed to shutdown queue", zap.Error(err))
		return err
	}

	p.logger.Info("Analysis processor shutdown complete")
	return nil
}
