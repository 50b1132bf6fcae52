package processor

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/san-kum/fencing-cv/server/models"
)

type ProcessingQueue struct {
	items      chan *QueueItem
	workers    int
	workerFunc func(*QueueItem)
	wg         sync.WaitGroup
	shutdown   chan struct{}
	isRunning  bool
	mutex      sync.RWMutex
}

type QueueItem struct {
	Ctx        context.Context
	Request    *AnalysisRequest
	Image      image.Image
	ResultChan chan *ProcessingResult
	StartTime  time.Time
}

type ProcessingResult struct {
	Response *models.AnalyzeResponse
	Error    error
}

func NewProcessingQueue(queueSize, workers int, workerFunc func(*QueueItem)) *ProcessingQueue {
	queue := &ProcessingQueue{
		items:      make(chan *QueueItem, queueSize),
		workers:    workers,
		workerFunc: workerFunc,
		shutdown:   make(chan struct{}),
		isRunning:  true,
	}

	for i := 0; i < workers; i++ {
		queue.wg.Add(1)
		go queue.worker(i)
	}

	return queue
}

func (pq *ProcessingQueue) worker(id int) {
	defer pq.wg.Done()

	for {
		select {
		case item := <-pq.items:
			if item != nil {
				pq.run(item)
			}
		case <-pq.shutdown:
			return
		}
	}
}

func (pq *ProcessingQueue) run(item *QueueItem) {
	defer func() {
		if r := recover(); r != nil {
			select {
			case item.ResultChan <- &ProcessingResult{
				Error: fmt.Errorf("worker panic: %v", r),
			}:
			default:
			}
		}
	}()

	// Skip work nobody is waiting for anymore.
	if item.Ctx != nil && item.Ctx.Err() != nil {
		item.ResultChan <- &ProcessingResult{Error: item.Ctx.Err()}
		return
	}

	pq.workerFunc(item)
}

// Enqueue never blocks; it reports false when the queue is full or stopped.
func (pq *ProcessingQueue) Enqueue(item *QueueItem) bool {
	pq.mutex.RLock()
	defer pq.mutex.RUnlock()

	if !pq.isRunning {
		return false
	}

	select {
	case pq.items <- item:
		return true
	default:
		return false
	}
}

func (pq *ProcessingQueue) Size() int {
	return len(pq.items)
}

func (pq *ProcessingQueue) Capacity() int {
	return cap(pq.items)
}

// Shutdown stops accepting work, fails anything still queued and waits for
// in-flight items.
func (pq *ProcessingQueue) Shutdown(timeout time.Duration) error {
	pq.mutex.Lock()
	if !pq.isRunning {
		pq.mutex.Unlock()
		return nil
	}
	pq.isRunning = false
	pq.mutex.Unlock()

	pq.DrainQueue()
	close(pq.shutdown)

	done := make(chan struct{})
	go func() {
		pq.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

func (pq *ProcessingQueue) DrainQueue() int {
	drained := 0

	for {
		select {
		case item := <-pq.items:
			if item != nil {
				select {
				case item.ResultChan <- &ProcessingResult{
					Error: fmt.Errorf("processing cancelled - queue shutting down"),
				}:
				default:
				}
				drained++
			}
		default:
			return drained
		}
	}
}

func (pq *ProcessingQueue) GetQueueStats() QueueStats {
	pq.mutex.RLock()
	defer pq.mutex.RUnlock()

	return QueueStats{
		CurrentSize:        pq.Size(),
		MaxCapacity:        pq.Capacity(),
		ActiveWorkers:      pq.workers,
		IsRunning:          pq.isRunning,
		UtilizationPercent: float64(pq.Size()) / float64(pq.Capacity()) * 100,
	}
}

type QueueStats struct {
	CurrentSize        int     `json:"current_size"`
	MaxCapacity        int     `json:"max_capacity"`
	ActiveWorkers      int     `json:"active_workers"`
	IsRunning          bool    `json:"is_running"`
	UtilizationPercent float64 `json:"utilization_percent"`
}
