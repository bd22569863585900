// Package notification delivers member-facing alerts to every configured
// channel: web push, FCM and the desktop.
package notification

import (
	"context"
	"log"
)

// Job is one alert to deliver.
type Job struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	// URL is opened when the alert is clicked.
	URL string `json:"url,omitempty"`
	// Tag lets receivers collapse repeated alerts about the same thing.
	Tag string `json:"tag,omitempty"`
}

// Sender delivers a job over one channel.
type Sender interface {
	Name() string
	Deliver(ctx context.Context, job Job) error
}

// WorkerPool manages a pool of workers for delivering alerts.
type WorkerPool struct {
	size    int
	jobs    chan Job
	senders []Sender
	log     *log.Logger
}

// NewWorkerPool creates a new worker pool delivering to senders.
func NewWorkerPool(size int, logger *log.Logger, senders ...Sender) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size*16),
		senders: senders,
		log:     logger,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Printf("[DEBUG] Worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			wp.deliver(ctx, job)
		case <-ctx.Done():
			wp.log.Printf("[DEBUG] Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a job. Jobs are dropped with a warning when the queue is
// full so callers on the event path never block.
func (wp *WorkerPool) Dispatch(job Job) {
	select {
	case wp.jobs <- job:
	default:
		wp.log.Printf("[WARN] Delivery queue full, dropping %q", job.Title)
	}
}

func (wp *WorkerPool) deliver(ctx context.Context, job Job) {
	for _, s := range wp.senders {
		if err := s.Deliver(ctx, job); err != nil {
			wp.log.Printf("[ERROR] %s delivery of %q failed: %v", s.Name(), job.Title, err)
		}
	}
}
