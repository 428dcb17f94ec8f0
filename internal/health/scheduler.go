package health

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sudharshan/ppe-monitor/internal/data"
)

type SchedulerConfig struct {
	Interval       time.Duration
	WorkerPoolSize int
}

// Scheduler dispatches a probe for every probeable camera each interval
// onto a fixed worker pool. Dispatch never blocks: a full queue drops
// the camera until the next tick, and cameras already failing back off
// exponentially so a dead fleet doesn't hammer the network.
type Scheduler struct {
	config  SchedulerConfig
	service *Service
	quit    chan struct{}
	wg      sync.WaitGroup
}

func NewScheduler(cfg SchedulerConfig, svc *Service) *Scheduler {
	if cfg.Interval == 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.WorkerPoolSize == 0 {
		cfg.WorkerPoolSize = 50
	}
	return &Scheduler{
		config:  cfg,
		service: svc,
		quit:    make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Scheduler) Stop() {
	close(s.quit)
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	jobs := make(chan data.CameraHealthTarget, s.config.WorkerPoolSize*2)
	for i := 0; i < s.config.WorkerPoolSize; i++ {
		s.wg.Add(1)
		go s.worker(jobs)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.dispatch(jobs)
	for {
		select {
		case <-ticker.C:
			s.dispatch(jobs)
		case <-s.quit:
			close(jobs)
			return
		}
	}
}

func (s *Scheduler) worker(jobs <-chan data.CameraHealthTarget) {
	defer s.wg.Done()
	ctx := context.Background()

	for job := range jobs {
		// Jitter spreads simultaneous probes off the tick edge.
		time.Sleep(time.Duration(rand.Intn(1000)) * time.Millisecond)
		s.service.PerformCheck(ctx, job.TenantID, job.CameraID, job.StreamSource)
	}
}

func (s *Scheduler) dispatch(queue chan<- data.CameraHealthTarget) {
	targets, err := s.service.ListTargets(context.Background())
	if err != nil {
		return
	}

	for _, t := range targets {
		if s.inBackoff(t) {
			continue
		}
		select {
		case queue <- t:
		default:
			// Queue full; the camera waits for the next tick.
		}
	}
}

// inBackoff holds failing cameras at 60s, then 120s, then 300s between
// probes; healthy cameras probe every tick.
func (s *Scheduler) inBackoff(t data.CameraHealthTarget) bool {
	if t.Status == data.HealthStatusOnline {
		return false
	}

	backoff := 60 * time.Second
	if t.ConsecutiveFailures > 5 {
		backoff = 300 * time.Second
	} else if t.ConsecutiveFailures > 1 {
		backoff = 120 * time.Second
	}
	return time.Now().Before(t.LastCheckedAt.Add(backoff))
}
