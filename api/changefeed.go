package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"careplan-api/domain"
)

// changeJob is one batch of change records headed for the change queue.
// Changes are notifications for downstream consumers; the mutation itself is
// already durable in table storage by the time a job is created, so a lost
// job degrades freshness, not correctness.
type changeJob struct {
	agencyID string
	userID   string
	changes  []domain.Change
}

type changeSender struct {
	store  Storage
	logger *log.Logger

	jobs           chan changeJob
	workerWG       sync.WaitGroup
	enqueueTimeout time.Duration
	handoffTimeout time.Duration
}

var (
	senderOnce   sync.Once
	globalSender *changeSender
)

func initChangeSender(store Storage, logger *log.Logger) {
	senderOnce.Do(func() {
		if logger == nil {
			panic("logger is not initialized")
		}
		s := &changeSender{
			store:          store,
			logger:         logger,
			jobs:           make(chan changeJob, envInt("CHANGE_BUFFER", 4096)),
			enqueueTimeout: envDur("CHANGE_ENQUEUE_TIMEOUT", 60*time.Second),
			handoffTimeout: envDur("CHANGE_HANDOFF_TIMEOUT", 15*time.Millisecond),
		}
		workers := envInt("CHANGE_WORKERS", 16)
		if workers <= 0 {
			workers = 1
		}
		for i := 0; i < workers; i++ {
			s.workerWG.Add(1)
			go s.worker(i)
		}
		globalSender = s
		logger.Infof("change sender started, workers: %d, buffer: %d", workers, cap(s.jobs))
	})
}

// shutdownChangeSender stops worker goroutines and clears shared state. It
// is intended for tests.
func shutdownChangeSender() {
	if globalSender != nil {
		close(globalSender.jobs)
		globalSender.workerWG.Wait()
	}
	globalSender = nil
	senderOnce = sync.Once{}
}

func (s *changeSender) worker(id int) {
	defer s.workerWG.Done()
	for job := range s.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), s.enqueueTimeout)
		err := s.store.EnqueueChanges(ctx, job.agencyID, job.userID, job.changes)
		cancel()
		if err != nil {
			s.logger.Errorf("change enqueue failed, err: %v, agency: %s, count: %d, worker: %d",
				err, job.agencyID, len(job.changes), id)
		}
	}
}

// dispatchChanges sends change records to the queue, preferring the worker
// pool and falling back to an inline enqueue when the buffer is saturated.
// Failures are logged and dropped; the mutation behind the change is already
// durable.
func dispatchChanges(store Storage, logger *log.Logger, job changeJob) {
	if len(job.changes) == 0 {
		return
	}
	if tryEnqueueChanges(job) {
		return
	}

	timeout := 60 * time.Second
	if s := globalSender; s != nil {
		timeout = s.enqueueTimeout
		if logger != nil {
			logger.Warn("change buffer saturated; enqueueing inline")
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := store.EnqueueChanges(ctx, job.agencyID, job.userID, job.changes); err != nil && logger != nil {
		logger.Errorf("inline change enqueue failed, err: %v, agency: %s", err, job.agencyID)
	}
}

// tryEnqueueChanges hands the job to a worker, waiting at most the handoff
// timeout when the buffer is full. It returns false when the job must be
// processed inline by the caller.
func tryEnqueueChanges(job changeJob) bool {
	s := globalSender
	if s == nil {
		return false
	}

	select {
	case s.jobs <- job:
		return true
	default:
	}
	if s.handoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(s.handoffTimeout)
	defer timer.Stop()
	select {
	case s.jobs <- job:
		return true
	case <-timer.C:
		return false
	}
}
