package util

import (
	"context"
	"sync"

	"github.com/buildbeaver/depchain/common/logger"
)

// StatefulService provides standard service lifecycle routines (start/stop) for long-lived
// services that run a background goroutine.
type StatefulService struct {
	mu        sync.Mutex
	started   bool
	ctx       context.Context
	ctxCancel context.CancelFunc
	doneC     chan struct{}
	fn        func(ctx context.Context)
	log       logger.Log
}

// NewStatefulService makes a service that runs fn in the background once started. fn must return
// promptly once its context is cancelled.
func NewStatefulService(ctx context.Context, log logger.Log, fn func(ctx context.Context)) *StatefulService {
	ctx, cancel := context.WithCancel(ctx)
	return &StatefulService{
		ctx:       ctx,
		ctxCancel: cancel,
		doneC:     make(chan struct{}),
		fn:        fn,
		log:       log,
	}
}

// Ctx returns the service's context. It is cancelled when the service is stopped.
func (s *StatefulService) Ctx() context.Context {
	return s.ctx
}

// Done can be used to wait for the service to stop.
func (s *StatefulService) Done() <-chan struct{} {
	return s.doneC
}

// Start the service. Panics if called more than once.
func (s *StatefulService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.log.Panic("start can only be called once")
	}
	s.started = true
	s.log.Info("Starting...")
	go func() {
		defer close(s.doneC)
		// Cancel the context if fn returns by itself, so that anything derived from it stops too
		defer s.ctxCancel()
		s.log.Info("Started")
		s.fn(s.ctx)
	}()
}

// Stop the service. Blocks until the service has cleaned up all background goroutines and exited.
// This function is idempotent.
func (s *StatefulService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.log.Info("Stopping...")
	s.ctxCancel()
	<-s.doneC
	s.log.Info("Stopped")
}
