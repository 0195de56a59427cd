package runner

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
)

const (
	DefaultParallelJobs = 0
	minimumParallelJobs = 2
)

type SchedulerConfig struct {
	// ParallelJobs is the number of runs that may execute commands at the same time.
	// Zero picks a value based on the number of CPUs.
	ParallelJobs int
}

// jobSlots is a counting semaphore of job slots.
type jobSlots chan struct{}

func (s jobSlots) Acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s jobSlots) Release() {
	<-s
}

// Scheduler accepts execution plans and executes each one on its own goroutine, sharing a fixed number
// of job slots between all the plans in progress.
type Scheduler struct {
	orchestrator  *Orchestrator
	slots         jobSlots
	submitC       chan *models.ExecutionPlan
	planCompleteC chan *PlanResult
	mu            sync.Mutex
	wg            sync.WaitGroup
	state         struct {
		accepting         bool
		runningPlans      int
		exiting           bool
		exitChan          chan bool
		exitingWhenQuiet  bool
		exitWhenQuietChan chan bool
	}
	log logger.Log
}

func NewScheduler(
	orchestrator *Orchestrator,
	config SchedulerConfig,
	logFactory logger.LogFactory,
) *Scheduler {
	log := logFactory("Scheduler")
	if config.ParallelJobs <= 0 {
		config.ParallelJobs = runtime.NumCPU() / 2
		if config.ParallelJobs < minimumParallelJobs {
			config.ParallelJobs = minimumParallelJobs
		}
	}
	log.Infof("Using %d parallel jobs", config.ParallelJobs)
	return &Scheduler{
		orchestrator:  orchestrator,
		slots:         make(jobSlots, config.ParallelJobs),
		submitC:       make(chan *models.ExecutionPlan),
		planCompleteC: make(chan *PlanResult),
		log:           log,
	}
}

// Start accepting plans.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.exitChan != nil {
		return
	}

	s.log.Info("Starting...")

	s.state.accepting = true
	s.state.runningPlans = 0
	s.state.exiting = false
	s.state.exitChan = make(chan bool)
	s.state.exitingWhenQuiet = false
	s.state.exitWhenQuietChan = make(chan bool)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
}

// Stop accepting plans, cancel the plans in progress and return once they have finished.
// Cancelled runs are marked as failed.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.exitChan == nil {
		return
	}

	s.log.Info("Exiting...")
	s.state.accepting = false
	close(s.state.exitChan)
	s.wg.Wait()
	s.state.exitChan = nil
	s.state.exitWhenQuietChan = nil
}

// StopWhenQuiet stops accepting plans and returns once every plan in progress has finished.
func (s *Scheduler) StopWhenQuiet() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.exitChan == nil {
		return
	}

	s.log.Info("Waiting for quiet period and then exiting...")
	s.state.accepting = false
	close(s.state.exitWhenQuietChan)
	s.wg.Wait()
	s.state.exitChan = nil
	s.state.exitWhenQuietChan = nil
}

// Submit queues a plan for execution. Returns an error if the scheduler is not accepting plans.
func (s *Scheduler) Submit(plan *models.ExecutionPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.accepting {
		return fmt.Errorf("error scheduler is not accepting plans")
	}
	s.submitC <- plan
	return nil
}

func (s *Scheduler) loop() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		if s.state.exiting && s.state.runningPlans == 0 {
			s.log.Info("All plans complete; Exiting")
			return
		}

		if s.state.exitingWhenQuiet && s.state.runningPlans == 0 {
			s.log.Info("All plans complete and queue is empty; Exiting")
			return
		}

		var exitChan <-chan bool
		if !s.state.exiting {
			exitChan = s.state.exitChan
		}

		var exitWhenQuietChan <-chan bool
		if !s.state.exiting && !s.state.exitingWhenQuiet {
			exitWhenQuietChan = s.state.exitWhenQuietChan
		}

		select {
		case <-exitChan:
			cancel()
			s.state.exiting = true
			s.log.Infof("Exit signal received; Waiting for %d plan(s) to complete before exiting", s.state.runningPlans)
		case <-exitWhenQuietChan:
			s.state.exitingWhenQuiet = true
			s.log.Info("Exit signal received; Will exit when all plans are complete")
		case plan := <-s.submitC:
			s.state.runningPlans++
			s.log.Infof("Running plan %s for job %s; %d plan(s) now in progress", plan.ID, plan.Root, s.state.runningPlans)
			go func() {
				result, err := s.orchestrator.Run(ctx, plan, s.slots)
				if err != nil {
					s.log.Errorf("Error running plan %s: %s", plan.ID, err)
					result = &PlanResult{Plan: plan}
				}
				s.planCompleteC <- result
			}()
		case result := <-s.planCompleteC:
			s.state.runningPlans--
			if s.state.runningPlans < 0 {
				s.log.Panic("s.state.runningPlans < 0")
			}
			s.log.Infof("Plan %s complete; %d plan(s) now in progress", result.Plan.ID, s.state.runningPlans)
		}
	}
}
