package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/common/util"
	"github.com/buildbeaver/depchain/server/dto"
	"github.com/buildbeaver/depchain/server/services"
)

const (
	DefaultRunTimeout          = 2 * time.Hour
	defaultTimeoutPollInterval = 5 * time.Minute
)

// timeoutCheck is an object that can be sent to the timeout checker to request that all unfinished
// runs are checked against the supplied timeout.
type timeoutCheck struct {
	timeout       time.Duration
	completedChan chan int // returns the number of runs timed out
}

func newTimeoutCheck(timeout time.Duration) *timeoutCheck {
	return &timeoutCheck{
		timeout:       timeout,
		completedChan: make(chan int),
	}
}

type TimeoutCheckerConfig struct {
	// RunTimeout is how long a run may stay unfinished, measured from when it was created.
	RunTimeout time.Duration
	// PollInterval is how often unfinished runs are checked.
	PollInterval time.Duration
}

func NewDefaultTimeoutCheckerConfig() TimeoutCheckerConfig {
	return TimeoutCheckerConfig{
		RunTimeout:   DefaultRunTimeout,
		PollInterval: defaultTimeoutPollInterval,
	}
}

// TimeoutChecker periodically fails runs that have been unfinished for longer than the run timeout.
// Runs are only left unfinished past their build timeout if the process executing them went away,
// so this is what cleans up after a crash.
type TimeoutChecker struct {
	*util.StatefulService
	runService       services.RunService
	clock            clock.Clock
	config           TimeoutCheckerConfig
	timeoutCheckChan chan *timeoutCheck
	logger.Log
}

func NewTimeoutChecker(
	runService services.RunService,
	clk clock.Clock,
	config TimeoutCheckerConfig,
	logFactory logger.LogFactory,
) *TimeoutChecker {
	s := &TimeoutChecker{
		runService:       runService,
		clock:            clk,
		config:           config,
		timeoutCheckChan: make(chan *timeoutCheck),
		Log:              logFactory("TimeoutChecker"),
	}
	s.StatefulService = util.NewStatefulService(context.Background(), s.Log, s.loop)
	return s
}

func (s *TimeoutChecker) loop(ctx context.Context) {
	s.Tracef("Starting run timeout polling loop...")
	for {
		select {
		case <-ctx.Done():
			s.Tracef("Run timeout checker closed; exiting...")
			return

		case req := <-s.timeoutCheckChan:
			nrTimedOut, err := s.checkForTimeouts(ctx, req.timeout)
			if err != nil {
				s.Errorf("Error checking runs for timeouts: %s", err)
			}
			req.completedChan <- nrTimedOut

		case <-s.clock.After(s.config.PollInterval):
			nrTimedOut, err := s.checkForTimeouts(ctx, s.config.RunTimeout)
			if err != nil {
				s.Errorf("Error checking runs for timeouts: %s", err)
			}
			if nrTimedOut > 0 {
				s.Infof("Failed %d runs due to timeouts", nrTimedOut)
			}
		}
	}
}

// checkForTimeouts fails every unfinished run created more than timeout ago.
// Returns the number of runs that timed out.
func (s *TimeoutChecker) checkForTimeouts(ctx context.Context, timeout time.Duration) (int, error) {
	unfinished, err := s.runService.ListUnfinished(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error listing unfinished runs: %w", err)
	}
	// Each run is failed in a separate transaction, so failure to fail one does not impact the others
	var (
		errorCount    int
		timedOutCount int
	)
	for _, run := range unfinished {
		if !s.hasRunTimedOut(run, timeout) {
			continue
		}
		err := s.failTimedOutRun(ctx, run, timeout)
		if err != nil {
			s.Errorf("Error failing timed-out run %s: %v", run.ID, err)
			errorCount++
		} else {
			timedOutCount++
		}
	}
	if errorCount > 0 {
		return timedOutCount, fmt.Errorf("error failing runs: failed to time out %d out of %d runs", errorCount, errorCount+timedOutCount)
	}
	return timedOutCount, nil
}

func (s *TimeoutChecker) hasRunTimedOut(run *models.Run, timeout time.Duration) bool {
	if run.Status.HasFinished() {
		return false
	}
	return s.clock.Now().After(run.CreatedAt.Add(timeout))
}

func (s *TimeoutChecker) failTimedOutRun(ctx context.Context, run *models.Run, timeout time.Duration) error {
	_, err := s.runService.UpdateStatus(ctx, nil, run.ID, dto.UpdateRunStatus{
		Status: models.RunStatusFailed,
		Error:  models.NewError(gerror.NewErrTimeout(fmt.Sprintf("run did not finish within %s", timeout))),
		ETag:   models.ETagAny, // fail the run regardless of whether it has been updated in the meantime
	})
	if err != nil {
		return fmt.Errorf("error updating run status: %w", err)
	}
	s.WithField("run_id", run.ID).Infof("Run of job %s timed out and was failed", run.JobID)
	return nil
}

// CheckForTimeouts instructs the timeout checker to check all unfinished runs against the specified
// timeout, and fail any that have been unfinished for longer. Returns the number of runs that were failed.
func (s *TimeoutChecker) CheckForTimeouts(timeout time.Duration) int {
	req := newTimeoutCheck(timeout)
	s.timeoutCheckChan <- req
	return <-req.completedChan
}

// FailUnfinishedRuns fails every run that has not finished, regardless of age. It must only be called
// while no process is executing runs against the same run history, e.g. at startup when holding the
// work dir lock. Returns the number of runs that were failed.
func (s *TimeoutChecker) FailUnfinishedRuns(ctx context.Context) (int, error) {
	return s.checkForTimeouts(ctx, 0)
}
