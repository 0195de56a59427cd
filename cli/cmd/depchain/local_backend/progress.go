package local_backend

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/alessio/shellescape"
	"github.com/mattn/go-isatty"

	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/dto"
	"github.com/buildbeaver/depchain/server/services"
)

// ProgressReporter shows the progress of a plan executing in this process, as spinners when attached
// to a terminal or as one line per status change otherwise.
type ProgressReporter struct {
	pipeline    *dto.Pipeline
	spinners    *SpinnerManager
	out         io.Writer
	outMu       sync.Mutex
	unsubscribe func()
}

// NewProgressReporter returns a reporter for plans of pipeline, writing to stdout. Spinners are used
// only if plain is false and stdout is a terminal.
func NewProgressReporter(pipeline *dto.Pipeline, plain bool) *ProgressReporter {
	reporter := &ProgressReporter{
		pipeline: pipeline,
		out:      os.Stdout,
	}
	fd := os.Stdout.Fd()
	if !plain && (isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)) {
		reporter.spinners = NewSpinnerManager()
	}
	return reporter
}

// Start subscribes to run status changes published by eventService.
func (r *ProgressReporter) Start(eventService services.EventService) {
	if r.spinners != nil {
		r.spinners.Start()
	}
	r.unsubscribe = eventService.Subscribe(r.onEvent)
}

// Stop unsubscribes and stops any spinners. Safe to call more than once.
func (r *ProgressReporter) Stop() {
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
	if r.spinners != nil {
		r.spinners.Stop()
		r.spinners = nil
	}
}

// ShowPlan adds a line for each step of plan. Reused steps are shown as complete immediately since no
// run will be created for them.
func (r *ProgressReporter) ShowPlan(plan *models.ExecutionPlan) {
	for _, step := range plan.Steps {
		name := r.jobName(step.JobID)
		if step.IsBuild() {
			if r.spinners != nil {
				r.spinners.AddSpinner(step.JobID, name, "queued")
			}
			continue
		}
		text := fmt.Sprintf("reused run %s", step.ReusedRun.ID)
		if r.spinners != nil {
			r.spinners.AddSpinner(step.JobID, name, "")
			r.spinners.Complete(step.JobID, text)
		} else {
			r.println(name, text)
		}
	}
}

func (r *ProgressReporter) onEvent(event *models.Event) {
	if event.Type != models.RunStatusChangedEvent {
		return
	}
	detail := ""
	if event.Error != nil {
		detail = event.Error.Error()
	}
	name := r.jobName(event.JobID)
	if r.spinners != nil {
		r.spinners.AddSpinner(event.JobID, name, "")
		r.spinners.UpdateStatus(event.JobID, event.Status, detail)
		return
	}
	if detail != "" {
		r.println(name, fmt.Sprintf("%s (%s)", event.Status, detail))
	} else {
		r.println(name, event.Status.String())
	}
}

func (r *ProgressReporter) println(name string, text string) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.out, "%s: %s\n", name, text)
}

// jobName returns the display name for a job with any terminal control characters removed.
func (r *ProgressReporter) jobName(jobID models.JobID) string {
	name := jobID.String()
	if job, err := r.pipeline.Job(jobID); err == nil {
		name = job.DisplayName()
	}
	return shellescape.StripUnsafe(name)
}
