package local_backend

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/chelnak/ysmrr"

	"github.com/buildbeaver/depchain/common/models"
)

type spinnerState struct {
	// spinner is the underlying spinner object (not nil)
	spinner *ysmrr.Spinner
	// jobName is the name to display in the spinner message for the job
	jobName string
	// nameWidth is the width in runes the job name is padded or truncated to
	nameWidth int
	// finished is true once the job's run has reached a terminal status; later text updates are dropped
	finished bool
	// text is displayed after the job name
	text string
}

func newSpinnerState(spinner *ysmrr.Spinner, jobName string, nameWidth int, text string) *spinnerState {
	state := &spinnerState{
		spinner:   spinner,
		jobName:   jobName,
		nameWidth: nameWidth,
		text:      text,
	}
	spinner.UpdateMessage(state.message())
	return state
}

func (s *spinnerState) setNameWidth(width int) {
	s.nameWidth = width
	s.spinner.UpdateMessage(s.message())
}

func (s *spinnerState) setText(text string, finished bool) {
	if s.finished {
		return
	}
	s.text = text
	s.spinner.UpdateMessage(s.message())
	s.finished = finished
}

func (s *spinnerState) message() string {
	name := s.jobName
	length := utf8.RuneCountInString(name)
	if s.nameWidth > length {
		name += strings.Repeat(" ", s.nameWidth-length)
	} else if s.nameWidth < length {
		name = truncateString(name, s.nameWidth)
	}
	return fmt.Sprintf("%s %s", name, s.text)
}

// truncateString truncates s to at most maxLength runes.
func truncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	return string(runes[0:maxLength])
}

// SpinnerManager maintains one spinner for each job in a plan.
type SpinnerManager struct {
	manager ysmrr.SpinnerManager

	spinnersByJob map[models.JobID]*spinnerState
	spinnersMu    sync.RWMutex // protects spinnersByJob
}

func NewSpinnerManager() *SpinnerManager {
	return &SpinnerManager{
		manager:       ysmrr.NewSpinnerManager(),
		spinnersByJob: map[models.JobID]*spinnerState{},
	}
}

func (s *SpinnerManager) Start() {
	s.manager.Start()
}

func (s *SpinnerManager) Stop() {
	s.manager.Stop()
}

// AddSpinner adds a spinner for jobID unless one already exists. Every existing spinner's job name is
// widened if necessary so that the names line up.
func (s *SpinnerManager) AddSpinner(jobID models.JobID, jobName string, text string) {
	s.spinnersMu.Lock()
	defer s.spinnersMu.Unlock()

	if _, exists := s.spinnersByJob[jobID]; exists {
		return
	}

	width := 0
	for _, state := range s.spinnersByJob {
		if state.nameWidth > width {
			width = state.nameWidth
		}
	}
	if length := utf8.RuneCountInString(jobName); length > width {
		width = length
		for _, state := range s.spinnersByJob {
			state.setNameWidth(width)
		}
	}

	spinner := s.manager.AddSpinner("")
	s.spinnersByJob[jobID] = newSpinnerState(spinner, jobName, width, text)
}

// UpdateStatus shows status on the spinner for jobID and completes or fails the spinner once the
// status is terminal. No-op if there is no spinner for the job.
func (s *SpinnerManager) UpdateStatus(jobID models.JobID, status models.RunStatus, detail string) {
	s.spinnersMu.RLock()
	defer s.spinnersMu.RUnlock()

	state, found := s.spinnersByJob[jobID]
	if !found {
		return
	}
	text := status.String()
	if detail != "" {
		text = fmt.Sprintf("%s (%s)", text, detail)
	}
	state.setText(text, status.HasFinished())
	switch status {
	case models.RunStatusSucceeded:
		state.spinner.Complete()
	case models.RunStatusFailed, models.RunStatusNotStarted:
		state.spinner.Error()
	}
}

// Complete marks the spinner for jobID as successfully finished with the specified text.
func (s *SpinnerManager) Complete(jobID models.JobID, text string) {
	s.spinnersMu.RLock()
	defer s.spinnersMu.RUnlock()

	state, found := s.spinnersByJob[jobID]
	if !found {
		return
	}
	state.setText(text, true)
	state.spinner.Complete()
}
