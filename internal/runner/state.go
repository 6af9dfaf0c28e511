package runner

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/article-binder/internal/binder"
)

// Stage is a job's position in the pipeline.
type Stage int

// Pipeline stages. Complete and Skipped are terminal.
const (
	StagePending Stage = iota
	StageFetching
	StageConverting
	StageMerging
	StageComplete
	StageSkipped
)

func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageFetching:
		return "fetching"
	case StageConverting:
		return "converting"
	case StageMerging:
		return "merging"
	case StageComplete:
		return "complete"
	case StageSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageSkipped
}

var transitions = map[Stage]Stage{
	StagePending:    StageFetching,
	StageFetching:   StageConverting,
	StageConverting: StageMerging,
}

// JobState pairs an immutable job value with its stage. Transitions return
// a new value.
type JobState struct {
	Job   binder.Job
	Stage Stage
}

// Start classifies a job loaded from the store. Finished jobs and jobs
// without a source URL are skipped.
func Start(job binder.Job) JobState {
	if job.IsComplete || strings.TrimSpace(job.SourceURL) == "" {
		return JobState{Job: job, Stage: StageSkipped}
	}
	return JobState{Job: job, Stage: StagePending}
}

// Advance moves to next, which must directly follow the current stage.
func (s JobState) Advance(next Stage) (JobState, error) {
	if want, ok := transitions[s.Stage]; !ok || want != next {
		return s, fmt.Errorf("invalid transition %s -> %s", s.Stage, next)
	}
	s.Stage = next
	return s, nil
}

// Complete records outputPath on the job and enters StageComplete. Only a
// merging job can complete.
func (s JobState) Complete(outputPath string) (JobState, error) {
	if s.Stage != StageMerging {
		return s, fmt.Errorf("invalid transition %s -> %s", s.Stage, StageComplete)
	}
	job, err := s.Job.MarkComplete(outputPath)
	if err != nil {
		return s, err
	}
	return JobState{Job: job, Stage: StageComplete}, nil
}

// Abort returns a non-terminal job to StagePending for the next run.
func (s JobState) Abort() JobState {
	if s.Stage.Terminal() {
		return s
	}
	s.Stage = StagePending
	return s
}
