package domain

import "fmt"

// Stage is a step of the analyze flow.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageValidating  Stage = "validating"
	StageClassifying Stage = "classifying"
	StageMapping     Stage = "mapping"
	StageFetching    Stage = "fetching"
	StageReady       Stage = "ready"
	StageFailed      Stage = "failed"
)

// next lists the only successor of each non-terminal stage on the success path.
var next = map[Stage]Stage{
	StageIdle:        StageValidating,
	StageValidating:  StageClassifying,
	StageClassifying: StageMapping,
	StageMapping:     StageFetching,
	StageFetching:    StageReady,
}

// Terminal reports whether no further transition is possible without a new request.
func (s Stage) Terminal() bool {
	return s == StageReady || s == StageFailed
}

// Progress tracks the stage of a single analyze request.
// A new request always starts a new Progress; terminal states are not reused.
type Progress struct {
	stage  Stage
	failed Stage
	reason error
}

// NewProgress returns a Progress in StageIdle.
func NewProgress() *Progress {
	return &Progress{stage: StageIdle}
}

// Stage returns the current stage.
func (p *Progress) Stage() Stage {
	return p.stage
}

// FailedAt returns the stage that was active when Fail was called.
func (p *Progress) FailedAt() Stage {
	return p.failed
}

// Reason returns the failure reason, nil unless the stage is StageFailed.
func (p *Progress) Reason() error {
	return p.reason
}

// Advance moves to the given stage. Skipping a stage, going backwards or
// leaving a terminal stage is rejected.
func (p *Progress) Advance(to Stage) error {
	want, ok := next[p.stage]
	if !ok || want != to {
		return fmt.Errorf("domain: invalid stage transition %s -> %s", p.stage, to)
	}
	p.stage = to
	return nil
}

// Fail moves to StageFailed from any non-terminal stage.
func (p *Progress) Fail(reason error) error {
	if p.stage.Terminal() {
		return fmt.Errorf("domain: invalid stage transition %s -> %s", p.stage, StageFailed)
	}
	p.failed = p.stage
	p.stage = StageFailed
	p.reason = reason
	return nil
}
