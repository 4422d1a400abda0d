// Package wizard implements the multi-step AI data entry workflows. Every
// workflow moves through input, preview and result: free text is parsed
// into candidate records, the candidates are edited locally and the
// remaining ones are committed in one go.
package wizard

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// Step is the position of a workflow.
type Step int

const (
	StepInput Step = iota
	StepPreview
	StepResult
)

func (s Step) String() string {
	switch s {
	case StepInput:
		return "input"
	case StepPreview:
		return "preview"
	case StepResult:
		return "result"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy is returned while another operation of the same workflow is
	// in flight.
	ErrBusy = errors.New("wizard: operation in progress")
	// ErrWrongStep is returned when an action is not allowed in the
	// current step.
	ErrWrongStep = errors.New("wizard: action not allowed in this step")
	// ErrIndex is returned for a candidate index out of range.
	ErrIndex = errors.New("wizard: candidate index out of range")
	// ErrNoCandidates is returned when parsing yields nothing or every
	// candidate was removed before committing.
	ErrNoCandidates = errors.New("wizard: no candidates")
	// ErrCanceled is returned by an operation whose workflow was canceled
	// or reopened while it ran. Its result is dropped.
	ErrCanceled = errors.New("wizard: canceled")
)

// Parser turns free text into candidate records without persisting
// anything.
type Parser[C any] func(ctx context.Context, input string) ([]C, error)

// Committer persists the candidates in one request and reports the outcome.
type Committer[C, R any] func(ctx context.Context, candidates []C) (R, error)

// Wizard is a single workflow instance. It is safe for concurrent use;
// only one Parse or Commit may run at a time.
type Wizard[C, R any] struct {
	parse  Parser[C]
	commit Committer[C, R]

	mu         sync.Mutex
	step       Step
	input      string
	candidates []C
	result     R
	err        error
	busy       bool
	gen        uint64
}

// New creates a workflow in the input step.
func New[C, R any](parse Parser[C], commit Committer[C, R]) *Wizard[C, R] {
	return &Wizard[C, R]{
		parse:  parse,
		commit: commit,
	}
}

// Open resets the workflow to the input step, dropping all state and the
// result of any operation still in flight.
func (w *Wizard[C, R]) Open() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reset()
}

// Cancel discards all local edits. It never calls a collaborator.
func (w *Wizard[C, R]) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reset()
}

func (w *Wizard[C, R]) reset() {
	var zero R
	w.step = StepInput
	w.input = ""
	w.candidates = nil
	w.result = zero
	w.err = nil
	w.busy = false
	w.gen++
}

// Step returns the current step.
func (w *Wizard[C, R]) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Busy reports whether an operation is in flight.
func (w *Wizard[C, R]) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy
}

// Input returns the text last submitted to Parse.
func (w *Wizard[C, R]) Input() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.input
}

// Err returns the error of the last failed Parse or Commit, cleared by the
// next successful one.
func (w *Wizard[C, R]) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Candidates returns a copy of the candidates in preview.
func (w *Wizard[C, R]) Candidates() []C {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.candidates)
}

// Result returns the commit outcome once the workflow reached the result
// step.
func (w *Wizard[C, R]) Result() (R, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result, w.step == StepResult
}

// begin marks an operation as started in step want and returns its
// generation.
func (w *Wizard[C, R]) begin(want Step) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return 0, ErrBusy
	}
	if w.step != want {
		return 0, ErrWrongStep
	}
	w.busy = true
	return w.gen, nil
}

// Parse submits input to the parser and moves to preview on success. On
// failure the workflow stays in input and keeps the text.
func (w *Wizard[C, R]) Parse(ctx context.Context, input string) error {
	gen, err := w.begin(StepInput)
	if err != nil {
		return err
	}

	candidates, err := w.parse(ctx, input)
	if err == nil && len(candidates) == 0 {
		err = ErrNoCandidates
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen {
		return ErrCanceled
	}
	w.busy = false
	w.input = input
	w.err = err
	if err != nil {
		return err
	}
	w.candidates = candidates
	w.step = StepPreview
	return nil
}

// Edit replaces the candidate at index i.
func (w *Wizard[C, R]) Edit(i int, c C) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(i); err != nil {
		return err
	}
	w.candidates[i] = c
	return nil
}

// Remove discards the candidate at index i.
func (w *Wizard[C, R]) Remove(i int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(i); err != nil {
		return err
	}
	w.candidates = slices.Delete(w.candidates, i, i+1)
	return nil
}

func (w *Wizard[C, R]) editable(i int) error {
	if w.busy {
		return ErrBusy
	}
	if w.step != StepPreview {
		return ErrWrongStep
	}
	if i < 0 || i >= len(w.candidates) {
		return ErrIndex
	}
	return nil
}

// Back returns from preview to input, keeping the submitted text. The
// result step is final; use Open to start over.
func (w *Wizard[C, R]) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	if w.step != StepPreview {
		return ErrWrongStep
	}
	w.candidates = nil
	w.err = nil
	w.step = StepInput
	return nil
}

// Commit sends the remaining candidates in one request. On success the
// workflow moves to result; on failure it stays in preview with the
// candidates untouched and the error recorded.
func (w *Wizard[C, R]) Commit(ctx context.Context) error {
	gen, err := w.begin(StepPreview)
	if err != nil {
		return err
	}

	w.mu.Lock()
	candidates := slices.Clone(w.candidates)
	w.mu.Unlock()

	var result R
	if len(candidates) == 0 {
		err = ErrNoCandidates
	} else {
		result, err = w.commit(ctx, candidates)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen {
		return ErrCanceled
	}
	w.busy = false
	w.err = err
	if err != nil {
		return err
	}
	w.result = result
	w.step = StepResult
	return nil
}
