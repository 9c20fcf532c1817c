// Package pipeline runs text recognition and structured extraction for the
// files in a working set and tracks one extraction state per file id.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/models"
)

// Recognizer turns image bytes into text.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Extractor turns recognized text into records.
type Extractor interface {
	Extract(ctx context.Context, text string) (*models.RecordSet, error)
}

// Observer is called after every state change, outside the pipeline lock.
type Observer func(id string, state models.ExtractionState)

type entry struct {
	file  *models.UploadedFile
	state models.ExtractionState
	done  chan struct{} // closed when an in-flight run reaches a terminal phase
}

// Pipeline owns the extraction state of every registered file.
type Pipeline struct {
	recognizer Recognizer
	extractor  Extractor
	logger     *slog.Logger
	observers  []Observer
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}

func New(r Recognizer, e Extractor, opts ...Option) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		recognizer: r,
		extractor:  e,
		logger:     slog.Default(),
		now:        time.Now,
		entries:    make(map[string]*entry),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register adds a file in NotStarted. Registering a known id is a no-op.
func (p *Pipeline) Register(file *models.UploadedFile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[file.ID]; ok {
		return
	}
	p.entries[file.ID] = &entry{
		file:  file,
		state: models.ExtractionState{Phase: models.PhaseNotStarted, UpdatedAt: p.now()},
	}
}

// RequestExtraction starts a run for an image in NotStarted. For every other
// file or phase it returns the current state and starts nothing.
func (p *Pipeline) RequestExtraction(id string) (models.ExtractionState, error) {
	return p.start(id, models.PhaseNotStarted)
}

// Retry restarts a Failed file. Other phases are left alone.
func (p *Pipeline) Retry(id string) (models.ExtractionState, error) {
	return p.start(id, models.PhaseFailed)
}

func (p *Pipeline) start(id string, from models.Phase) (models.ExtractionState, error) {
	p.mu.Lock()
	e, ok := p.entries[id]
	if !ok {
		p.mu.Unlock()
		return models.ExtractionState{}, apperr.Validation("unknown file %q", id)
	}
	if !e.file.IsImage() || e.state.Phase != from {
		st := copyState(e.state)
		p.mu.Unlock()
		return st, nil
	}

	prev := e.state.Phase
	e.state = models.ExtractionState{
		Phase:     models.PhaseRecognizingText,
		Attempts:  e.state.Attempts + 1,
		UpdatedAt: p.now(),
	}
	e.done = make(chan struct{})
	st := copyState(e.state)
	p.wg.Add(1)
	p.mu.Unlock()

	p.logTransition(id, prev, st)
	p.notify(id, st)

	go p.run(id, e)
	return st, nil
}

func (p *Pipeline) run(id string, e *entry) {
	defer p.wg.Done()

	text, err := p.recognizer.Recognize(p.ctx, e.file.Data)
	if err != nil {
		p.fail(id, e, err)
		return
	}
	if !p.advance(id, e, func(s *models.ExtractionState) {
		s.Phase = models.PhaseExtractingStructure
		s.RecognizedText = text
	}) {
		return
	}

	records, err := p.extractor.Extract(p.ctx, text)
	if err != nil {
		p.fail(id, e, err)
		return
	}
	p.advance(id, e, func(s *models.ExtractionState) {
		s.Phase = models.PhaseReady
		s.Records = records
	})
}

func (p *Pipeline) fail(id string, e *entry, err error) {
	detail := apperr.DetailOf(err)
	p.advance(id, e, func(s *models.ExtractionState) {
		s.Phase = models.PhaseFailed
		s.Error = &detail
	})
}

// advance applies a transition to e if e is still the registered entry for id.
// It reports false when the file was forgotten and the result was dropped.
func (p *Pipeline) advance(id string, e *entry, apply func(*models.ExtractionState)) bool {
	p.mu.Lock()
	if p.entries[id] != e {
		p.mu.Unlock()
		p.logger.Info("pipeline.discarded", "file_id", id)
		return false
	}
	prev := e.state.Phase
	apply(&e.state)
	e.state.UpdatedAt = p.now()
	if e.state.Phase.Terminal() {
		close(e.done)
	}
	st := copyState(e.state)
	p.mu.Unlock()

	p.logTransition(id, prev, st)
	p.notify(id, st)
	return true
}

// State returns a copy of the file's state.
func (p *Pipeline) State(id string) (models.ExtractionState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if !ok {
		return models.ExtractionState{}, false
	}
	return copyState(e.state), true
}

// Wait blocks until the file's run ends or ctx is done. A file with no run in
// flight returns its state immediately.
func (p *Pipeline) Wait(ctx context.Context, id string) (models.ExtractionState, error) {
	p.mu.Lock()
	e, ok := p.entries[id]
	if !ok {
		p.mu.Unlock()
		return models.ExtractionState{}, apperr.Validation("unknown file %q", id)
	}
	if !e.state.Phase.InFlight() {
		st := copyState(e.state)
		p.mu.Unlock()
		return st, nil
	}
	done := e.done
	p.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return models.ExtractionState{}, ctx.Err()
	}
	st, ok := p.State(id)
	if !ok {
		return models.ExtractionState{}, apperr.Validation("file %q was removed", id)
	}
	return st, nil
}

// Forget drops the file's state. A run still in flight finishes but its
// result is discarded.
func (p *Pipeline) Forget(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if !ok {
		return
	}
	if e.state.Phase.InFlight() {
		close(e.done)
	}
	delete(p.entries, id)
}

// Close cancels all runs and waits for them to return.
func (p *Pipeline) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pipeline) logTransition(id string, from models.Phase, st models.ExtractionState) {
	attrs := []any{"file_id", id, "from", from, "to", st.Phase, "attempt", st.Attempts}
	if st.Error != nil {
		attrs = append(attrs, "stage", st.Error.Stage, "error", st.Error.Message)
		p.logger.Warn("pipeline.transition", attrs...)
		return
	}
	p.logger.Info("pipeline.transition", attrs...)
}

func (p *Pipeline) notify(id string, st models.ExtractionState) {
	for _, o := range p.observers {
		o(id, st)
	}
}

func copyState(s models.ExtractionState) models.ExtractionState {
	s.Records = s.Records.Clone()
	if s.Error != nil {
		d := *s.Error
		s.Error = &d
	}
	return s
}
