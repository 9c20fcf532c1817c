package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/models"
)

type fakeRecognizer struct {
	calls   atomic.Int32
	release chan struct{} // when non-nil, Recognize blocks until it is closed
	text    string
	errs    []error // returned in order, one per call
	mu      sync.Mutex
}

func (f *fakeRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	n := f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", apperr.Transport(ctx.Err(), "text recognition")
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if int(n) <= len(f.errs) && f.errs[n-1] != nil {
		return "", f.errs[n-1]
	}
	return f.text, nil
}

type fakeExtractor struct {
	calls   atomic.Int32
	records *models.RecordSet
	err     error
	gotText atomic.Value
}

func (f *fakeExtractor) Extract(ctx context.Context, text string) (*models.RecordSet, error) {
	f.calls.Add(1)
	f.gotText.Store(text)
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func image(id string) *models.UploadedFile {
	return &models.UploadedFile{ID: id, Name: id + ".png", Category: models.CategoryImage, Data: []byte("png")}
}

func document(id string) *models.UploadedFile {
	return &models.UploadedFile{ID: id, Name: id + ".pdf", Category: models.CategoryDocument, Subtype: "pdf", Data: []byte("%PDF")}
}

func waitFor(t *testing.T, p *Pipeline, id string) models.ExtractionState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := p.Wait(ctx, id)
	require.NoError(t, err)
	return st
}

func TestReadyWithMetadataOnly(t *testing.T) {
	rec := &fakeRecognizer{text: "Batch No: 42"}
	ext := &fakeExtractor{records: &models.RecordSet{Metadata: models.Section{"batch": "42"}}}
	p := New(rec, ext)
	defer p.Close()

	p.Register(image("report"))
	st, err := p.RequestExtraction("report")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseRecognizingText, st.Phase)

	st = waitFor(t, p, "report")
	assert.Equal(t, models.PhaseReady, st.Phase)
	assert.Equal(t, "Batch No: 42", st.RecognizedText)
	assert.Equal(t, models.Section{"batch": "42"}, st.Records.Metadata)
	assert.Nil(t, st.Records.MixingStep)
	assert.Nil(t, st.Records.PHAdjustment)
	assert.Equal(t, "Batch No: 42", ext.gotText.Load())
}

func TestReadyIsIdempotent(t *testing.T) {
	rec := &fakeRecognizer{text: "t"}
	ext := &fakeExtractor{records: &models.RecordSet{}}
	p := New(rec, ext)
	defer p.Close()

	p.Register(image("a"))
	_, err := p.RequestExtraction("a")
	require.NoError(t, err)
	waitFor(t, p, "a")

	for i := 0; i < 5; i++ {
		st, err := p.RequestExtraction("a")
		require.NoError(t, err)
		assert.Equal(t, models.PhaseReady, st.Phase)
	}
	assert.EqualValues(t, 1, rec.calls.Load())
	assert.EqualValues(t, 1, ext.calls.Load())
}

func TestDuplicateRequestsStartOneRun(t *testing.T) {
	rec := &fakeRecognizer{text: "t", release: make(chan struct{})}
	ext := &fakeExtractor{records: &models.RecordSet{}}
	p := New(rec, ext)
	defer p.Close()
	p.Register(image("a"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := p.RequestExtraction("a")
			assert.NoError(t, err)
			assert.True(t, st.Phase.InFlight())
		}()
	}
	wg.Wait()
	close(rec.release)

	st := waitFor(t, p, "a")
	assert.Equal(t, models.PhaseReady, st.Phase)
	assert.Equal(t, 1, st.Attempts)
	assert.EqualValues(t, 1, rec.calls.Load())
	assert.EqualValues(t, 1, ext.calls.Load())
}

func TestDocumentsNeverTransition(t *testing.T) {
	rec := &fakeRecognizer{text: "t"}
	ext := &fakeExtractor{}
	p := New(rec, ext)
	defer p.Close()
	p.Register(document("sop"))

	for _, fn := range []func(string) (models.ExtractionState, error){p.RequestExtraction, p.Retry} {
		st, err := fn("sop")
		require.NoError(t, err)
		assert.Equal(t, models.PhaseNotStarted, st.Phase)
	}
	assert.Zero(t, rec.calls.Load())
}

func TestFailureThenRetry(t *testing.T) {
	quota := apperr.Network(models.StageRecognition, nil, "quota exceeded")
	rec := &fakeRecognizer{text: "Batch No: 42", errs: []error{quota}}
	ext := &fakeExtractor{records: &models.RecordSet{Metadata: models.Section{"batch": "42"}}}
	p := New(rec, ext)
	defer p.Close()
	p.Register(image("a"))

	_, err := p.RequestExtraction("a")
	require.NoError(t, err)
	st := waitFor(t, p, "a")
	require.Equal(t, models.PhaseFailed, st.Phase)
	assert.Equal(t, models.ErrorDetail{Stage: models.StageRecognition, Message: "quota exceeded"}, *st.Error)
	assert.Nil(t, st.Records)

	// only Retry leaves Failed
	st, err = p.RequestExtraction("a")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseFailed, st.Phase)

	st, err = p.Retry("a")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseRecognizingText, st.Phase)
	assert.Nil(t, st.Error)

	st = waitFor(t, p, "a")
	assert.Equal(t, models.PhaseReady, st.Phase)
	assert.Equal(t, 2, st.Attempts)
	assert.EqualValues(t, 2, rec.calls.Load())
}

func TestExtractionFailure(t *testing.T) {
	rec := &fakeRecognizer{text: "t"}
	ext := &fakeExtractor{err: apperr.Parse(nil, "could not parse structured data from the model reply")}
	p := New(rec, ext)
	defer p.Close()
	p.Register(image("a"))

	_, err := p.RequestExtraction("a")
	require.NoError(t, err)
	st := waitFor(t, p, "a")
	assert.Equal(t, models.PhaseFailed, st.Phase)
	assert.Equal(t, models.StageParse, st.Error.Stage)
	assert.Equal(t, "t", st.RecognizedText)
}

func TestForgetDiscardsLateResult(t *testing.T) {
	rec := &fakeRecognizer{text: "t", release: make(chan struct{})}
	ext := &fakeExtractor{records: &models.RecordSet{}}

	var mu sync.Mutex
	var seen []models.Phase
	p := New(rec, ext, WithObserver(func(id string, st models.ExtractionState) {
		mu.Lock()
		seen = append(seen, st.Phase)
		mu.Unlock()
	}))
	p.Register(image("a"))

	_, err := p.RequestExtraction("a")
	require.NoError(t, err)
	p.Forget("a")

	_, ok := p.State("a")
	assert.False(t, ok)

	close(rec.release)
	p.Close()

	_, ok = p.State("a")
	assert.False(t, ok)
	assert.Zero(t, ext.calls.Load())
	mu.Lock()
	assert.Equal(t, []models.Phase{models.PhaseRecognizingText}, seen)
	mu.Unlock()
}

func TestLateResultIsCachedWithoutWaiters(t *testing.T) {
	rec := &fakeRecognizer{text: "t", release: make(chan struct{})}
	ext := &fakeExtractor{records: &models.RecordSet{PHAdjustment: models.Section{"ph": "7.0"}}}
	p := New(rec, ext)
	defer p.Close()
	p.Register(image("a"))
	p.Register(image("b"))

	_, err := p.RequestExtraction("a")
	require.NoError(t, err)
	// moving on to another file does not cancel the first run
	st, err := p.RequestExtraction("b")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseRecognizingText, st.Phase)

	close(rec.release)
	assert.Equal(t, models.PhaseReady, waitFor(t, p, "a").Phase)
	assert.Equal(t, models.PhaseReady, waitFor(t, p, "b").Phase)
}

func TestStateReturnsCopies(t *testing.T) {
	rec := &fakeRecognizer{text: "t"}
	ext := &fakeExtractor{records: &models.RecordSet{Metadata: models.Section{"batch": "42"}}}
	p := New(rec, ext)
	defer p.Close()
	p.Register(image("a"))
	_, err := p.RequestExtraction("a")
	require.NoError(t, err)
	st := waitFor(t, p, "a")

	st.Records.Metadata["batch"] = "edited"

	again, _ := p.State("a")
	assert.Equal(t, "42", again.Records.Metadata["batch"])
}

func TestCloseCancelsRuns(t *testing.T) {
	rec := &fakeRecognizer{text: "t", release: make(chan struct{})}
	p := New(rec, &fakeExtractor{})
	p.Register(image("a"))
	_, err := p.RequestExtraction("a")
	require.NoError(t, err)

	p.Close()

	st, ok := p.State("a")
	require.True(t, ok)
	assert.Equal(t, models.PhaseFailed, st.Phase)
	assert.Equal(t, models.StageNetwork, st.Error.Stage)
}

func TestUnknownFile(t *testing.T) {
	p := New(&fakeRecognizer{}, &fakeExtractor{})
	defer p.Close()

	_, err := p.RequestExtraction("missing")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = p.Wait(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
