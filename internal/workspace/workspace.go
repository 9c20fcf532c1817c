// Package workspace ties together the pieces one operator works with: the
// uploaded files, their extraction states, the current selection and the
// editable copy of the selected file's records.
package workspace

import (
	"context"
	"log/slog"
	"sync"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/ingest"
	"github.com/suyaash/batchrec/internal/models"
	"github.com/suyaash/batchrec/internal/pipeline"
	"github.com/suyaash/batchrec/internal/sheets"
	"github.com/suyaash/batchrec/internal/storage"
	"github.com/suyaash/batchrec/internal/store"
)

// Publisher sends a snapshot to the spreadsheet.
type Publisher interface {
	Publish(ctx context.Context, snap models.Snapshot) (sheets.Ack, error)
}

// Config lists the collaborators of a Workspace. Publisher may be nil, in
// which case Publish reports a configuration error.
type Config struct {
	Ingestor   *ingest.Ingestor
	Previews   *storage.PreviewStore
	Recognizer pipeline.Recognizer
	Extractor  pipeline.Extractor
	Publisher  Publisher
	// AutoExtract requests extraction when an image is uploaded or selected.
	// When false, extraction only starts on an explicit request.
	AutoExtract bool
	Logger      *slog.Logger
}

// FileView is a file together with its extraction state.
type FileView struct {
	File  *models.UploadedFile   `json:"file"`
	State models.ExtractionState `json:"state"`
}

// View is the selection and the editable records.
type View struct {
	Selected string            `json:"selected,omitempty"`
	Records  *models.RecordSet `json:"records,omitempty"`
	Edit     *store.Edit       `json:"edit,omitempty"`
}

type Workspace struct {
	files     *storage.WorkingSet
	previews  *storage.PreviewStore
	ingestor  *ingest.Ingestor
	pipeline  *pipeline.Pipeline
	store     *store.DataStore
	publisher Publisher
	auto      bool
	logger    *slog.Logger

	mu       sync.Mutex
	selected string
}

func New(cfg Config) *Workspace {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	w := &Workspace{
		files:     storage.NewWorkingSet(),
		previews:  cfg.Previews,
		ingestor:  cfg.Ingestor,
		store:     store.New(),
		publisher: cfg.Publisher,
		auto:      cfg.AutoExtract,
		logger:    logger,
	}
	w.pipeline = pipeline.New(cfg.Recognizer, cfg.Extractor,
		pipeline.WithLogger(logger),
		pipeline.WithObserver(w.onTransition),
	)
	return w
}

// onTransition loads the records of the selected file as soon as they are ready.
func (w *Workspace) onTransition(id string, st models.ExtractionState) {
	if st.Phase != models.PhaseReady {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selected == id {
		w.store.Load(st.Records)
	}
}

// Upload ingests raw files into the working set. Rejected files are reported
// one error each and do not affect the others.
func (w *Workspace) Upload(raws []ingest.RawFile) ([]*models.UploadedFile, []error) {
	accepted, rejected := w.ingestor.Ingest(raws)
	for _, f := range accepted {
		w.files.Add(f)
		w.pipeline.Register(f)
		if w.auto && f.IsImage() {
			if _, err := w.pipeline.RequestExtraction(f.ID); err != nil {
				w.logger.Error("workspace.extract", "file_id", f.ID, "error", err)
			}
		}
	}
	return accepted, rejected
}

// Files lists the working set in upload order.
func (w *Workspace) Files() []FileView {
	files := w.files.List()
	out := make([]FileView, 0, len(files))
	for _, f := range files {
		st, _ := w.pipeline.State(f.ID)
		out = append(out, FileView{File: f, State: st})
	}
	return out
}

func (w *Workspace) File(id string) (*models.UploadedFile, bool) {
	return w.files.Get(id)
}

// Remove drops the file, releases its preview and forgets its state.
func (w *Workspace) Remove(id string) error {
	f, ok := w.files.Remove(id)
	if !ok {
		return apperr.Validation("unknown file %q", id)
	}
	w.ingestor.Release(f)
	w.pipeline.Forget(id)

	w.mu.Lock()
	if w.selected == id {
		w.selected = ""
		w.store.Clear()
	}
	w.mu.Unlock()

	w.logger.Info("workspace.removed", "file_id", id, "name", f.Name)
	return nil
}

// Preview returns the preview bytes registered for an image.
func (w *Workspace) Preview(id string) (storage.Preview, bool) {
	return w.previews.Get(id)
}

// Select makes id the current file. A Ready file's records are reloaded from
// the cached original, discarding edits made to an earlier load.
func (w *Workspace) Select(id string) (models.ExtractionState, error) {
	if _, ok := w.files.Get(id); !ok {
		return models.ExtractionState{}, apperr.Validation("unknown file %q", id)
	}

	w.mu.Lock()
	w.selected = id
	w.store.Clear()
	w.mu.Unlock()

	var st models.ExtractionState
	var err error
	if w.auto {
		st, err = w.pipeline.RequestExtraction(id)
	} else {
		st, _ = w.pipeline.State(id)
	}
	if err != nil {
		return st, err
	}

	if st.Phase == models.PhaseReady {
		w.mu.Lock()
		if w.selected == id {
			w.store.Load(st.Records)
		}
		w.mu.Unlock()
	}
	return st, nil
}

// Selected returns the current selection, or "".
func (w *Workspace) Selected() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selected
}

// Extract is the explicit trigger.
func (w *Workspace) Extract(id string) (models.ExtractionState, error) {
	return w.pipeline.RequestExtraction(id)
}

func (w *Workspace) Retry(id string) (models.ExtractionState, error) {
	return w.pipeline.Retry(id)
}

func (w *Workspace) State(id string) (models.ExtractionState, error) {
	st, ok := w.pipeline.State(id)
	if !ok {
		return st, apperr.Validation("unknown file %q", id)
	}
	return st, nil
}

// Wait blocks until id's run ends.
func (w *Workspace) Wait(ctx context.Context, id string) (models.ExtractionState, error) {
	return w.pipeline.Wait(ctx, id)
}

func (w *Workspace) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := View{Selected: w.selected, Records: w.store.Records()}
	if e, ok := w.store.ActiveEdit(); ok {
		v.Edit = &e
	}
	return v
}

func (w *Workspace) BeginEdit(section models.SectionName, key string) (string, error) {
	return w.store.BeginEdit(section, key)
}

func (w *Workspace) SetPending(value string) error {
	return w.store.SetPending(value)
}

func (w *Workspace) CommitEdit(value string) error {
	return w.store.CommitEdit(value)
}

func (w *Workspace) CancelEdit() {
	w.store.CancelEdit()
}

// Snapshot serializes the working copy. It fails when nothing is loaded.
func (w *Workspace) Snapshot() (models.Snapshot, error) {
	if !w.store.Loaded() {
		return models.Snapshot{}, apperr.Validation("no structured data is loaded")
	}
	return w.store.Serialize(), nil
}

// Publish sends the working copy to the spreadsheet. The working copy is kept
// whether or not the publish succeeds.
func (w *Workspace) Publish(ctx context.Context) (sheets.Ack, error) {
	if w.publisher == nil {
		return nil, apperr.Configuration("SHEET_WEBHOOK_URL is required to publish")
	}
	snap, err := w.Snapshot()
	if err != nil {
		return nil, err
	}
	ack, err := w.publisher.Publish(ctx, snap)
	if err != nil {
		w.logger.Warn("workspace.publish.failed", "file_id", w.Selected(), "error", err)
		return nil, err
	}
	return ack, nil
}

// ExportXLSX renders the working copy as a workbook.
func (w *Workspace) ExportXLSX() ([]byte, error) {
	snap, err := w.Snapshot()
	if err != nil {
		return nil, err
	}
	return sheets.WriteXLSX(snap)
}

// Close cancels extraction runs still in flight.
func (w *Workspace) Close() {
	w.pipeline.Close()
}
