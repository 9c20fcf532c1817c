package ingest

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/models"
	"github.com/suyaash/batchrec/internal/storage"
)

// RawFile is a file handed over by one of the input sources (multipart
// upload, local path, URL download) before validation.
type RawFile struct {
	Name        string
	ContentType string
	Size        int64 // declared size, -1 when unknown
	Open        func() (io.ReadCloser, error)
}

// Ingestor validates raw files and turns them into UploadedFile records.
type Ingestor struct {
	maxBytes    int64
	previews    *storage.PreviewStore
	previewBase string
	allowed     []string
	newID       func() string
	now         func() time.Time
	logger      *slog.Logger
}

type Option func(*Ingestor)

// WithPreviewBase sets the URL prefix of preview references. Default "/previews/".
func WithPreviewBase(base string) Option {
	return func(i *Ingestor) {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		i.previewBase = base
	}
}

// DefaultAllowedTypes are the content types accepted when none are configured.
var DefaultAllowedTypes = []string{
	"image/*",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
}

// WithAllowedTypes restricts uploads to the given media types. A trailing
// "/*" matches a whole top-level type and "*/*" accepts anything. An empty
// list keeps DefaultAllowedTypes.
func WithAllowedTypes(types []string) Option {
	return func(i *Ingestor) {
		if len(types) > 0 {
			i.allowed = types
		}
	}
}

// WithIDGenerator replaces the UUID generator, mostly for tests.
func WithIDGenerator(fn func() string) Option {
	return func(i *Ingestor) { i.newID = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingestor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

func New(maxBytes int64, previews *storage.PreviewStore, opts ...Option) *Ingestor {
	i := &Ingestor{
		maxBytes:    maxBytes,
		previews:    previews,
		previewBase: "/previews/",
		allowed:     DefaultAllowedTypes,
		newID:       func() string { return uuid.New().String() },
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// MaxBytes returns the per-file size limit.
func (i *Ingestor) MaxBytes() int64 {
	return i.maxBytes
}

// Ingest validates every raw file independently. Accepted files are returned
// in input order; each rejected file contributes one validation error and
// does not stop the rest of the batch.
func (i *Ingestor) Ingest(raws []RawFile) ([]*models.UploadedFile, []error) {
	var accepted []*models.UploadedFile
	var rejected []error

	for _, raw := range raws {
		f, err := i.ingestOne(raw)
		if err != nil {
			i.logger.Warn("ingest.rejected", "name", raw.Name, "error", err)
			rejected = append(rejected, err)
			continue
		}
		i.logger.Info("ingest.accepted",
			"file_id", f.ID,
			"name", f.Name,
			"category", f.Category,
			"subtype", f.Subtype,
			"size", f.Size,
		)
		accepted = append(accepted, f)
	}
	return accepted, rejected
}

func (i *Ingestor) ingestOne(raw RawFile) (*models.UploadedFile, error) {
	if raw.Size > i.maxBytes {
		return nil, tooLarge(raw.Name, i.maxBytes)
	}
	if raw.Open == nil {
		return nil, apperr.Validation("%s: no content", raw.Name)
	}

	rc, err := raw.Open()
	if err != nil {
		return nil, apperr.Validation("%s: failed to open file: %v", raw.Name, err)
	}
	defer rc.Close()

	// Read one byte past the limit so an undeclared size is still caught.
	data, err := io.ReadAll(io.LimitReader(rc, i.maxBytes+1))
	if err != nil {
		return nil, apperr.Validation("%s: failed to read file contents: %v", raw.Name, err)
	}
	if int64(len(data)) > i.maxBytes {
		return nil, tooLarge(raw.Name, i.maxBytes)
	}

	contentType := DetectContentType(raw.Name, raw.ContentType, data)
	if !i.allows(contentType) {
		return nil, apperr.Validation("%s: unsupported file type %s", raw.Name, orUnknown(contentType))
	}
	category, subtype := Classify(contentType)

	f := &models.UploadedFile{
		ID:          i.newID(),
		Name:        raw.Name,
		Category:    category,
		Subtype:     subtype,
		ContentType: contentType,
		Size:        int64(len(data)),
		UploadedAt:  i.now(),
		Data:        data,
	}

	if f.IsImage() {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			f.Width, f.Height = cfg.Width, cfg.Height
		} else {
			i.logger.Debug("ingest.dimensions_unavailable", "name", raw.Name, "error", err)
		}
		if i.previews != nil {
			i.previews.Put(f.ID, storage.Preview{ContentType: contentType, Data: data})
			f.PreviewURL = i.previewBase + f.ID
		}
	}
	return f, nil
}

// Release frees the preview reference of a file leaving the working set.
func (i *Ingestor) Release(f *models.UploadedFile) {
	if f == nil || f.PreviewURL == "" {
		return
	}
	if i.previews != nil {
		i.previews.Release(f.ID)
	}
	f.PreviewURL = ""
	i.logger.Debug("ingest.preview_released", "file_id", f.ID)
}

func (i *Ingestor) allows(contentType string) bool {
	mt := mediaType(contentType)
	if mt == "" {
		return false
	}
	for _, pattern := range i.allowed {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		switch {
		case pattern == "*/*":
			return true
		case strings.HasSuffix(pattern, "/*"):
			if strings.HasPrefix(mt, strings.TrimSuffix(pattern, "*")) {
				return true
			}
		case pattern == mt:
			return true
		}
	}
	return false
}

func orUnknown(contentType string) string {
	if contentType == "" {
		return "(unknown)"
	}
	return contentType
}

func tooLarge(name string, limit int64) error {
	return apperr.Validation("%s exceeds the maximum upload size of %s", name, humanBytes(limit))
}

func humanBytes(n int64) string {
	const mib = 1024 * 1024
	if n >= mib && n%mib == 0 {
		return fmt.Sprintf("%dMB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}

// Classify maps a content type to its category and subtype label. Images are
// labelled "image"; anything else takes the second segment of the content
// type, or "document" when there is none.
func Classify(contentType string) (models.Category, string) {
	ct := mediaType(contentType)
	if strings.HasPrefix(ct, "image/") {
		return models.CategoryImage, "image"
	}
	if _, sub, ok := strings.Cut(ct, "/"); ok && sub != "" {
		return models.CategoryDocument, sub
	}
	return models.CategoryDocument, "document"
}

// mediaType lowercases contentType and drops its parameters.
func mediaType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return ct
}

// Office formats are missing from minimal mime tables, and sniffing a .docx
// only finds a zip archive.
var officeTypes = map[string]string{
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// DetectContentType keeps a declared type, otherwise guesses from the file
// extension and then from the content.
func DetectContentType(name, declared string, data []byte) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		return declared
	}
	ext := strings.ToLower(filepath.Ext(name))
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return byExt
	}
	if office, ok := officeTypes[ext]; ok {
		return office
	}
	if len(data) == 0 {
		return ""
	}
	return http.DetectContentType(data)
}
