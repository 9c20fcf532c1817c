package models

import (
	"encoding/json"
	"time"
)

// Category classifies an uploaded file for the extraction pipeline
type Category string

const (
	CategoryImage    Category = "image"
	CategoryDocument Category = "document"
)

// UploadedFile is one file in the active working set
type UploadedFile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    Category  `json:"category"`
	Subtype     string    `json:"subtype"` // "image", or the content type's second segment ("pdf", "document", ...)
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size_bytes"`
	PreviewURL  string    `json:"preview_url,omitempty"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`

	Data []byte `json:"-"`
}

// IsImage reports whether the file goes through text recognition.
func (f *UploadedFile) IsImage() bool {
	return f.Category == CategoryImage
}

// Phase is the coarse label of an extraction state
type Phase string

const (
	PhaseNotStarted          Phase = "not_started"
	PhaseRecognizingText     Phase = "recognizing_text"
	PhaseExtractingStructure Phase = "extracting_structure"
	PhaseReady               Phase = "ready"
	PhaseFailed              Phase = "failed"
)

// InFlight reports whether an extraction is running for this phase.
func (p Phase) InFlight() bool {
	return p == PhaseRecognizingText || p == PhaseExtractingStructure
}

// Terminal reports whether the phase ends a run.
func (p Phase) Terminal() bool {
	return p == PhaseReady || p == PhaseFailed
}

// Stage names where a failure happened
type Stage string

const (
	StageRecognition Stage = "recognition"
	StageExtraction  Stage = "extraction"
	StageNetwork     Stage = "network"
	StageParse       Stage = "parse"
	StageValidation  Stage = "validation"
)

// ErrorDetail is attached to a Failed state and never modified afterwards
type ErrorDetail struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// ExtractionState is the state of one file in the pipeline.
// Records is set only when Phase is ready, Error only when Phase is failed.
type ExtractionState struct {
	Phase          Phase        `json:"phase"`
	RecognizedText string       `json:"recognized_text,omitempty"`
	Records        *RecordSet   `json:"records,omitempty"`
	Error          *ErrorDetail `json:"error,omitempty"`
	Attempts       int          `json:"attempts"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// SectionName identifies one of the three structured records
type SectionName string

const (
	SectionMetadata     SectionName = "metadata"
	SectionMixingStep   SectionName = "mixingStep"
	SectionPHAdjustment SectionName = "phAdjustment"
)

// Sections lists the record slots in positional order.
var Sections = []SectionName{SectionMetadata, SectionMixingStep, SectionPHAdjustment}

// Section is a flat key to scalar mapping. Values are string, json.Number, bool or nil.
type Section map[string]any

// Clone returns a copy that shares no map with s.
func (s Section) Clone() Section {
	if s == nil {
		return nil
	}
	out := make(Section, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// RecordSet is the structured output for one file. Any slot may be nil.
type RecordSet struct {
	Metadata     Section `json:"metadata,omitempty"`
	MixingStep   Section `json:"mixingStep,omitempty"`
	PHAdjustment Section `json:"phAdjustment,omitempty"`
}

// Section returns the slot for name, or nil.
func (r *RecordSet) Section(name SectionName) Section {
	if r == nil {
		return nil
	}
	switch name {
	case SectionMetadata:
		return r.Metadata
	case SectionMixingStep:
		return r.MixingStep
	case SectionPHAdjustment:
		return r.PHAdjustment
	}
	return nil
}

// SetSection replaces the slot for name. Unknown names are ignored.
func (r *RecordSet) SetSection(name SectionName, s Section) {
	switch name {
	case SectionMetadata:
		r.Metadata = s
	case SectionMixingStep:
		r.MixingStep = s
	case SectionPHAdjustment:
		r.PHAdjustment = s
	}
}

// Clone deep-copies the record set.
func (r *RecordSet) Clone() *RecordSet {
	if r == nil {
		return nil
	}
	return &RecordSet{
		Metadata:     r.Metadata.Clone(),
		MixingStep:   r.MixingStep.Clone(),
		PHAdjustment: r.PHAdjustment.Clone(),
	}
}

// Empty reports whether no slot is present.
func (r *RecordSet) Empty() bool {
	return r == nil || (r.Metadata == nil && r.MixingStep == nil && r.PHAdjustment == nil)
}

// Snapshot is a serialized record set ready for publishing
type Snapshot struct {
	Metadata     Section `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	MixingStep   Section `json:"mixingStep,omitempty" yaml:"mixingStep,omitempty"`
	PHAdjustment Section `json:"phAdjustment,omitempty" yaml:"phAdjustment,omitempty"`
	Timestamp    string  `json:"timestamp" yaml:"timestamp"`
}

// Section returns the snapshot slot for name, or nil.
func (s Snapshot) Section(name SectionName) Section {
	switch name {
	case SectionMetadata:
		return s.Metadata
	case SectionMixingStep:
		return s.MixingStep
	case SectionPHAdjustment:
		return s.PHAdjustment
	}
	return nil
}

// FormatValue renders a scalar for display and spreadsheet cells.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
