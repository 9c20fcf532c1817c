// Package archive stores extracted snapshots in a Parquet file, one row per
// field, so a batch run can be inspected or published again later.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/parquet-go/parquet-go"

	"github.com/suyaash/batchrec/internal/models"
)

// Row is one field of one section of one file.
type Row struct {
	FileID    string `parquet:"file_id"`
	File      string `parquet:"file"`
	Section   string `parquet:"section"`
	Field     string `parquet:"field"`
	Value     string `parquet:"value"`
	Kind      string `parquet:"kind"` // string, number, bool, null, or empty for a section with no fields
	Timestamp string `parquet:"timestamp"`
}

const (
	kindString = "string"
	kindNumber = "number"
	kindBool   = "bool"
	kindNull   = "null"
	kindEmpty  = "empty"
)

// Entry is the snapshot extracted from one file.
// FileID is the ingestion id; File is only a display name.
type Entry struct {
	FileID   string          `json:"file_id" yaml:"file_id"`
	File     string          `json:"file" yaml:"file"`
	Snapshot models.Snapshot `json:"snapshot" yaml:"snapshot"`
}

// Rows flattens entries in section order, fields sorted by key.
func Rows(entries []Entry) []Row {
	var rows []Row
	for _, e := range entries {
		for _, name := range models.Sections {
			sec := e.Snapshot.Section(name)
			if sec == nil {
				continue
			}
			if len(sec) == 0 {
				rows = append(rows, Row{FileID: e.FileID, File: e.File, Section: string(name), Kind: kindEmpty, Timestamp: e.Snapshot.Timestamp})
				continue
			}
			for _, k := range sortedKeys(sec) {
				value, kind := encodeValue(sec[k])
				rows = append(rows, Row{
					FileID:    e.FileID,
					File:      e.File,
					Section:   string(name),
					Field:     k,
					Value:     value,
					Kind:      kind,
					Timestamp: e.Snapshot.Timestamp,
				})
			}
		}
	}
	return rows
}

// Write encodes entries as a Parquet file.
func Write(w io.Writer, entries []Entry) error {
	pw := parquet.NewGenericWriter[Row](w)
	if _, err := pw.Write(Rows(entries)); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// WriteFile writes entries to path, replacing any existing file.
func WriteFile(path string, entries []Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	if err := Write(f, entries); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	slog.Debug("archive.written", "path", path, "entries", len(entries))
	return nil
}

// ReadFile loads the entries archived at path.
func ReadFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return Read(file, info.Size())
}

// Read decodes a Parquet archive. Entries come back in the order their first
// row was written.
func Read(r io.ReaderAt, size int64) ([]Entry, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	var all []Row
	rows := make([]Row, 128)
	for {
		n, err := reader.Read(rows)
		all = append(all, rows[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	return group(all), nil
}

// group rebuilds entries keyed by ingestion id. Archives written without ids
// fall back to name and timestamp.
func group(rows []Row) []Entry {
	type key struct{ id, file, ts string }
	index := make(map[key]int)
	var entries []Entry

	for _, row := range rows {
		k := key{id: row.FileID, ts: row.Timestamp}
		if row.FileID == "" {
			k.file = row.File
		}
		i, ok := index[k]
		if !ok {
			i = len(entries)
			index[k] = i
			entries = append(entries, Entry{FileID: row.FileID, File: row.File, Snapshot: models.Snapshot{Timestamp: row.Timestamp}})
		}
		snap := &entries[i].Snapshot

		name := models.SectionName(row.Section)
		sec := snap.Section(name)
		if sec == nil {
			sec = models.Section{}
			setSection(snap, name, sec)
		}
		if row.Kind != kindEmpty {
			sec[row.Field] = decodeValue(row.Value, row.Kind)
		}
	}
	return entries
}

func setSection(s *models.Snapshot, name models.SectionName, sec models.Section) {
	switch name {
	case models.SectionMetadata:
		s.Metadata = sec
	case models.SectionMixingStep:
		s.MixingStep = sec
	case models.SectionPHAdjustment:
		s.PHAdjustment = sec
	}
}

func encodeValue(v any) (string, string) {
	switch t := v.(type) {
	case nil:
		return "", kindNull
	case bool:
		return models.FormatValue(t), kindBool
	case json.Number, float64, int:
		return models.FormatValue(t), kindNumber
	default:
		return models.FormatValue(t), kindString
	}
}

func decodeValue(value, kind string) any {
	switch kind {
	case kindNull:
		return nil
	case kindBool:
		return value == "true"
	case kindNumber:
		return json.Number(value)
	default:
		return value
	}
}

func sortedKeys(s models.Section) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
