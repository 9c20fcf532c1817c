package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/models"
)

// Strategy locates a JSON candidate inside a model reply.
type Strategy struct {
	Name      string
	Candidate func(reply string) (string, bool)
}

var (
	fencedRe    = regexp.MustCompile("(?is)```json\\s*(.*?)```")
	bracketedRe = regexp.MustCompile(`\[\s*\{[^{}]*\}\s*,\s*\{[^{}]*\}\s*,\s*\{[^{}]*\}\s*\]`)
)

// DefaultStrategies is the order replies are tried in. The first candidate that
// decodes to flat records wins.
var DefaultStrategies = []Strategy{
	{Name: "fenced_json", Candidate: fencedJSON},
	{Name: "whole_body", Candidate: wholeBody},
	{Name: "bracketed_objects", Candidate: bracketedObjects},
}

func fencedJSON(reply string) (string, bool) {
	m := fencedRe.FindStringSubmatch(reply)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func wholeBody(reply string) (string, bool) {
	s := strings.TrimSpace(reply)
	return s, s != ""
}

func bracketedObjects(reply string) (string, bool) {
	s := bracketedRe.FindString(reply)
	return s, s != ""
}

// ParseReply decodes a model reply into a record set. Elements map by position
// to metadata, mixingStep and phAdjustment; missing elements leave the slot nil.
func ParseReply(reply string) (*models.RecordSet, error) {
	rs, _, err := parseWith(reply, DefaultStrategies)
	return rs, err
}

func parseWith(reply string, strategies []Strategy) (*models.RecordSet, string, error) {
	var lastErr error
	for _, s := range strategies {
		candidate, ok := s.Candidate(reply)
		if !ok {
			continue
		}
		sections, err := decodeSections(candidate)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", s.Name, err)
			continue
		}
		return toRecordSet(sections), s.Name, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no JSON found in reply")
	}
	return nil, "", apperr.Parse(lastErr, "could not parse structured data from the model reply")
}

func decodeSections(candidate string) ([]models.Section, error) {
	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}

	schema, err := recordSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("json does not match schema: %w", err)
	}

	var items []any
	switch t := v.(type) {
	case map[string]any:
		items = []any{t}
	case []any:
		items = t
	}

	sections := make([]models.Section, 0, len(items))
	for _, item := range items {
		sections = append(sections, models.Section(item.(map[string]any)))
	}
	return sections, nil
}

func toRecordSet(sections []models.Section) *models.RecordSet {
	rs := &models.RecordSet{}
	for i, name := range models.Sections {
		if i < len(sections) {
			rs.SetSection(name, sections[i])
		}
	}
	return rs
}

// sectionsSchema accepts one flat object or an array of flat objects.
const sectionsSchema = `{
  "$defs": {
    "section": {
      "type": "object",
      "additionalProperties": {"type": ["string", "number", "boolean", "null"]}
    }
  },
  "anyOf": [
    {"$ref": "#/$defs/section"},
    {"type": "array", "items": {"$ref": "#/$defs/section"}}
  ]
}`

var recordSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("sections.json", strings.NewReader(sectionsSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("sections.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})
