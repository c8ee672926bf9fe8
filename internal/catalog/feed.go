package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rafaeljc/bifrost/internal/ruleengine"
)

// ErrMalformedFeed is returned when a feed payload cannot be turned into a
// consistent catalog. A malformed record fails the whole load.
var ErrMalformedFeed = errors.New("malformed feed")

// dateLayouts lists the accepted feed date formats, tried in order.
// Layouts without a zone are interpreted as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// validate is safe for concurrent use and caches struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ExperimentRecord is the raw shape of one experiment in the experiment feed.
type ExperimentRecord struct {
	ExperimentID    string          `json:"experimentId" validate:"required"`
	StartDate       string          `json:"startDate" validate:"required"`
	EndDate         string          `json:"endDate"`
	Segments        []string        `json:"segments" validate:"dive,required"`
	Variants        []VariantRecord `json:"variants" validate:"required,dive"`
	VariantOverride string          `json:"variantOverride"`
}

// VariantRecord is the raw shape of one variant.
type VariantRecord struct {
	Name       string   `json:"name" validate:"required"`
	Percentage *float64 `json:"percentage" validate:"required"`
}

// SegmentRecord is the raw shape of one segment in the segment feed.
type SegmentRecord struct {
	Rule *ruleengine.RuleDefinition `json:"rule" validate:"required"`
}

// ParseExperiments decodes the experiment feed: a JSON object keyed by experiment name.
func ParseExperiments(data []byte) (map[string]*Experiment, error) {
	var records map[string]ExperimentRecord
	if err := decodeFeed(data, &records); err != nil {
		return nil, fmt.Errorf("%w: experiments: %v", ErrMalformedFeed, err)
	}

	experiments := make(map[string]*Experiment, len(records))
	for name, rec := range records {
		exp, err := rec.toExperiment(name)
		if err != nil {
			return nil, fmt.Errorf("%w: experiment %q: %v", ErrMalformedFeed, name, err)
		}
		experiments[name] = exp
	}
	return experiments, nil
}

// ParseSegments decodes the segment feed: a JSON object keyed by segment name.
// Every parameter is bound to its predicate at this point.
func ParseSegments(data []byte) (map[string]*ruleengine.Segment, error) {
	var records map[string]SegmentRecord
	if err := decodeFeed(data, &records); err != nil {
		return nil, fmt.Errorf("%w: segments: %v", ErrMalformedFeed, err)
	}

	segments := make(map[string]*ruleengine.Segment, len(records))
	for name, rec := range records {
		if err := validate.Struct(rec); err != nil {
			return nil, fmt.Errorf("%w: segment %q: %v", ErrMalformedFeed, name, err)
		}
		seg, err := ruleengine.CompileSegment(name, *rec.Rule)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
		}
		segments[name] = seg
	}
	return segments, nil
}

// decodeFeed rejects empty payloads and anything that is not a JSON object.
func decodeFeed(data []byte, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return errors.New("empty payload")
	}
	if trimmed[0] != '{' {
		return errors.New("payload must be a JSON object keyed by name")
	}
	return json.Unmarshal(trimmed, v)
}

func (r ExperimentRecord) toExperiment(name string) (*Experiment, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("name cannot be empty")
	}
	if err := validate.Struct(r); err != nil {
		return nil, err
	}

	start, err := parseDate(r.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid startDate: %w", err)
	}

	var end time.Time
	if strings.TrimSpace(r.EndDate) != "" {
		if end, err = parseDate(r.EndDate); err != nil {
			return nil, fmt.Errorf("invalid endDate: %w", err)
		}
	}

	variants := make([]Variant, len(r.Variants))
	for i, v := range r.Variants {
		p := *v.Percentage
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, fmt.Errorf("variant %q: percentage must be between 0 and 1, got %v", v.Name, p)
		}
		variants[i] = Variant{Name: v.Name, Percentage: p}
	}

	segments := r.Segments
	if segments == nil {
		segments = []string{}
	}

	return &Experiment{
		Name:            name,
		ExperimentID:    r.ExperimentID,
		StartDate:       start,
		EndDate:         end,
		Segments:        segments,
		Variants:        variants,
		VariantOverride: strings.TrimSpace(r.VariantOverride),
	}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
