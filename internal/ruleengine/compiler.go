package ruleengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

const (
	// MaxListSize limits the number of entries in a locale/storefront list.
	// Segment lists are short by nature; a huge list points at a broken feed.
	MaxListSize = 10_000
)

// RuleDefinition is the raw rule as delivered by the segment feed.
type RuleDefinition struct {
	Operator   string                         `json:"operator" yaml:"operator"`
	Parameters map[string]ParameterDefinition `json:"parameters" yaml:"parameters"`
}

// ParameterDefinition holds the raw argument of one attribute predicate.
type ParameterDefinition struct {
	Arg json.RawMessage `json:"arg" yaml:"arg"`
}

// CompileSegment turns a raw rule into a Segment with every parameter bound to
// its predicate and its argument pre-processed into an efficient structure.
// Parameters are ordered by attribute name so evaluation order is stable.
//
// Unrecognized attribute names compile to PredicateUnrecognized and are kept.
// A recognized attribute with a missing or mistyped argument is an error.
func CompileSegment(name string, def RuleDefinition) (*Segment, error) {
	op, err := ParseOperator(def.Operator)
	if err != nil {
		return nil, fmt.Errorf("segment %q: %w", name, err)
	}

	attributes := make([]string, 0, len(def.Parameters))
	for attr := range def.Parameters {
		attributes = append(attributes, attr)
	}
	slices.Sort(attributes)

	params := make([]Parameter, 0, len(attributes))
	for _, attr := range attributes {
		p, err := compileParameter(attr, def.Parameters[attr])
		if err != nil {
			return nil, fmt.Errorf("segment %q: %w", name, err)
		}
		params = append(params, p)
	}

	return &Segment{
		Name:       name,
		Operator:   op,
		Parameters: params,
	}, nil
}

// compileParameter binds one attribute to its predicate.
func compileParameter(attr string, def ParameterDefinition) (Parameter, error) {
	kind := KindForAttribute(attr)
	p := Parameter{Attribute: attr, Kind: kind}

	if kind == PredicateUnrecognized {
		return p, nil
	}

	raw := bytes.TrimSpace(def.Arg)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return p, fmt.Errorf("parameter %q: arg is required", attr)
	}

	switch kind {
	case PredicateLocale:
		set, err := compileList(attr, raw, normalizeLocale)
		if err != nil {
			return p, err
		}
		p.Arg = set
	case PredicateStorefront:
		set, err := compileList(attr, raw, normalizeCode)
		if err != nil {
			return p, err
		}
		p.Arg = set
	case PredicateSubscriber:
		var want bool
		if err := json.Unmarshal(raw, &want); err != nil {
			return p, fmt.Errorf("parameter %q: arg must be a boolean: %w", attr, err)
		}
		p.Arg = want
	}

	return p, nil
}

// compileList parses a JSON string array into a normalized lookup set.
// A single string is accepted as a one-element list.
func compileList(attr string, raw []byte, normalize func(string) string) (map[string]struct{}, error) {
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		var single string
		if errSingle := json.Unmarshal(raw, &single); errSingle != nil {
			return nil, fmt.Errorf("parameter %q: arg must be a list of strings: %w", attr, err)
		}
		values = []string{single}
	}

	if len(values) > MaxListSize {
		return nil, fmt.Errorf("parameter %q: list exceeds maximum size: %d > %d", attr, len(values), MaxListSize)
	}

	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if n := normalize(v); n != "" {
			set[n] = struct{}{}
		}
	}
	return set, nil
}
