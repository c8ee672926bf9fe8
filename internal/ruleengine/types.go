// Package ruleengine provides the segment evaluation logic for experiment eligibility.
// A Segment is a named rule that combines a fixed set of attribute predicates
// (locale, storefront, subscriber status) with a single boolean operator.
package ruleengine

import (
	"fmt"
	"strings"
)

// UserContext is the read-only snapshot of the user being evaluated.
// It is supplied fresh on every evaluation by the caller (auth/user service).
type UserContext struct {
	// Identity is the stable, opaque per-user identifier used as hash input.
	// Empty when the user is signed out.
	Identity string `json:"identity"`

	// Locale is the user's current locale (e.g., "en_US").
	Locale string `json:"locale"`

	// Storefront is the storefront/country code the user is browsing (e.g., "US").
	Storefront string `json:"storefront"`

	// Subscriber reports whether the user holds an active subscription.
	Subscriber bool `json:"subscriber"`

	// Entitlements lists the offers the user owns. Not consumed by any predicate yet.
	Entitlements []string `json:"entitlements,omitempty"`
}

// HasIdentity reports whether the context carries a usable stable identity.
func (u UserContext) HasIdentity() bool {
	return strings.TrimSpace(u.Identity) != ""
}

// Operator combines the results of a segment's predicates.
type Operator string

const (
	// OperatorAnd requires every predicate to match.
	OperatorAnd Operator = "AND"
	// OperatorOr requires at least one predicate to match.
	OperatorOr Operator = "OR"
)

// ParseOperator normalizes the feed representation of an operator.
func ParseOperator(s string) (Operator, error) {
	switch Operator(strings.ToUpper(strings.TrimSpace(s))) {
	case OperatorAnd:
		return OperatorAnd, nil
	case OperatorOr:
		return OperatorOr, nil
	default:
		return "", fmt.Errorf("unsupported rule operator %q (expected AND or OR)", s)
	}
}

// Identity returns the neutral element of the operator: the result of a rule
// with no parameters.
func (o Operator) Identity() bool {
	return o == OperatorAnd
}

// Parameter is a single compiled predicate of a segment rule.
type Parameter struct {
	// Attribute is the attribute name as it appeared in the feed.
	Attribute string

	// Kind selects the predicate implementation.
	Kind PredicateKind

	// Arg is the pre-processed argument (e.g., a lookup set for list predicates).
	// Nil for unrecognized attributes.
	Arg any
}

// Segment is a named, immutable eligibility rule.
type Segment struct {
	Name       string
	Operator   Operator
	Parameters []Parameter
}
