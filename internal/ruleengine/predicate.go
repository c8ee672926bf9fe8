package ruleengine

import (
	"fmt"
	"strings"
)

// Attribute names recognized in segment feeds.
const (
	AttributeLocale     = "locale"
	AttributeStorefront = "storefront"
	AttributeSubscriber = "isSubscriber"
)

// PredicateKind enumerates the predicates a segment parameter can be bound to.
// New kinds are added here, never through feed configuration.
type PredicateKind int

const (
	// PredicateUnrecognized is bound to attribute names outside the whitelist.
	// It always passes, so unknown keys never narrow an audience.
	PredicateUnrecognized PredicateKind = iota
	// PredicateLocale matches when the user's locale is in the configured list.
	PredicateLocale
	// PredicateStorefront matches when the user's storefront is in the configured list.
	PredicateStorefront
	// PredicateSubscriber matches when the user's subscriber flag equals the configured value.
	PredicateSubscriber
)

// KindForAttribute maps a feed attribute name to its predicate kind.
func KindForAttribute(attribute string) PredicateKind {
	switch attribute {
	case AttributeLocale:
		return PredicateLocale
	case AttributeStorefront:
		return PredicateStorefront
	case AttributeSubscriber:
		return PredicateSubscriber
	default:
		return PredicateUnrecognized
	}
}

// String returns the attribute name the kind is bound to.
func (k PredicateKind) String() string {
	switch k {
	case PredicateLocale:
		return AttributeLocale
	case PredicateStorefront:
		return AttributeStorefront
	case PredicateSubscriber:
		return AttributeSubscriber
	default:
		return "unrecognized"
	}
}

// Test checks the compiled argument against the user context.
//
// Parameters:
//   - arg: The compiled argument produced by CompileSegment
//     (map[string]struct{} for list predicates, bool for subscriber).
//   - user: The live user context.
//
// Returns an error only if arg has the wrong type, which indicates a bug in the loader.
func (k PredicateKind) Test(arg any, user UserContext) (bool, error) {
	switch k {
	case PredicateLocale:
		return testMembership(arg, normalizeLocale(user.Locale))
	case PredicateStorefront:
		return testMembership(arg, normalizeCode(user.Storefront))
	case PredicateSubscriber:
		want, ok := arg.(bool)
		if !ok {
			return false, fmt.Errorf("invalid %s argument: expected bool, got %T", k, arg)
		}
		return user.Subscriber == want, nil
	default:
		return true, nil
	}
}

func testMembership(arg any, value string) (bool, error) {
	allowed, ok := arg.(map[string]struct{})
	if !ok {
		return false, fmt.Errorf("invalid list argument: expected map[string]struct{}, got %T", arg)
	}
	if value == "" {
		return false, nil
	}
	_, found := allowed[value]
	return found, nil
}

// normalizeLocale makes "en_US", "en-us" and "EN-US" compare equal.
func normalizeLocale(s string) string {
	return strings.ReplaceAll(normalizeCode(s), "_", "-")
}

func normalizeCode(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
