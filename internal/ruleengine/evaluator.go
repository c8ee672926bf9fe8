package ruleengine

import (
	"log/slog"
)

// Evaluator tests segment membership for a user context.
// It is stateless and safe for concurrent use.
type Evaluator struct {
	logger *slog.Logger
}

// NewEvaluator creates a new Evaluator.
// If logger is nil, it defaults to slog.Default().
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{logger: logger}
}

// Evaluate reports whether the user belongs to the segment.
//
// The running result starts at the operator's identity (true for AND, false for OR)
// and evaluation short-circuits on the first deciding predicate.
// A nil segment never matches.
func (e *Evaluator) Evaluate(seg *Segment, user UserContext) bool {
	if seg == nil {
		return false
	}

	result := seg.Operator.Identity()

	for _, p := range seg.Parameters {
		match, err := p.Kind.Test(p.Arg, user)
		if err != nil {
			// A mistyped argument cannot prove membership.
			e.logger.Error("segment predicate failed",
				slog.String("segment", seg.Name),
				slog.String("attribute", p.Attribute),
				slog.String("error", err.Error()),
			)
			match = false
		}

		switch seg.Operator {
		case OperatorOr:
			if match {
				return true
			}
		default:
			if !match {
				return false
			}
		}
	}

	return result
}
