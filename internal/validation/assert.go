// Package validation holds constructor guards. They panic because a missing
// dependency is a wiring bug caught at startup, not a runtime condition.
package validation

import "fmt"

// AssertNotNil panics if ptr is nil.
//
//	validation.AssertNotNil(cfg, "server config")
func AssertNotNil[T any](ptr *T, name string) {
	if ptr == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
}

// AssertProvided panics if dep is a nil interface value. A typed nil pointer
// stored in an interface is not detected; pair it with AssertNotNil when the
// concrete type is known.
func AssertProvided(dep any, name string) {
	if dep == nil {
		panic(fmt.Sprintf("critical error: %s must be provided", name))
	}
}
