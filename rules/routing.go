//go:build ruleguard

// Package gorules defines custom linter rules for this repository.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// EnhancedErrors flags stdlib error construction in production code.
// Errors crossing package boundaries carry a component and a category so
// the API and metrics can classify them.
//
//	errors.New("device busy")
//
// should be
//
//	errors.Newf("device busy").Component("...").Category(...).Build()
func EnhancedErrors(m dsl.Matcher) {
	m.Match(`errors.New($msg)`).
		Where(m.File().Imports("errors") &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report("use internal/errors so the error carries a component and category")
}

// ServiceLoggers flags slog.Default outside the logging package; loggers
// come from logging.ForService so every record names its service.
func ServiceLoggers(m dsl.Matcher) {
	m.Match(`slog.Default()`).
		Where(!m.File().PkgPath.Matches(`/internal/logging$`)).
		Report("use logging.ForService instead of slog.Default")
}

// TestingContext detects context.Background() or context.TODO() in tests
// and suggests t.Context(), which is cancelled when the test ends.
func TestingContext(m dsl.Matcher) {
	m.Match(`context.Background()`, `context.TODO()`).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("use t.Context() in tests")
}
