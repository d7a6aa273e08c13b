// Package shared holds helpers used by more than one package.
//
// The testutil subpackage provides the captured slog handler and its
// assertions, plus the buyback fixtures (a January 2014 trading calendar
// and the matching event rows) shared by the source, projection and loader
// tests:
//
//	logger, handler := testutil.NewTestLogger(t)
//	cal := testutil.January2014("2014-01-04", "2014-01-09")
//	testutil.AssertLogContains(t, handler, slog.LevelInfo, "load completed")
//
// Fixtures may import the calendar and contracts packages but nothing that
// imports testutil.
package shared
