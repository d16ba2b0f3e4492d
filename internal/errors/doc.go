// Package errors provides coded, user-facing errors for the liveview
// command and its configuration layer.
//
// Each code maps to a registered category, message and detail. Callers
// attach a file location, a hint and an example before printing:
//
//	err := errors.New("E120").
//	    WithLocation("liveview.yaml", 7, 11).
//	    WithSuggestion("use one of memory, redis, postgres, sqlite, s3")
//
//	errors.Fprint(os.Stderr, err)
//
// Errors from the runtime packages (pkg/...) are plain Go errors; this
// package only wraps them at the command boundary.
package errors
