package errors

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"os"
)

// Category groups errors by the layer that raised them.
type Category string

const (
	CategoryConfig Category = "config"
	CategoryStore  Category = "store"
	CategoryCLI    Category = "cli"
	CategoryServer Category = "server"
)

// Location is a position in a configuration file.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as file:line[:column].
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Error is a coded, user-facing error with an optional hint.
type Error struct {
	// Code is the registry code (e.g., "E101").
	Code string

	// Category is the layer that raised the error.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation.
	Detail string

	// Location points into the file that caused the error, if any.
	Location *Location

	// Context holds the lines around Location.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Example shows a correct configuration snippet.
	Example string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code != "" && t.Code == e.Code
}

// WithLocation adds a file position and reads the surrounding lines.
func (e *Error) WithLocation(file string, line, column int) *Error {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, 5)
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithExample adds a configuration example to the error.
func (e *Error) WithExample(ex string) *Error {
	e.Example = ex
	return e
}

// WithDetail replaces the registered detail.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}
	return lines
}

// New creates an Error from a registered code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates an uncoded Error with a formatted message.
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps err under code unless it already is an *Error.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return New(code).Wrap(err)
}

// HasCode reports whether err or any error it wraps is an *Error with code.
func HasCode(err error, code string) bool {
	var e *Error
	for err != nil {
		if stderrors.As(err, &e) {
			if e.Code == code {
				return true
			}
			err = e.Wrapped
			continue
		}
		return false
	}
	return false
}
