// Package engerr defines the three error kinds the analysis engine
// raises (spec.md §7) and a small catalog of canonical codes within
// each kind, used for consistent operator-facing messages.
package engerr

import (
	"errors"
	"fmt"
)

// Kind is one of the three error kinds spec.md §7 allows the engine to
// surface. No exception-like control flow crosses component boundaries:
// every component returns a (result, error) pair typed to one of these.
type Kind string

const (
	// KindReader means the underlying WorkbookReader failed; the run is
	// aborted and the error surfaced unchanged.
	KindReader Kind = "reader"
	// KindParse means a specific formula could not be tokenized.
	// Recovered locally by the caller: never aborts the run.
	KindParse Kind = "parse"
	// KindInvariant means a post-condition check failed inside the
	// engine itself — a bug, not a data problem. Fatal.
	KindInvariant Kind = "invariant"
)

// Code is a canonical sub-classification within a Kind, for operators
// and logs rather than for programmatic branching (callers should
// branch on Kind and, where useful, errors.As to *Error).
type Code string

const (
	CodeWorkbookOpenFailed   Code = "WORKBOOK_OPEN_FAILED"
	CodeSheetEnumFailed      Code = "SHEET_ENUM_FAILED"
	CodeCellEnumFailed       Code = "CELL_ENUM_FAILED"
	CodeNamedRangeReadFailed Code = "NAMED_RANGE_READ_FAILED"

	CodeLexRecovery     Code = "LEX_RECOVERY"
	CodeAddressMalformed Code = "ADDRESS_MALFORMED"

	CodeUnknownEdgeEndpoint Code = "UNKNOWN_EDGE_ENDPOINT"
	CodeNegativeMetric      Code = "NEGATIVE_METRIC"
	CodeNonDeterministicSort Code = "NON_DETERMINISTIC_SORT"
)

type entry struct {
	kind    Kind
	message string
}

var catalog = map[Code]entry{
	CodeWorkbookOpenFailed:   {KindReader, "failed to open workbook"},
	CodeSheetEnumFailed:      {KindReader, "failed to enumerate sheets"},
	CodeCellEnumFailed:       {KindReader, "failed to enumerate populated cells"},
	CodeNamedRangeReadFailed: {KindReader, "failed to read named ranges"},

	CodeLexRecovery:      {KindParse, "formula contained unrecognized input"},
	CodeAddressMalformed: {KindParse, "reference did not match a known address form"},

	CodeUnknownEdgeEndpoint:  {KindInvariant, "edge endpoint is not a graph node"},
	CodeNegativeMetric:       {KindInvariant, "computed metric fell outside its valid range"},
	CodeNonDeterministicSort: {KindInvariant, "two analysis runs over the same reader diverged"},
}

// Error is the engine's single error type: a Kind, a Code, an optional
// offending cell address (rendered as a string so pkg/engerr has no
// dependency on internal/address), and a wrapped cause.
type Error struct {
	Kind    Kind
	Code    Code
	Cell    string // canonical A1 address, "" if not cell-scoped
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		if ent, ok := catalog[e.Code]; ok {
			msg = ent.message
		}
	}
	if e.Cell != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Cell)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return fmt.Sprintf("%s(%s): %s", e.Kind, e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(code Code, cell string, cause error, format string, args ...any) *Error {
	ent := catalog[code]
	e := &Error{Kind: ent.kind, Code: code, Cell: cell, Cause: cause}
	if format != "" {
		e.Message = fmt.Sprintf(format, args...)
	}
	return e
}

// Reader wraps a WorkbookReader failure (spec.md §7: "surfaced unchanged").
func Reader(code Code, cause error) *Error {
	return newErr(code, "", cause, "")
}

// Parse reports a formula that could not be fully tokenized, scoped to
// the cell that raised it.
func Parse(code Code, cell string, cause error) *Error {
	return newErr(code, cell, cause, "")
}

// Invariant reports a failed post-condition inside the engine itself.
func Invariant(code Code, format string, args ...any) *Error {
	return newErr(code, "", nil, format, args...)
}

// IsKind reports whether err is an *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
