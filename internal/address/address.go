// Package address implements the canonical cell-address representation:
// A1-style parsing and emission, range expansion, and ordering.
package address

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// MaxRow is the highest row index accepted (1-based), matching Excel's grid.
	MaxRow uint32 = 1_048_576
	// MaxCol is the highest column index accepted (1-based), matching Excel's grid.
	MaxCol uint32 = 16_384
)

// ErrorKind classifies why an address or range string could not be parsed.
type ErrorKind string

const (
	ErrEmpty       ErrorKind = "empty"
	ErrInvalidChar ErrorKind = "invalid_char"
	ErrZeroIndex   ErrorKind = "zero_index"
	ErrOutOfRange  ErrorKind = "out_of_range"
	ErrMalformed   ErrorKind = "malformed"
)

// ParseError reports why a cell or range string failed to parse. It is
// returned, never panicked or thrown, so callers can recover per-formula.
type ParseError struct {
	Kind  ErrorKind
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("address: %s: %q", e.Kind, e.Input)
}

func parseErr(kind ErrorKind, input string) error {
	return &ParseError{Kind: kind, Input: input}
}

// CellAddress is the immutable triple (sheet, row, col). Row and col are
// 1-based, matching A1 notation. Zero values never occur in a valid address.
type CellAddress struct {
	Sheet string
	Row   uint32
	Col   uint32
}

// Less orders addresses by (sheet, row, col), used for deterministic output
// and for picking the lexicographically smallest node in a cycle.
func (a CellAddress) Less(b CellAddress) bool {
	if a.Sheet != b.Sheet {
		return a.Sheet < b.Sheet
	}
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Col < b.Col
}

// Equal reports componentwise equality.
func (a CellAddress) Equal(b CellAddress) bool {
	return a.Sheet == b.Sheet && a.Row == b.Row && a.Col == b.Col
}

// String renders the canonical "Sheet!A1" form (see ToA1).
func (a CellAddress) String() string {
	return ToA1(a)
}

// bareSheetName matches sheet names that need no quoting on emission.
var bareSheetName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_ ]*$`)

// ToA1 renders the canonical string form of an address: an unquoted
// "Sheet!A1" when the sheet name needs no quoting, otherwise a quoted
// "'Sheet Name'!A1" with any embedded quote doubled.
func ToA1(a CellAddress) string {
	col := ColumnToLetters(a.Col)
	cellPart := fmt.Sprintf("%s%d", col, a.Row)
	if a.Sheet == "" {
		return cellPart
	}
	return quoteSheetIfNeeded(a.Sheet) + "!" + cellPart
}

func quoteSheetIfNeeded(sheet string) string {
	if bareSheetName.MatchString(sheet) {
		return sheet
	}
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

// cellPattern captures an optional quoted or bare sheet prefix, optional
// absolute markers on column/row, column letters, and a decimal row.
var cellPattern = regexp.MustCompile(`^(?:(?:'([^']*)'|([A-Za-z_][A-Za-z0-9_ ]*))!)?\$?([A-Za-z]+)\$?([0-9]+)$`)

// ParseA1 parses a single-cell reference, optionally sheet-qualified
// (quoted or bare), into a CellAddress. Absolute markers ($) are accepted
// but not preserved. Returns a *ParseError, never panics.
func ParseA1(s string) (CellAddress, error) {
	return parseA1WithDefaultSheet(s, "")
}

// parseA1WithDefaultSheet parses s, using defaultSheet when s carries no
// sheet qualifier of its own.
func parseA1WithDefaultSheet(s string, defaultSheet string) (CellAddress, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return CellAddress{}, parseErr(ErrEmpty, s)
	}
	m := cellPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return CellAddress{}, parseErr(ErrMalformed, s)
	}
	sheet := defaultSheet
	if m[1] != "" {
		sheet = m[1]
	} else if m[2] != "" {
		sheet = m[2]
	}
	col, err := LettersToColumn(m[3])
	if err != nil {
		return CellAddress{}, parseErr(ErrInvalidChar, s)
	}
	rowVal, err := strconv.ParseUint(m[4], 10, 64)
	if err != nil {
		return CellAddress{}, parseErr(ErrMalformed, s)
	}
	if rowVal == 0 {
		return CellAddress{}, parseErr(ErrZeroIndex, s)
	}
	if rowVal > uint64(MaxRow) {
		return CellAddress{}, parseErr(ErrOutOfRange, s)
	}
	if col == 0 {
		return CellAddress{}, parseErr(ErrZeroIndex, s)
	}
	if col > MaxCol {
		return CellAddress{}, parseErr(ErrOutOfRange, s)
	}
	return CellAddress{Sheet: sheet, Row: uint32(rowVal), Col: col}, nil
}

// ColumnToLetters converts a 1-based column index to its base-26 letters
// (A=1, Z=26, AA=27, ...). Callers must pass col >= 1.
func ColumnToLetters(col uint32) string {
	if col == 0 {
		return ""
	}
	var buf [8]byte
	i := len(buf)
	for col > 0 {
		col--
		i--
		buf[i] = byte('A' + col%26)
		col /= 26
	}
	return string(buf[i:])
}

// LettersToColumn converts base-26 column letters to a 1-based index.
// Returns an error if s contains non-letter characters or is empty.
func LettersToColumn(s string) (uint32, error) {
	if s == "" {
		return 0, fmt.Errorf("address: empty column letters")
	}
	var col uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		var v uint64
		switch {
		case c >= 'A' && c <= 'Z':
			v = uint64(c-'A') + 1
		case c >= 'a' && c <= 'z':
			v = uint64(c-'a') + 1
		default:
			return 0, fmt.Errorf("address: invalid column char %q", c)
		}
		col = col*26 + v
		if col > uint64(MaxCol)*2 {
			// Guard against pathological overflow before the final range check.
			return 0, fmt.Errorf("address: column out of range: %q", s)
		}
	}
	return uint32(col), nil
}
