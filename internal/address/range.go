package address

import "strings"

// CellRange is a rectangular, same-sheet span between TopLeft and
// BottomRight (inclusive), with TopLeft <= BottomRight componentwise.
// A single-cell range has TopLeft == BottomRight.
type CellRange struct {
	TopLeft     CellAddress
	BottomRight CellAddress
}

// Size returns the number of cells the range covers, without allocating.
// Callers use this to decide whether a range is cheap to expand in full
// or must be capped (see the dag package's range fan-out limit).
func (r CellRange) Size() int {
	rows := int(r.BottomRight.Row-r.TopLeft.Row) + 1
	cols := int(r.BottomRight.Col-r.TopLeft.Col) + 1
	if rows <= 0 || cols <= 0 {
		return 0
	}
	return rows * cols
}

// Contains reports whether addr falls within the range on the same sheet.
func (r CellRange) Contains(addr CellAddress) bool {
	if addr.Sheet != r.TopLeft.Sheet {
		return false
	}
	return addr.Row >= r.TopLeft.Row && addr.Row <= r.BottomRight.Row &&
		addr.Col >= r.TopLeft.Col && addr.Col <= r.BottomRight.Col
}

// Expand returns every address in the range in row-major order. Callers
// with large ranges should check Size first; Expand itself does not
// cap how much it materializes.
func (r CellRange) Expand() []CellAddress {
	out := make([]CellAddress, 0, r.Size())
	r.Each(func(a CellAddress) bool {
		out = append(out, a)
		return true
	})
	return out
}

// Each walks the range in row-major order, calling fn for each address
// until fn returns false or the range is exhausted. This is the lazy,
// finite enumeration spec.md §4.1 calls for.
func (r CellRange) Each(fn func(CellAddress) bool) {
	sheet := r.TopLeft.Sheet
	for row := r.TopLeft.Row; row <= r.BottomRight.Row; row++ {
		for col := r.TopLeft.Col; col <= r.BottomRight.Col; col++ {
			if !fn(CellAddress{Sheet: sheet, Row: row, Col: col}) {
				return
			}
		}
	}
}

// String renders "TopLeft:BottomRight" using TopLeft's sheet-qualified
// canonical form; BottomRight is emitted unqualified since both cells
// share a sheet by construction.
func (r CellRange) String() string {
	return ToA1(r.TopLeft) + ":" + ColumnToLetters(r.BottomRight.Col) +
		itoa(r.BottomRight.Row)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// ParseRange parses an "A1:B2" style range, optionally sheet-qualified on
// the first operand, into a CellRange. Both operands are resolved against
// the same sheet; TopLeft/BottomRight are normalized so the result always
// satisfies TopLeft <= BottomRight componentwise, regardless of corner
// order in the input (e.g. "B2:A1" is accepted).
func ParseRange(s string) (CellRange, error) {
	return parseRangeWithDefaultSheet(s, "")
}

func parseRangeWithDefaultSheet(s string, defaultSheet string) (CellRange, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return CellRange{}, parseErr(ErrEmpty, s)
	}
	parts := strings.SplitN(trimmed, ":", 2)
	if len(parts) != 2 {
		return CellRange{}, parseErr(ErrMalformed, s)
	}
	first, err := parseA1WithDefaultSheet(parts[0], defaultSheet)
	if err != nil {
		return CellRange{}, err
	}
	// The second operand inherits the first's resolved sheet when bare.
	second, err := parseA1WithDefaultSheet(parts[1], first.Sheet)
	if err != nil {
		return CellRange{}, err
	}
	if second.Sheet != first.Sheet {
		return CellRange{}, parseErr(ErrMalformed, s)
	}
	top, bottom := normalizeCorners(first, second)
	return CellRange{TopLeft: top, BottomRight: bottom}, nil
}

func normalizeCorners(a, b CellAddress) (top, bottom CellAddress) {
	top = CellAddress{Sheet: a.Sheet, Row: minU32(a.Row, b.Row), Col: minU32(a.Col, b.Col)}
	bottom = CellAddress{Sheet: a.Sheet, Row: maxU32(a.Row, b.Row), Col: maxU32(a.Col, b.Col)}
	return
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
