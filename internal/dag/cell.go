package dag

import (
	"regexp"

	"github.com/cellgraph/engine/internal/address"
)

// Flags is the bitset that is the single source of truth for a cell's
// derived boolean attributes, per spec.md §3 ("Dynamic dispatch / duck
// typing" design note: no attribute probing, just this bitset).
type Flags uint8

const (
	HasFormula Flags = 1 << iota
	IsInput
	IsOutput
	HasError
)

// Value is the cell's literal value: string, float64, bool, or nil.
type Value any

var errorLiteralRe = regexp.MustCompile(`^(#REF!|#NAME\?|#DIV/0!|#VALUE!|#N/A|#NULL!|#NUM!)$`)

// IsErrorLiteral reports whether s is one of the recognized spreadsheet
// error literals, per spec.md §3's has_error trigger.
func IsErrorLiteral(s string) bool {
	return errorLiteralRe.MatchString(s)
}

// Cell is one addressable node of the graph: a populated workbook cell,
// or an implicit node inserted for a reference that targets an address
// the reader never reported (see Builder.ensureNode).
type Cell struct {
	Address address.CellAddress
	Value   Value
	Formula string
	Flags   Flags

	// DynamicUnresolved records whether this cell's formula contained an
	// INDIRECT/OFFSET/INDEX call the dynamic resolver could not reduce.
	DynamicUnresolved bool
	// LexError records whether the tokenizer had to skip unrecognized
	// input while scanning this cell's formula.
	LexError bool
	// HasErrorToken records whether this cell's formula token stream
	// itself contains a literal error token (e.g. "=A1+#REF!"), distinct
	// from LexError's unrecognized-input recovery.
	HasErrorToken bool
	// Complexity is the formula's operator-token count (spec.md §4.6's
	// high_complexity trigger), 0 for non-formula cells.
	Complexity int
}

func (c Cell) HasFormula() bool { return c.Flags&HasFormula != 0 }
func (c Cell) IsInput() bool    { return c.Flags&IsInput != 0 }
func (c Cell) IsOutput() bool   { return c.Flags&IsOutput != 0 }
func (c Cell) HasError() bool   { return c.Flags&HasError != 0 }

// newPopulatedCell builds the Cell for a reader-reported record,
// deriving has_formula/is_input/has_error per spec.md §3.
func newPopulatedCell(addr address.CellAddress, value Value, formula string) Cell {
	c := Cell{Address: addr, Value: value, Formula: formula}
	if formula != "" {
		c.Flags |= HasFormula
	} else if value != nil {
		c.Flags |= IsInput
	}
	if s, ok := value.(string); ok && IsErrorLiteral(s) {
		c.Flags |= HasError
	}
	return c
}

// newImplicitNode builds the all-flags-clear node for an address that
// some formula references but the reader never populated.
func newImplicitNode(addr address.CellAddress) Cell {
	return Cell{Address: addr}
}
