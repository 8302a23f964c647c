// Package dynamic implements the best-effort, single-pass resolver for
// INDIRECT/OFFSET/INDEX described in spec.md §4.4. It only reduces calls
// whose relevant arguments are literal or resolve to already-known
// constant cells; everything else is left unresolved and flagged.
package dynamic

import (
	"strconv"
	"strings"

	"github.com/cellgraph/engine/internal/address"
	"github.com/cellgraph/engine/internal/tokenizer"
)

// Kind distinguishes the shape of a resolved reference.
type Kind int

const (
	ResolvedCell Kind = iota
	ResolvedRange
)

// Resolved is one dynamic reference the resolver reduced to a concrete
// address or range. The DAG builder assigns it DependencyEdge kind=dynamic.
type Resolved struct {
	Kind    Kind
	Address address.CellAddress
	Range   address.CellRange
}

// Literals exposes the constant values the resolver may consult when an
// argument is itself a cell reference rather than a literal. Only cells
// known to be non-formula inputs (Phase 1 of the DAG builder) participate.
type Literals interface {
	NumberAt(addr address.CellAddress) (float64, bool)
	StringAt(addr address.CellAddress) (string, bool)
}

// Outcome is the result of scanning one formula's tokens for dynamic
// calls: zero or more reductions, plus whether any INDIRECT/OFFSET/INDEX
// call could not be reduced (the dynamic_unresolved anomaly hint).
type Outcome struct {
	Resolved   []Resolved
	Unresolved bool
}

var dynamicFuncs = map[string]bool{"INDIRECT": true, "OFFSET": true, "INDEX": true}

// Resolve scans tokens for INDIRECT/OFFSET/INDEX calls and attempts to
// reduce each to a concrete cell or range reference, relative to
// homeSheet when a call's base argument carries no explicit sheet.
func Resolve(tokens []tokenizer.Token, homeSheet string, lits Literals) Outcome {
	toks := tokenizer.NonWS(tokens)
	var out Outcome

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.Kind != tokenizer.Func || !dynamicFuncs[t.Text] {
			continue
		}
		if i+1 >= len(toks) || toks[i+1].Kind != tokenizer.LParen {
			continue
		}
		args, end, ok := splitArgs(toks, i+1)
		if !ok {
			out.Unresolved = true
			continue
		}
		i = end // resume after the call's closing paren

		var (
			res Resolved
			got bool
		)
		switch t.Text {
		case "INDIRECT":
			res, got = resolveIndirect(args, homeSheet)
		case "OFFSET":
			res, got = resolveOffset(args, homeSheet, lits)
		case "INDEX":
			res, got = resolveIndex(args, homeSheet, lits)
		}
		if got {
			out.Resolved = append(out.Resolved, res)
		} else {
			out.Unresolved = true
		}
	}
	return out
}

// splitArgs returns the token spans for each top-level (depth-0) argument
// of the call whose '(' sits at toks[open], and the index of the matching
// ')'. ok is false if the parens never balance.
func splitArgs(toks []tokenizer.Token, open int) ([][]tokenizer.Token, int, bool) {
	depth := 0
	var args [][]tokenizer.Token
	var cur []tokenizer.Token
	for i := open; i < len(toks); i++ {
		t := toks[i]
		switch t.Kind {
		case tokenizer.LParen:
			depth++
			if depth == 1 {
				continue
			}
		case tokenizer.RParen:
			depth--
			if depth == 0 {
				args = append(args, cur)
				return args, i, true
			}
		case tokenizer.Comma:
			if depth == 1 {
				args = append(args, cur)
				cur = nil
				continue
			}
		}
		if depth >= 1 && !(t.Kind == tokenizer.LParen && depth == 1) {
			cur = append(cur, t)
		}
	}
	return nil, 0, false
}

func resolveIndirect(args [][]tokenizer.Token, homeSheet string) (Resolved, bool) {
	if len(args) != 1 || len(args[0]) != 1 || args[0][0].Kind != tokenizer.String {
		return Resolved{}, false
	}
	ref := qualify(args[0][0].Text, homeSheet)
	if a, err := address.ParseA1(ref); err == nil {
		return Resolved{Kind: ResolvedCell, Address: a}, true
	}
	if r, err := address.ParseRange(ref); err == nil {
		return Resolved{Kind: ResolvedRange, Range: r}, true
	}
	return Resolved{}, false
}

func resolveOffset(args [][]tokenizer.Token, homeSheet string, lits Literals) (Resolved, bool) {
	if len(args) < 3 || len(args) > 5 {
		return Resolved{}, false
	}
	baseCell, baseRange, isRange, ok := resolveBaseArg(args[0], homeSheet)
	if !ok {
		return Resolved{}, false
	}
	rows, ok := resolveIntArg(args[1], homeSheet, lits)
	if !ok {
		return Resolved{}, false
	}
	cols, ok := resolveIntArg(args[2], homeSheet, lits)
	if !ok {
		return Resolved{}, false
	}
	height, width := 1, 1
	if isRange {
		height = int(baseRange.BottomRight.Row-baseRange.TopLeft.Row) + 1
		width = int(baseRange.BottomRight.Col-baseRange.TopLeft.Col) + 1
	}
	if len(args) >= 4 {
		h, ok := resolveIntArg(args[3], homeSheet, lits)
		if !ok {
			return Resolved{}, false
		}
		height = h
	}
	if len(args) == 5 {
		w, ok := resolveIntArg(args[4], homeSheet, lits)
		if !ok {
			return Resolved{}, false
		}
		width = w
	}

	anchor := baseCell
	if isRange {
		anchor = baseRange.TopLeft
	}
	newRow := int64(anchor.Row) + int64(rows)
	newCol := int64(anchor.Col) + int64(cols)
	if newRow < 1 || newCol < 1 || newRow > int64(address.MaxRow) || newCol > int64(address.MaxCol) {
		return Resolved{}, false
	}
	top := address.CellAddress{Sheet: anchor.Sheet, Row: uint32(newRow), Col: uint32(newCol)}
	if height <= 1 && width <= 1 {
		return Resolved{Kind: ResolvedCell, Address: top}, true
	}
	bottomRow := int64(top.Row) + int64(height) - 1
	bottomCol := int64(top.Col) + int64(width) - 1
	if height < 1 || width < 1 || bottomRow > int64(address.MaxRow) || bottomCol > int64(address.MaxCol) {
		return Resolved{}, false
	}
	bottom := address.CellAddress{Sheet: anchor.Sheet, Row: uint32(bottomRow), Col: uint32(bottomCol)}
	return Resolved{Kind: ResolvedRange, Range: address.CellRange{TopLeft: top, BottomRight: bottom}}, true
}

func resolveIndex(args [][]tokenizer.Token, homeSheet string, lits Literals) (Resolved, bool) {
	if len(args) != 3 {
		return Resolved{}, false
	}
	_, baseRange, isRange, ok := resolveBaseArg(args[0], homeSheet)
	if !ok || !isRange {
		return Resolved{}, false
	}
	row, ok := resolveIntArg(args[1], homeSheet, lits)
	if !ok || row < 1 {
		return Resolved{}, false
	}
	col, ok := resolveIntArg(args[2], homeSheet, lits)
	if !ok || col < 1 {
		return Resolved{}, false
	}
	height := int(baseRange.BottomRight.Row-baseRange.TopLeft.Row) + 1
	width := int(baseRange.BottomRight.Col-baseRange.TopLeft.Col) + 1
	if row > height || col > width {
		return Resolved{}, false
	}
	addr := address.CellAddress{
		Sheet: baseRange.TopLeft.Sheet,
		Row:   baseRange.TopLeft.Row + uint32(row) - 1,
		Col:   baseRange.TopLeft.Col + uint32(col) - 1,
	}
	return Resolved{Kind: ResolvedCell, Address: addr}, true
}

func resolveBaseArg(arg []tokenizer.Token, homeSheet string) (cell address.CellAddress, rng address.CellRange, isRange bool, ok bool) {
	if len(arg) != 1 {
		return
	}
	switch arg[0].Kind {
	case tokenizer.CellRef:
		a, err := address.ParseA1(qualify(arg[0].Text, homeSheet))
		if err != nil {
			return
		}
		return a, address.CellRange{}, false, true
	case tokenizer.RangeRef:
		r, err := address.ParseRange(qualify(arg[0].Text, homeSheet))
		if err != nil {
			return
		}
		return address.CellAddress{}, r, true, true
	}
	return
}

// resolveIntArg reduces a single argument to an integer literal: either a
// bare (optionally negated) NUMBER token, or a CELL_REF whose value is
// already known to be a constant number.
func resolveIntArg(arg []tokenizer.Token, homeSheet string, lits Literals) (int, bool) {
	negate := false
	i := 0
	if i < len(arg) && arg[i].Kind == tokenizer.Op && (arg[i].Text == "-" || arg[i].Text == "+") {
		negate = arg[i].Text == "-"
		i++
	}
	if i >= len(arg) {
		return 0, false
	}
	if len(arg)-i == 1 && arg[i].Kind == tokenizer.Number {
		f, err := strconv.ParseFloat(arg[i].Text, 64)
		if err != nil || f != float64(int64(f)) {
			return 0, false
		}
		v := int(f)
		if negate {
			v = -v
		}
		return v, true
	}
	if len(arg)-i == 1 && arg[i].Kind == tokenizer.CellRef && lits != nil {
		a, err := address.ParseA1(qualify(arg[i].Text, homeSheet))
		if err != nil {
			return 0, false
		}
		f, ok := lits.NumberAt(a)
		if !ok || f != float64(int64(f)) {
			return 0, false
		}
		v := int(f)
		if negate {
			v = -v
		}
		return v, true
	}
	return 0, false
}

func qualify(text, sheet string) string {
	if sheet == "" || strings.Contains(text, "!") {
		return text
	}
	if strings.ContainsAny(sheet, " !'") {
		return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + text
	}
	return sheet + "!" + text
}
