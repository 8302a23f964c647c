// Package reference walks a tokenized formula and collects the static
// references it makes: single cells, ranges, and named ranges, each
// tagged with the nearest enclosing function call (used downstream by
// the dynamic resolver) per spec.md §4.3.
package reference

import (
	"strings"

	"github.com/cellgraph/engine/internal/address"
	"github.com/cellgraph/engine/internal/tokenizer"
)

// Kind classifies a reference prior to dynamic resolution. The DAG
// builder later assigns the final spec.md §3 DependencyEdge kind.
type Kind string

const (
	Cell  Kind = "cell"
	Range Kind = "range"
	Named Kind = "named"
)

// Reference is one static reference extracted from a formula's token
// stream, still home-sheet-relative where no explicit sheet was given.
type Reference struct {
	Kind          Kind
	Address       address.CellAddress // valid when Kind == Cell
	Range         address.CellRange   // valid when Kind == Range
	Name          string              // valid when Kind == Named
	EnclosingFunc string              // nearest enclosing FUNC name, "" if none
	ArgIndex      int                 // 0-based position among EnclosingFunc's top-level arguments
}

// Result is the output of Extract: the references found plus the
// complexity operator count, computed once over the same token stream.
type Result struct {
	References []Reference
	Complexity int
}

// funcFrame tracks one open function call while walking tokens.
type funcFrame struct {
	name     string
	argIndex int
}

// Extract walks tokens (as produced by tokenizer.Lex, whitespace
// included or not) and returns every CELL_REF, RANGE_REF, and NAME
// reference, default-sheet-qualified to homeSheet when no SHEET_REF
// token precedes them.
func Extract(tokens []tokenizer.Token, homeSheet string) Result {
	toks := tokenizer.NonWS(tokens)

	var refs []Reference
	var stack []funcFrame
	pendingSheet := ""
	havePendingSheet := false

	enclosing := func() (string, int) {
		for j := len(stack) - 1; j >= 0; j-- {
			if stack[j].name != "(" {
				return stack[j].name, stack[j].argIndex
			}
		}
		return "", 0
	}

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch t.Kind {
		case tokenizer.SheetRef:
			pendingSheet = t.Text
			havePendingSheet = true
			continue

		case tokenizer.Func:
			stack = append(stack, funcFrame{name: t.Text})
			continue

		case tokenizer.LParen:
			// A bare "(" (grouping, not a call) opens a placeholder frame so
			// its ")" does not close the enclosing function's frame.
			if i == 0 || toks[i-1].Kind != tokenizer.Func {
				stack = append(stack, funcFrame{name: "("})
			}
			continue

		case tokenizer.RParen:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}

		case tokenizer.Comma, tokenizer.Semicolon:
			if len(stack) > 0 {
				stack[len(stack)-1].argIndex++
			}

		case tokenizer.RangeRef:
			sheet := homeSheet
			if havePendingSheet {
				sheet = pendingSheet
			}
			r, err := rangeWithSheet(t.Text, sheet)
			if err == nil {
				fn, idx := enclosing()
				refs = append(refs, Reference{Kind: Range, Range: r, EnclosingFunc: fn, ArgIndex: idx})
			}

		case tokenizer.CellRef:
			sheet := homeSheet
			if havePendingSheet {
				sheet = pendingSheet
			}
			a, err := cellWithSheet(t.Text, sheet)
			if err == nil {
				fn, idx := enclosing()
				refs = append(refs, Reference{Kind: Cell, Address: a, EnclosingFunc: fn, ArgIndex: idx})
			}

		case tokenizer.Name:
			fn, idx := enclosing()
			refs = append(refs, Reference{Kind: Named, Name: t.Text, EnclosingFunc: fn, ArgIndex: idx})
		}

		if t.Kind != tokenizer.SheetRef {
			havePendingSheet = false
		}
	}

	return Result{References: refs, Complexity: tokenizer.OperatorCount(toks)}
}

func cellWithSheet(text, sheet string) (address.CellAddress, error) {
	return address.ParseA1(qualify(text, sheet))
}

func rangeWithSheet(text, sheet string) (address.CellRange, error) {
	return address.ParseRange(qualify(text, sheet))
}

func qualify(text, sheet string) string {
	if sheet == "" {
		return text
	}
	if strings.Contains(text, "!") {
		return text
	}
	return quoteSheet(sheet) + "!" + text
}

func quoteSheet(sheet string) string {
	if strings.ContainsAny(sheet, " !'") || sheet == "" {
		return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	}
	return sheet
}
