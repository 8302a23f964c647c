package workbook

import (
	"strconv"
	"strings"

	"github.com/cellgraph/engine/pkg/engerr"
	"github.com/xuri/excelize/v2"
)

// ExcelizeReader is the reference Reader, backed by a single open
// excelize.File. It holds no cache and no TTL — a fresh reader is
// opened per run, matching spec.md §3's "no state survives runs".
type ExcelizeReader struct {
	f *excelize.File
}

// Open reads path (already validated by internal/security) into a new
// ExcelizeReader. Any failure is a ReaderError (spec.md §7): fatal,
// surfaced unchanged.
func Open(path string) (*ExcelizeReader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, engerr.Reader(engerr.CodeWorkbookOpenFailed, err)
	}
	return &ExcelizeReader{f: f}, nil
}

// Close releases the underlying excelize file's resources.
func (r *ExcelizeReader) Close() error {
	return r.f.Close()
}

// SheetNames implements Reader.
func (r *ExcelizeReader) SheetNames() ([]string, error) {
	return r.f.GetSheetList(), nil
}

// NamedRanges implements Reader, adapting excelize's flat DefinedName
// list (Name, RefersTo, Scope) into the engine's NamedRange shape.
func (r *ExcelizeReader) NamedRanges() ([]NamedRange, error) {
	defs := r.f.GetDefinedName()
	out := make([]NamedRange, 0, len(defs))
	for _, d := range defs {
		sheet, def := splitRefersTo(d.RefersTo)
		if sheet == "" {
			sheet = d.Scope
		}
		out = append(out, NamedRange{Name: d.Name, Definition: def, HomeSheet: sheet})
	}
	return out, nil
}

// splitRefersTo strips a leading '=' and any leading "'Sheet'!" or
// "Sheet!" qualifier from a DefinedName.RefersTo string, returning the
// sheet (if any) and the remaining definition.
func splitRefersTo(refersTo string) (sheet, def string) {
	def = strings.TrimPrefix(refersTo, "=")
	if !strings.Contains(def, "!") {
		return "", def
	}
	parts := strings.SplitN(def, "!", 2)
	quoted := len(parts[0]) >= 2 && strings.HasPrefix(parts[0], "'") && strings.HasSuffix(parts[0], "'")
	if !quoted && strings.ContainsAny(parts[0], "()+-*/^&=<>,:;$\" ") {
		// The first '!' belongs to a reference inside the formula, not to
		// a leading qualifier.
		return "", def
	}
	sheet = strings.Trim(parts[0], "'")
	return sheet, parts[1]
}

// Cells implements Reader by streaming each sheet's rows via excelize's
// row iterator, then querying the formula for any non-empty cell.
func (r *ExcelizeReader) Cells(fn func(Record) bool) error {
	for _, sheet := range r.f.GetSheetList() {
		rows, err := r.f.Rows(sheet)
		if err != nil {
			return engerr.Reader(engerr.CodeCellEnumFailed, err)
		}
		rowIdx := uint32(0)
		for rows.Next() {
			rowIdx++
			cols, err := rows.Columns()
			if err != nil {
				_ = rows.Close()
				return engerr.Reader(engerr.CodeCellEnumFailed, err)
			}
			for colIdx, raw := range cols {
				if raw == "" {
					continue
				}
				colNum := uint32(colIdx + 1)
				axis, err := excelize.CoordinatesToCellName(int(colNum), int(rowIdx))
				if err != nil {
					continue
				}
				formula, _ := r.f.GetCellFormula(sheet, axis)
				rec := Record{
					Sheet:   sheet,
					Row:     rowIdx,
					Col:     colNum,
					Value:   coerceValue(raw),
					Formula: formula,
				}
				if !fn(rec) {
					_ = rows.Close()
					return nil
				}
			}
		}
		if err := rows.Close(); err != nil {
			return engerr.Reader(engerr.CodeCellEnumFailed, err)
		}
	}
	return nil
}

// coerceValue turns excelize's always-string cell value into the
// typed Value the engine works with: float64 when numeric, bool for
// Excel's literal TRUE/FALSE, string otherwise.
func coerceValue(raw string) any {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	switch strings.ToUpper(raw) {
	case "TRUE":
		return true
	case "FALSE":
		return false
	}
	return raw
}
