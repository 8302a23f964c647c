package workbook

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestReader(t *testing.T, build func(f *excelize.File)) *ExcelizeReader {
	t.Helper()
	f := excelize.NewFile()
	build(f)
	return &ExcelizeReader{f: f}
}

func TestExcelizeReader_SheetNames(t *testing.T) {
	r := newTestReader(t, func(f *excelize.File) {
		_, _ = f.NewSheet("Budget")
	})
	names, err := r.SheetNames()
	require.NoError(t, err)
	require.Contains(t, names, "Sheet1")
	require.Contains(t, names, "Budget")
}

func TestExcelizeReader_Cells_ValuesAndFormulas(t *testing.T) {
	r := newTestReader(t, func(f *excelize.File) {
		require.NoError(t, f.SetCellValue("Sheet1", "A1", 12.5))
		require.NoError(t, f.SetCellFormula("Sheet1", "B1", "=A1*2"))
		require.NoError(t, f.SetCellValue("Sheet1", "C1", "TRUE"))
	})

	var recs []Record
	err := r.Cells(func(rec Record) bool {
		recs = append(recs, rec)
		return true
	})
	require.NoError(t, err)
	require.Len(t, recs, 3)

	byCol := map[uint32]Record{}
	for _, rec := range recs {
		require.Equal(t, "Sheet1", rec.Sheet)
		require.Equal(t, uint32(1), rec.Row)
		byCol[rec.Col] = rec
	}

	require.Equal(t, 12.5, byCol[1].Value)
	require.Empty(t, byCol[1].Formula)

	require.Equal(t, "=A1*2", byCol[2].Formula)

	require.Equal(t, true, byCol[3].Value)
}

func TestExcelizeReader_Cells_StopsEarly(t *testing.T) {
	r := newTestReader(t, func(f *excelize.File) {
		require.NoError(t, f.SetCellValue("Sheet1", "A1", 1))
		require.NoError(t, f.SetCellValue("Sheet1", "A2", 2))
		require.NoError(t, f.SetCellValue("Sheet1", "A3", 3))
	})

	count := 0
	err := r.Cells(func(rec Record) bool {
		count++
		return false
	})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestExcelizeReader_NamedRanges(t *testing.T) {
	r := newTestReader(t, func(f *excelize.File) {
		require.NoError(t, f.SetDefinedName(&excelize.DefinedName{
			Name:     "TaxRate",
			RefersTo: "Sheet1!$B$1",
			Scope:    "Workbook",
		}))
	})

	names, err := r.NamedRanges()
	require.NoError(t, err)
	require.Len(t, names, 1)
	require.Equal(t, "TaxRate", names[0].Name)
	require.Equal(t, "Sheet1", names[0].HomeSheet)
	require.Equal(t, "$B$1", names[0].Definition)
}

func TestSplitRefersTo(t *testing.T) {
	sheet, def := splitRefersTo("='My Sheet'!$A$1:$B$2")
	require.Equal(t, "My Sheet", sheet)
	require.Equal(t, "$A$1:$B$2", def)

	sheet, def = splitRefersTo("=$A$1+1")
	require.Equal(t, "", sheet)
	require.Equal(t, "$A$1+1", def)
}

func TestCoerceValue(t *testing.T) {
	require.Equal(t, 42.0, coerceValue("42"))
	require.Equal(t, true, coerceValue("TRUE"))
	require.Equal(t, false, coerceValue("false"))
	require.Equal(t, "hello", coerceValue("hello"))
}
