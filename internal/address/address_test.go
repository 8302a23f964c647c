package address

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColumnLettersRoundTrip(t *testing.T) {
	cases := map[uint32]string{
		1: "A", 2: "B", 26: "Z", 27: "AA", 28: "AB", 52: "AZ", 53: "BA", 702: "ZZ", 703: "AAA",
	}
	for col, want := range cases {
		got := ColumnToLetters(col)
		require.Equal(t, want, got)

		back, err := LettersToColumn(want)
		require.NoError(t, err)
		require.Equal(t, col, back)
	}
}

func TestParseA1_Basic(t *testing.T) {
	a, err := ParseA1("B12")
	require.NoError(t, err)
	require.Equal(t, CellAddress{Sheet: "", Row: 12, Col: 2}, a)
}

func TestParseA1_AbsoluteMarkersIgnored(t *testing.T) {
	a, err := ParseA1("$A$1")
	require.NoError(t, err)
	b, err := ParseA1("A1")
	require.NoError(t, err)
	require.Equal(t, b, a)
}

func TestParseA1_SheetQualified(t *testing.T) {
	a, err := ParseA1("Data!B2")
	require.NoError(t, err)
	require.Equal(t, "Data", a.Sheet)
	require.Equal(t, uint32(2), a.Row)
	require.Equal(t, uint32(2), a.Col)

	q, err := ParseA1("'My Sheet'!A1")
	require.NoError(t, err)
	require.Equal(t, "My Sheet", q.Sheet)
}

func TestParseA1_Errors(t *testing.T) {
	_, err := ParseA1("")
	require.Error(t, err)

	_, err = ParseA1("A0")
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, ErrZeroIndex, pe.Kind)

	_, err = ParseA1("!!!")
	require.Error(t, err)

	_, err = ParseA1("A1048577")
	require.Error(t, err)

	_, err = ParseA1("XFE1")
	require.Error(t, err)
}

func TestToA1_RoundTrip(t *testing.T) {
	inputs := []string{"A1", "Z26", "AA27", "Sheet1!C3"}
	for _, in := range inputs {
		a, err := ParseA1(in)
		require.NoError(t, err)
		require.Equal(t, in, ToA1(a))
	}
}

func TestToA1_QuotesSheetWithSpecialChars(t *testing.T) {
	a := CellAddress{Sheet: "My Sheet!", Row: 1, Col: 1}
	require.Equal(t, "'My Sheet!'!A1", ToA1(a))

	b := CellAddress{Sheet: "Plain_Sheet 2", Row: 1, Col: 1}
	require.Equal(t, "Plain_Sheet 2!A1", ToA1(b))
}

func TestToA1_RoundTrip_BareSheetWithSpace(t *testing.T) {
	a := CellAddress{Sheet: "Plain_Sheet 2", Row: 1, Col: 1}
	s := ToA1(a)
	require.Equal(t, "Plain_Sheet 2!A1", s)

	back, err := ParseA1(s)
	require.NoError(t, err)
	require.Equal(t, a, back)
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("Data!B2:B4")
	require.NoError(t, err)
	require.Equal(t, "Data", r.TopLeft.Sheet)
	require.Equal(t, uint32(2), r.TopLeft.Row)
	require.Equal(t, uint32(4), r.BottomRight.Row)
	require.Equal(t, 3, r.Size())
}

func TestParseRange_NormalizesCorners(t *testing.T) {
	r, err := ParseRange("B4:A1")
	require.NoError(t, err)
	require.Equal(t, uint32(1), r.TopLeft.Row)
	require.Equal(t, uint32(1), r.TopLeft.Col)
	require.Equal(t, uint32(4), r.BottomRight.Row)
	require.Equal(t, uint32(2), r.BottomRight.Col)
}

func TestRangeExpand_RowMajorOrder(t *testing.T) {
	r, err := ParseRange("A1:B2")
	require.NoError(t, err)
	got := r.Expand()
	want := []CellAddress{
		{Row: 1, Col: 1}, {Row: 1, Col: 2},
		{Row: 2, Col: 1}, {Row: 2, Col: 2},
	}
	require.Equal(t, want, got)
}

func TestRangeExpand_SingleCell(t *testing.T) {
	r, err := ParseRange("A1:A1")
	require.NoError(t, err)
	require.Equal(t, 1, r.Size())
	require.Equal(t, []CellAddress{{Row: 1, Col: 1}}, r.Expand())
}

func TestRange_EachStopsEarly(t *testing.T) {
	r, err := ParseRange("A1:A10")
	require.NoError(t, err)
	count := 0
	r.Each(func(CellAddress) bool {
		count++
		return count < 3
	})
	require.Equal(t, 3, count)
}
