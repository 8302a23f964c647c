package engerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReader_WrapsCauseAndKind(t *testing.T) {
	cause := errors.New("file not found")
	err := Reader(CodeWorkbookOpenFailed, cause)
	require.Equal(t, KindReader, err.Kind)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "failed to open workbook")
}

func TestParse_ScopesToCell(t *testing.T) {
	err := Parse(CodeLexRecovery, "Sheet1!C9", nil)
	require.Equal(t, KindParse, err.Kind)
	require.Contains(t, err.Error(), "Sheet1!C9")
}

func TestInvariant_FormatsMessage(t *testing.T) {
	err := Invariant(CodeUnknownEdgeEndpoint, "edge targets %s, not present in node set", "Sheet1!Z1")
	require.Equal(t, KindInvariant, err.Kind)
	require.Contains(t, err.Error(), "Sheet1!Z1")
}

func TestIsKind(t *testing.T) {
	var err error = Reader(CodeSheetEnumFailed, nil)
	require.True(t, IsKind(err, KindReader))
	require.False(t, IsKind(err, KindParse))
	require.False(t, IsKind(errors.New("plain"), KindReader))
}
