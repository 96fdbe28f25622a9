package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimple(t *testing.T) {
	doc, err := Parse("a,b,c\n1,2,3\n4,5,6\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, doc.Headers)
	require.Len(t, doc.Rows, 2)
	assert.Equal(t, []string{"1", "2", "3"}, doc.Rows[0])
	assert.Equal(t, []string{"4", "5", "6"}, doc.Rows[1])
}

func TestParseQuotedFields(t *testing.T) {
	doc, err := Parse("name,notes\n\"Doe, Jane\",\"line one\nline two\"\n")
	require.NoError(t, err)
	require.Len(t, doc.Rows, 1)
	assert.Equal(t, "Doe, Jane", doc.Rows[0][0])
	assert.Equal(t, "line one\nline two", doc.Rows[0][1])
}

func TestParseEscapedQuote(t *testing.T) {
	doc, err := Parse("v\n\"a,b\"\"c\"\n")
	require.NoError(t, err)
	require.Len(t, doc.Rows, 1)
	assert.Equal(t, `a,b"c`, doc.Rows[0][0])
}

func TestParseDiscardsBlankLines(t *testing.T) {
	doc, err := Parse("a,b\n\n1,2\n   \n\r\n3,4\n")
	require.NoError(t, err)
	assert.Len(t, doc.Rows, 2)
}

func TestParseCRLFAndBOM(t *testing.T) {
	doc, err := Parse("\uFEFFa,b\r\n1,2\r\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, doc.Headers)
	require.Len(t, doc.Rows, 1)
	assert.Equal(t, []string{"1", "2"}, doc.Rows[0])
}

func TestParseRaggedRows(t *testing.T) {
	doc, err := Parse("a,b,c\n1,2\n")
	require.NoError(t, err)
	require.Len(t, doc.Rows, 1)
	assert.Len(t, doc.Rows[0], 2)

	_, ok := cellAt(doc.Rows[0], 2)
	assert.False(t, ok, "missing trailing cell must be absent, not empty")
}

func TestParseEmptyInput(t *testing.T) {
	for _, text := range []string{"", "\n\n", "  \n \r\n"} {
		_, err := Parse(text)
		assert.ErrorIs(t, err, ErrEmptyInput, "input %q", text)
	}
}

func TestParseTrailingFieldWithoutNewline(t *testing.T) {
	doc, err := Parse("a,b\n1,")
	require.NoError(t, err)
	require.Len(t, doc.Rows, 1)
	assert.Equal(t, []string{"1", ""}, doc.Rows[0])
}
