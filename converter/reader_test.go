package converter

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRecords(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  [][]string
	}{
		{"Plain", "id,name\n1,Basil\n", [][]string{{"id", "name"}, {"1", "Basil"}}},
		{"No trailing newline", "id\n1", [][]string{{"id"}, {"1"}}},
		{"Quoted delimiter and quotes", "1,\"a, \"\"b\"\"\"\n", [][]string{{"1", `a, "b"`}}},
		{"Quoted CRLF is kept", "1,\"a\r\nb\"\n", [][]string{{"1", "a\r\nb"}}},
		{"Quoted LF", "1,\"a\nb\"\n", [][]string{{"1", "a\nb"}}},
		{"CRLF record terminator", "1,2\r\n3,4\r\n", [][]string{{"1", "2"}, {"3", "4"}}},
		{"Lone empty field", "id\n\"\"\n", [][]string{{"id"}, {""}}},
		{"Empty trailing field", "1,\n", [][]string{{"1", ""}}},
		{"Leading space", "1,\" sp\"\n", [][]string{{"1", " sp"}}},
		{"Empty input", "", nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			records, err := readRecords(bufio.NewReader(strings.NewReader(c.input)))
			require.NoError(t, err)
			assert.Equal(t, c.want, records)
		})
	}
}

func TestReadRecordsUnterminatedQuote(t *testing.T) {
	_, err := readRecords(bufio.NewReader(strings.NewReader("id\n1,\"open\nstill open\n")))
	assert.ErrorIs(t, err, errUnterminatedQuote)
	assert.Contains(t, err.Error(), "line 2")
}
