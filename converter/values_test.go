package converter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTuples(t *testing.T) {
	cases := []struct {
		name     string
		section  string
		unescape bool
		want     []Row
	}{
		{"Two tuples", `(1,'Alice'),(2,'Bob')`, false, []Row{{"1", "Alice"}, {"2", "Bob"}}},
		{"Comma inside string", `(1,'a,b')`, false, []Row{{"1", "a,b"}}},
		{"Parentheses inside string", `(1,'(x)')`, false, []Row{{"1", "(x)"}}},
		{"Spaces are kept", `(1, 'Bob' )`, false, []Row{{"1", " Bob "}}},
		{"Unquoted NULL", `(NULL,3.5)`, false, []Row{{"NULL", "3.5"}}},
		{"Empty tuple", `()`, false, []Row{{""}}},
		{"Empty string", `('')`, false, []Row{{""}}},
		{"Unterminated tuple is dropped", `(1,2),(3`, false, []Row{{"1", "2"}}},
		{"Nothing", ``, false, nil},
		{"Nested parenthesis closes tuple", `(1,NOW())`, false, []Row{{"1", "NOW("}}},
		{"Doubled quote without unescape", `('it''s')`, false, []Row{{"its"}}},
		{"Backslash quote without unescape", `('a\',b'),(2)`, false, nil},
		{"Backslash without unescape", `('a\\b')`, false, []Row{{`a\\b`}}},
		{"Doubled quote with unescape", `('it''s')`, true, []Row{{"it's"}}},
		{"Backslash escapes with unescape", `('a\'b\\c\nd','x\qy')`, true, []Row{{"a'b\\c\nd", "xqy"}}},
		{"Quoted text between tuples hides parentheses", `(1),'(2)',(3)`, false, []Row{{"1"}, {"3"}}},
		{"Unclosed quote between tuples swallows the rest", `(1),'x,(2)`, false, []Row{{"1"}}},
		{"Unicode",`(1,'Pelargonium ×hortorum')`, false, []Row{{"1", "Pelargonium ×hortorum"}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, parseTuples(c.section, c.unescape))
		})
	}
}
