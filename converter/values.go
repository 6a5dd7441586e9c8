package converter

import (
	"strings"
)

type scanState int

const (
	stateOutside scanState = iota
	stateInTuple
	stateInString
)

// mysqlEscapes maps the character following a backslash inside a MySQL string literal to
// the character it stands for.
var mysqlEscapes = map[byte]byte{
	'0':  0,
	'n':  '\n',
	'r':  '\r',
	't':  '\t',
	'Z':  '\032',
	'\\': '\\',
	'\'': '\'',
	'"':  '"',
}

// parseTuples splits the VALUES section of an INSERT statement into rows. Commas and
// parentheses inside quoted strings are kept as part of the value. Without unescape a quote
// always ends the string, so doubled and backslash-escaped quotes split values. A quoted
// string between tuples is skipped, parentheses included.
func parseTuples(section string, unescape bool) []Row {
	var rows []Row
	var current Row
	var field strings.Builder
	state := stateOutside
	// state to return to when the current string closes
	stringParent := stateOutside

	for i := 0; i < len(section); i++ {
		char := section[i]
		switch state {
		case stateOutside:
			switch char {
			case '(':
				state = stateInTuple
				current = Row{}
				field.Reset()
			case '\'':
				stringParent = stateOutside
				state = stateInString
			}
		case stateInTuple:
			switch char {
			case '\'':
				stringParent = stateInTuple
				state = stateInString
			case ',':
				current = append(current, field.String())
				field.Reset()
			case ')':
				current = append(current, field.String())
				field.Reset()
				rows = append(rows, current)
				current = nil
				state = stateOutside
			default:
				field.WriteByte(char)
			}
		case stateInString:
			switch {
			case unescape && char == '\'' && i+1 < len(section) && section[i+1] == '\'':
				field.WriteByte('\'')
				i++
			case char == '\'':
				state = stringParent
			case unescape && char == '\\' && i+1 < len(section):
				next := section[i+1]
				if unescaped, ok := mysqlEscapes[next]; ok {
					field.WriteByte(unescaped)
				} else {
					field.WriteByte(next)
				}
				i++
			default:
				field.WriteByte(char)
			}
		}
	}
	return rows
}
