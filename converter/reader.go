package converter

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

var errUnterminatedQuote = errors.New("unterminated quoted field")

// readRecords decodes CSV as written by csvTableWriter. Unlike encoding/csv it keeps a
// "\r\n" inside a quoted field as is, so values read back are byte-identical to the
// values written.
func readRecords(r *bufio.Reader) ([][]string, error) {
	var records [][]string
	var record []string
	var field strings.Builder
	inQuotes := false
	pending := false
	line, recordLine := 1, 1

	for {
		b, err := r.ReadByte()
		if err == io.EOF {
			if inQuotes {
				return nil, &csvSyntaxError{line: recordLine, err: errUnterminatedQuote}
			}
			if pending {
				records = append(records, append(record, field.String()))
			}
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		pending = true
		if inQuotes {
			switch {
			case b == '"' && peekByte(r) == '"':
				_, _ = r.ReadByte()
				field.WriteByte('"')
			case b == '"':
				inQuotes = false
			default:
				if b == '\n' {
					line++
				}
				field.WriteByte(b)
			}
			continue
		}
		switch {
		case b == '"' && field.Len() == 0:
			inQuotes = true
		case b == ',':
			record = append(record, field.String())
			field.Reset()
		case b == '\r' && peekByte(r) == '\n':
		case b == '\n':
			records = append(records, append(record, field.String()))
			record = nil
			field.Reset()
			pending = false
			line++
			recordLine = line
		default:
			field.WriteByte(b)
		}
	}
}

func peekByte(r *bufio.Reader) byte {
	next, err := r.Peek(1)
	if err != nil {
		return 0
	}
	return next[0]
}

type csvSyntaxError struct {
	line int
	err  error
}

func (e *csvSyntaxError) Error() string {
	return "record on line " + strconv.Itoa(e.line) + ": " + e.err.Error()
}

func (e *csvSyntaxError) Unwrap() error {
	return e.err
}
