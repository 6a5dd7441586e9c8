package converter

import (
	"errors"
)

var (
	// ErrMalformedCreateTable is returned when a CREATE TABLE statement has no
	// parenthesized column list.
	ErrMalformedCreateTable = errors.New("malformed CREATE TABLE statement")
	// ErrFieldCount is returned under the "error" field count policy when a row does
	// not have one value per column.
	ErrFieldCount = errors.New("row field count does not match column count")
)

// TableSchema is the ordered column list of one table.
type TableSchema struct {
	Name    string
	Columns []string
}

// Row is one parsed INSERT tuple.
type Row []string

// Table is an emitted CSV read back into memory.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

type statementType string

const statementTypeInsert statementType = "insert"
const statementTypeCreateTable statementType = "createTable"

// conversionState tracks a CREATE TABLE statement spanning several lines.
type conversionState struct {
	tableName string
	statement []string
	inCreate  bool
}

func (s *conversionState) begin(tableName, line string) {
	s.tableName = tableName
	s.statement = []string{line}
	s.inCreate = true
}

func (s *conversionState) reset() {
	s.tableName = ""
	s.statement = nil
	s.inCreate = false
}
