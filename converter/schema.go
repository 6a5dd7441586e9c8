package converter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bobg/go-generics/v2/slices"
	"github.com/pingcap/parser"
	"github.com/pingcap/parser/ast"
	"github.com/pingcap/parser/mysql"
	_ "github.com/pingcap/tidb/types/parser_driver"
)

// SchemaExtractor returns the column names declared by a complete CREATE TABLE statement.
type SchemaExtractor interface {
	ExtractColumns(statement string) ([]string, error)
}

var (
	columnSectionRegexp = regexp.MustCompile(`\((.*)\)`)
	leadingWordRegexp   = regexp.MustCompile(`^\w+`)
)

// NaiveExtractor takes everything between the first "(" and the last ")" and splits it on
// every comma. Type arguments such as DECIMAL(10,2) are split as well and produce bogus
// columns; use ASTExtractor for such schemas.
type NaiveExtractor struct {
	constraintKeywords map[string]bool
}

func NewNaiveExtractor(constraintKeywords []string) *NaiveExtractor {
	keywords := make(map[string]bool, len(constraintKeywords))
	for _, keyword := range constraintKeywords {
		keywords[keyword] = true
	}
	return &NaiveExtractor{constraintKeywords: keywords}
}

func (e *NaiveExtractor) ExtractColumns(statement string) ([]string, error) {
	statement = strings.Join(strings.Fields(statement), " ")
	matches := columnSectionRegexp.FindStringSubmatch(statement)
	if matches == nil {
		return nil, fmt.Errorf("%w: no column list", ErrMalformedCreateTable)
	}
	fragments := strings.Split(matches[1], ",")
	for _, fragment := range fragments {
		if strings.TrimSpace(fragment) == "" {
			return nil, fmt.Errorf("%w: empty column definition", ErrMalformedCreateTable)
		}
	}
	columnFragments := slices.Filter(fragments, func(fragment string) bool {
		return !e.isConstraint(firstToken(fragment))
	})
	columns := make([]string, 0, len(columnFragments))
	for _, fragment := range columnFragments {
		columns = append(columns, strings.ReplaceAll(firstToken(fragment), "`", ""))
	}
	return columns, nil
}

// isConstraint reports whether a definition token starts a constraint. Backtick-quoted
// tokens are always column names.
func (e *NaiveExtractor) isConstraint(token string) bool {
	if strings.HasPrefix(token, "`") {
		return false
	}
	return e.constraintKeywords[leadingWordRegexp.FindString(token)]
}

func firstToken(fragment string) string {
	fields := strings.Fields(fragment)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ASTExtractor parses the statement with the MySQL grammar, so column definitions with
// parenthesized type arguments or defaults are handled correctly.
type ASTExtractor struct {
	parser *parser.Parser
}

func NewASTExtractor() *ASTExtractor {
	return &ASTExtractor{parser: parser.New()}
}

func (e *ASTExtractor) ExtractColumns(statement string) ([]string, error) {
	stmtNodes, _, err := e.parser.Parse(statement, mysql.UTF8Charset, mysql.UTF8DefaultCollation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCreateTable, err)
	}
	for _, stmtNode := range stmtNodes {
		createStmt, ok := stmtNode.(*ast.CreateTableStmt)
		if !ok {
			continue
		}
		if len(createStmt.Cols) == 0 {
			return nil, fmt.Errorf("%w: no column list", ErrMalformedCreateTable)
		}
		columns := make([]string, len(createStmt.Cols))
		for i, col := range createStmt.Cols {
			columns[i] = col.Name.Name.O
		}
		return columns, nil
	}
	return nil, fmt.Errorf("%w: not a CREATE TABLE statement", ErrMalformedCreateTable)
}
