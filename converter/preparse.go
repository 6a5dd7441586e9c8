package converter

import (
	"regexp"
	"strings"
)

var tableNameRegexps = map[statementType]*regexp.Regexp{
	statementTypeInsert:      regexp.MustCompile(`INSERT INTO\s+\x60?(\w+)\x60?`),
	statementTypeCreateTable: regexp.MustCompile(`CREATE TABLE(?:\s+IF NOT EXISTS)?\s+\x60?(\w+)\x60?`),
}

var valuesRegexp = regexp.MustCompile(`VALUES\s*(.*);`)

func isComment(line string) bool {
	return strings.HasPrefix(line, "--") || strings.HasPrefix(line, "/*")
}

func classify(line string) (statementType, bool) {
	switch {
	case strings.Contains(line, "CREATE TABLE"):
		return statementTypeCreateTable, true
	case strings.Contains(line, "INSERT INTO"):
		return statementTypeInsert, true
	}
	return "", false
}

// extractTableName returns the identifier following CREATE TABLE or INSERT INTO, or an
// empty string when there is none.
func extractTableName(t statementType, line string) string {
	matches := tableNameRegexps[t].FindStringSubmatch(line)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// valuesSection returns the text between VALUES and the last semicolon of an INSERT line.
func valuesSection(line string) (string, bool) {
	matches := valuesRegexp.FindStringSubmatch(line)
	if matches == nil {
		return "", false
	}
	return matches[1], true
}
