package transformations

import (
	"bytes"
	"fmt"
	"strconv"
	"text/template"

	"github.com/duffpl/go-dump2csv/config"
	"github.com/duffpl/go-dump2csv/templates"
	"golang.org/x/exp/slices"
)

// Set holds the prepared transformations of every configured table.
type Set struct {
	tables          map[string]*PreparedTableConfig
	globalVariables map[string]string
}

// Prepare compiles the column templates of every configured table. Configs that repeat a
// table or a column name are merged in file order.
func Prepare(configData config.Config, compiler *templates.Compiler) (*Set, error) {
	globalVariables, err := compiler.RenderGlobalVariables(configData.GlobalVariables)
	if err != nil {
		return nil, fmt.Errorf("cannot render global variables: %w", err)
	}
	s := &Set{
		tables:          make(map[string]*PreparedTableConfig),
		globalVariables: globalVariables,
	}
	for _, tableName := range tableNames(configData.TableConfigs) {
		prepared, err := prepareTable(tableName, configData.GetAllTableConfigsByName(tableName), compiler)
		if err != nil {
			return nil, fmt.Errorf("cannot prepare table config for '%s': %w", tableName, err)
		}
		s.tables[tableName] = prepared
	}
	return s, nil
}

func prepareTable(tableName string, tableConfigs []config.TableConfig, compiler *templates.Compiler) (*PreparedTableConfig, error) {
	prepared := &PreparedTableConfig{ColumnTemplates: make(map[string][]*template.Template)}
	for _, tableConfig := range tableConfigs {
		prepared.Skip = prepared.Skip || tableConfig.Skip
		for _, colName := range columnNames(tableConfig.Columns) {
			for _, columnConfig := range tableConfig.GetAllColumnConfigsByName(colName) {
				for _, tmpl := range columnConfig.Templates() {
					templateName := "Column." + tableName + "." + colName + "." + strconv.Itoa(len(prepared.ColumnTemplates[colName]))
					compiled, err := compiler.GetCompiledTemplate(string(tmpl), templateName)
					if err != nil {
						return nil, err
					}
					prepared.ColumnTemplates[colName] = append(prepared.ColumnTemplates[colName], compiled)
				}
			}
		}
	}
	return prepared, nil
}

func tableNames(tableConfigs []config.TableConfig) []string {
	var names []string
	for _, tableConfig := range tableConfigs {
		if !slices.Contains(names, tableConfig.TableName) {
			names = append(names, tableConfig.TableName)
		}
	}
	return names
}

func columnNames(columnConfigs []config.ColumnConfig) []string {
	var names []string
	for _, columnConfig := range columnConfigs {
		if !slices.Contains(names, columnConfig.ColumnName) {
			names = append(names, columnConfig.ColumnName)
		}
	}
	return names
}

// Skip reports whether the table is excluded from the output.
func (s *Set) Skip(tableName string) bool {
	if s == nil {
		return false
	}
	tableConfig, ok := s.tables[tableName]
	return ok && tableConfig.Skip
}

// Apply runs the column templates of a table over one row. rowIndex is the 1-based position
// of the row within its table. The input row is left untouched.
func (s *Set) Apply(tableName string, columns []string, rowIndex int, row []string) ([]string, error) {
	if s == nil {
		return row, nil
	}
	tableConfig, ok := s.tables[tableName]
	if !ok || len(tableConfig.ColumnTemplates) == 0 {
		return row, nil
	}
	mappedRow := make(MappedRow, len(columns))
	for i := range row {
		if i < len(columns) {
			mappedRow[columns[i]] = row[i]
		}
	}
	result := make([]string, len(row))
	copy(result, row)
	for columnIdx := range result {
		if columnIdx >= len(columns) {
			break
		}
		columnTemplates, ok := tableConfig.ColumnTemplates[columns[columnIdx]]
		if !ok {
			continue
		}
		for _, tmpl := range columnTemplates {
			columnData := &ColumnTemplateData{
				Table:           tableName,
				FieldValue:      result[columnIdx],
				Row:             mappedRow,
				RowMeta:         RowMeta{Index: rowIndex},
				GlobalVariables: s.globalVariables,
			}
			transformedValue := new(bytes.Buffer)
			err := tmpl.Execute(transformedValue, columnData)
			if err != nil {
				return nil, fmt.Errorf("cannot apply transform to %s.%s: %w", tableName, columns[columnIdx], err)
			}
			result[columnIdx] = transformedValue.String()
		}
	}
	return result, nil
}
