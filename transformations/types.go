package transformations

import "text/template"

type MappedRow map[string]string

type RowMeta struct {
	Index int
}

// ColumnTemplateData is the data a column transformation template is executed with.
type ColumnTemplateData struct {
	Table           string
	FieldValue      string
	Row             MappedRow
	RowMeta         RowMeta
	GlobalVariables map[string]string
}

type PreparedTableConfig struct {
	Skip            bool
	ColumnTemplates map[string][]*template.Template
}
