package converter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/duffpl/go-dump2csv/config"
	"github.com/duffpl/go-dump2csv/faker"
	"github.com/duffpl/go-dump2csv/templates"
	"github.com/duffpl/go-dump2csv/transformations"
	"github.com/sirupsen/logrus"
)

var log logrus.FieldLogger = logrus.New()

func SetLogger(logger logrus.FieldLogger) {
	log = logger
}

// Converter turns a SQL dump into one CSV file per table.
type Converter struct {
	dumpPath         string
	outputDir        string
	settings         config.Settings
	extractor        SchemaExtractor
	transformations  *transformations.Set
	fileNameTemplate *template.Template
	written          []writtenTable
}

// New prepares a converter for dumpPath. An empty outputDir falls back to the configured one.
func New(dumpPath string, outputDir string, configData config.Config) (*Converter, error) {
	configData.Settings.ApplyDefaults()
	if err := configData.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	settings := configData.Settings
	if outputDir == "" {
		outputDir = settings.OutputDir
	}
	f, err := faker.New(settings.Locale)
	if err != nil {
		return nil, fmt.Errorf("cannot create faker: %w", err)
	}
	compiler := templates.NewCompiler(f.FuncMap())
	tableTransformations, err := transformations.Prepare(configData, compiler)
	if err != nil {
		return nil, fmt.Errorf("unable to prepare transformations: %w", err)
	}
	fileNameTemplate, err := compiler.GetCompiledTemplate(settings.FileNameTemplate, "FileName")
	if err != nil {
		return nil, fmt.Errorf("cannot compile file name template: %w", err)
	}
	var extractor SchemaExtractor
	switch settings.SchemaParser {
	case config.SchemaParserAST:
		extractor = NewASTExtractor()
	default:
		extractor = NewNaiveExtractor(settings.ConstraintKeywords)
	}
	return &Converter{
		dumpPath:         dumpPath,
		outputDir:        outputDir,
		settings:         settings,
		extractor:        extractor,
		transformations:  tableTransformations,
		fileNameTemplate: fileNameTemplate,
	}, nil
}

// Convert reads the dump file and writes the CSV files.
func (c *Converter) Convert(ctx context.Context) error {
	f, err := os.Open(c.dumpPath)
	if err != nil {
		return fmt.Errorf("cannot open dump file: %w", err)
	}
	defer f.Close()
	return c.Process(ctx, f)
}

// Process converts a dump read from input. On error no CSV file of this run is left in
// place, except for files already renamed when writing a later file fails.
func (c *Converter) Process(ctx context.Context, input io.Reader) error {
	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return fmt.Errorf("cannot create output directory: %w", err)
	}
	files := newOutputFiles(c.outputDir, c.fileNameTemplate)
	var sink tableSink
	if c.settings.Stream {
		sink = newStreamingSink(files)
	} else {
		sink = newBufferedSink(files)
	}
	s := &scan{
		converter: c,
		sink:      sink,
		schemas:   make(map[string]TableSchema),
		rowCounts: make(map[string]int),
	}
	if err := s.run(ctx, input); err != nil {
		sink.Abort()
		return err
	}
	written, err := sink.Close()
	c.written = written
	if err != nil {
		return fmt.Errorf("cannot write output: %w", err)
	}
	return nil
}

// TableNames returns the tables written by the last conversion, in dump order.
func (c *Converter) TableNames() []string {
	names := make([]string, len(c.written))
	for i, table := range c.written {
		names[i] = table.name
	}
	return names
}

// GetTables reads the CSV files written by the last conversion back into memory.
func (c *Converter) GetTables() (map[string]*Table, error) {
	result := make(map[string]*Table, len(c.written))
	for _, written := range c.written {
		table, err := readTable(written.name, written.path)
		if err != nil {
			return nil, fmt.Errorf("cannot read table %s: %w", written.name, err)
		}
		result[written.name] = table
	}
	return result, nil
}

func readTable(name, path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open file: %w", err)
	}
	defer f.Close()
	records, err := readRecords(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("cannot parse csv: %w", err)
	}
	table := &Table{Name: name, Rows: [][]string{}}
	if len(records) > 0 {
		table.Columns = records[0]
		table.Rows = records[1:]
	}
	return table, nil
}

// scan holds the state of one pass over a dump.
type scan struct {
	converter *Converter
	sink      tableSink
	state     conversionState
	schemas   map[string]TableSchema
	rowCounts map[string]int
}

func (s *scan) run(ctx context.Context, input io.Reader) error {
	bufferedInput := bufio.NewReader(input)
	lineNumber := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line, err := bufferedInput.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("cannot read dump: %w", err)
		}
		if line != "" {
			lineNumber++
			if lineErr := s.processLine(line); lineErr != nil {
				return fmt.Errorf("line %d: %w", lineNumber, lineErr)
			}
		}
		if err == io.EOF {
			break
		}
	}
	if s.state.inCreate {
		log.WithField("table", s.state.tableName).Warn("dump ends inside a CREATE TABLE statement")
	}
	return nil
}

func (s *scan) processLine(line string) error {
	line = strings.TrimSpace(line)
	if len(line) == 0 || isComment(line) {
		return nil
	}
	statement, recognized := classify(line)
	if recognized && statement == statementTypeCreateTable {
		s.state.begin(extractTableName(statementTypeCreateTable, line), line)
		if strings.HasSuffix(line, ";") {
			return s.finishCreate()
		}
		return nil
	}
	if s.state.inCreate {
		s.state.statement = append(s.state.statement, line)
		if strings.HasSuffix(line, ";") {
			return s.finishCreate()
		}
		return nil
	}
	if recognized && statement == statementTypeInsert {
		return s.processInsert(line)
	}
	return nil
}

func (s *scan) finishCreate() error {
	tableName := s.state.tableName
	statement := strings.Join(s.state.statement, " ")
	s.state.reset()
	if tableName == "" {
		log.Warn("skipping CREATE TABLE statement without table name")
		return nil
	}
	columns, err := s.converter.extractor.ExtractColumns(statement)
	if err != nil {
		return fmt.Errorf("cannot extract columns of table %s: %w", tableName, err)
	}
	if s.converter.transformations.Skip(tableName) {
		log.WithField("table", tableName).Debug("skipping table")
		return nil
	}
	if _, exists := s.schemas[tableName]; exists {
		log.WithField("table", tableName).Warn("table redefined, discarding rows read so far")
	}
	schema := TableSchema{Name: tableName, Columns: columns}
	s.schemas[tableName] = schema
	s.rowCounts[tableName] = 0
	log.WithField("table", tableName).WithField("columns", columns).Debug("recorded schema")
	return s.sink.Begin(schema)
}

func (s *scan) processInsert(line string) error {
	tableName := extractTableName(statementTypeInsert, line)
	schema, ok := s.schemas[tableName]
	if !ok {
		log.WithField("table", tableName).Debug("dropping rows of table without schema")
		return nil
	}
	section, ok := valuesSection(line)
	if !ok {
		return nil
	}
	for _, row := range parseTuples(section, s.converter.settings.UnescapeQuotes) {
		row, err := s.fitRow(schema, row)
		if err != nil {
			return err
		}
		s.rowCounts[tableName]++
		transformed, err := s.converter.transformations.Apply(tableName, schema.Columns, s.rowCounts[tableName], row)
		if err != nil {
			return err
		}
		if err = s.sink.Append(tableName, transformed); err != nil {
			return err
		}
	}
	return nil
}

// fitRow applies the field count policy to a row whose length differs from the schema.
func (s *scan) fitRow(schema TableSchema, row Row) (Row, error) {
	expected := len(schema.Columns)
	if len(row) == expected {
		return row, nil
	}
	switch s.converter.settings.FieldCountPolicy {
	case config.FieldCountPad:
		if len(row) > expected {
			return row[:expected], nil
		}
		return append(row, make(Row, expected-len(row))...), nil
	case config.FieldCountError:
		return nil, fmt.Errorf("%w: table %s has %d columns, row has %d values", ErrFieldCount, schema.Name, expected, len(row))
	default:
		log.WithField("table", schema.Name).Debugf("row has %d values for %d columns", len(row), expected)
		return row, nil
	}
}
