package converter

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/google/renameio/v2"
)

// writtenTable is a table whose CSV file has been put in place.
type writtenTable struct {
	name string
	path string
}

// tableSink receives schemas and rows during a scan. Nothing is visible in the output
// directory before Close succeeds.
type tableSink interface {
	Begin(schema TableSchema) error
	Append(tableName string, row Row) error
	Close() ([]writtenTable, error)
	Abort()
}

// outputFiles maps table names to CSV paths inside the output directory.
type outputFiles struct {
	dir          string
	fileTemplate *template.Template
	paths        map[string]string
	owners       map[string]string
}

func newOutputFiles(dir string, fileTemplate *template.Template) *outputFiles {
	return &outputFiles{
		dir:          dir,
		fileTemplate: fileTemplate,
		paths:        make(map[string]string),
		owners:       make(map[string]string),
	}
}

func (o *outputFiles) pathFor(tableName string) (string, error) {
	if path, ok := o.paths[tableName]; ok {
		return path, nil
	}
	output := new(bytes.Buffer)
	err := o.fileTemplate.Execute(output, struct {
		Table string
	}{
		Table: tableName,
	})
	if err != nil {
		return "", fmt.Errorf("cannot render file name for table %s: %w", tableName, err)
	}
	fileName := output.String()
	if fileName == "" || fileName == "." || fileName == ".." || strings.ContainsAny(fileName, `/\`) {
		return "", fmt.Errorf("invalid file name '%s' for table %s", fileName, tableName)
	}
	path := filepath.Join(o.dir, fileName)
	if owner, taken := o.owners[path]; taken {
		return "", fmt.Errorf("tables %s and %s both map to %s", owner, tableName, path)
	}
	o.paths[tableName] = path
	o.owners[path] = tableName
	return path, nil
}

// csvTableWriter writes one CSV file through a pending file that replaces the target
// only on Commit.
type csvTableWriter struct {
	file     *renameio.PendingFile
	buffered *bufio.Writer
	csv      *csv.Writer
}

func newCSVTableWriter(path string) (*csvTableWriter, error) {
	f, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return nil, fmt.Errorf("cannot create file %s: %w", path, err)
	}
	buffered := bufio.NewWriter(f)
	return &csvTableWriter{
		file:     f,
		buffered: buffered,
		csv:      csv.NewWriter(buffered),
	}, nil
}

func (w *csvTableWriter) Write(record []string) error {
	// encoding/csv writes a lone empty field as a blank line, which readers skip.
	if len(record) == 1 && record[0] == "" {
		w.csv.Flush()
		if err := w.csv.Error(); err != nil {
			return err
		}
		_, err := w.buffered.WriteString("\"\"\n")
		return err
	}
	return w.csv.Write(record)
}

func (w *csvTableWriter) Commit() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("cannot write csv: %w", err)
	}
	if err := w.buffered.Flush(); err != nil {
		return fmt.Errorf("cannot flush csv: %w", err)
	}
	if err := w.file.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("cannot replace %s: %w", w.file.Name(), err)
	}
	return nil
}

// Discard removes the pending file. It is a no-op after a successful Commit.
func (w *csvTableWriter) Discard() {
	_ = w.file.Cleanup()
}

func writeTableFile(path string, schema TableSchema, rows []Row) (err error) {
	w, err := newCSVTableWriter(path)
	if err != nil {
		return err
	}
	defer w.Discard()
	if err = w.Write(schema.Columns); err != nil {
		return fmt.Errorf("cannot write header: %w", err)
	}
	for _, row := range rows {
		if err = w.Write(row); err != nil {
			return fmt.Errorf("cannot write row: %w", err)
		}
	}
	return w.Commit()
}

type bufferedTable struct {
	schema TableSchema
	rows   []Row
}

// bufferedSink keeps every row in memory and writes all files on Close.
type bufferedSink struct {
	files  *outputFiles
	order  []string
	tables map[string]*bufferedTable
}

func newBufferedSink(files *outputFiles) *bufferedSink {
	return &bufferedSink{
		files:  files,
		tables: make(map[string]*bufferedTable),
	}
}

func (s *bufferedSink) Begin(schema TableSchema) error {
	if _, err := s.files.pathFor(schema.Name); err != nil {
		return err
	}
	if table, ok := s.tables[schema.Name]; ok {
		table.schema = schema
		table.rows = nil
		return nil
	}
	s.order = append(s.order, schema.Name)
	s.tables[schema.Name] = &bufferedTable{schema: schema}
	return nil
}

func (s *bufferedSink) Append(tableName string, row Row) error {
	table, ok := s.tables[tableName]
	if !ok {
		return fmt.Errorf("table %s has no schema", tableName)
	}
	table.rows = append(table.rows, row)
	return nil
}

func (s *bufferedSink) Close() ([]writtenTable, error) {
	written := make([]writtenTable, 0, len(s.order))
	for _, tableName := range s.order {
		table := s.tables[tableName]
		path, err := s.files.pathFor(tableName)
		if err != nil {
			return written, err
		}
		if err = writeTableFile(path, table.schema, table.rows); err != nil {
			return written, fmt.Errorf("cannot write table %s: %w", tableName, err)
		}
		log.WithField("table", tableName).WithField("rows", len(table.rows)).Infof("wrote %s", path)
		written = append(written, writtenTable{name: tableName, path: path})
	}
	return written, nil
}

func (s *bufferedSink) Abort() {}

type streamingTable struct {
	writer *csvTableWriter
	rows   int
}

// streamingSink writes rows to pending files as they are parsed and renames every file
// into place on Close.
type streamingSink struct {
	files  *outputFiles
	order  []string
	tables map[string]*streamingTable
}

func newStreamingSink(files *outputFiles) *streamingSink {
	return &streamingSink{
		files:  files,
		tables: make(map[string]*streamingTable),
	}
}

func (s *streamingSink) Begin(schema TableSchema) error {
	path, err := s.files.pathFor(schema.Name)
	if err != nil {
		return err
	}
	if existing, ok := s.tables[schema.Name]; ok {
		existing.writer.Discard()
	} else {
		s.order = append(s.order, schema.Name)
	}
	w, err := newCSVTableWriter(path)
	if err != nil {
		delete(s.tables, schema.Name)
		return err
	}
	s.tables[schema.Name] = &streamingTable{writer: w}
	if err = w.Write(schema.Columns); err != nil {
		return fmt.Errorf("cannot write header of table %s: %w", schema.Name, err)
	}
	return nil
}

func (s *streamingSink) Append(tableName string, row Row) error {
	table, ok := s.tables[tableName]
	if !ok {
		return fmt.Errorf("table %s has no schema", tableName)
	}
	if err := table.writer.Write(row); err != nil {
		return fmt.Errorf("cannot write row of table %s: %w", tableName, err)
	}
	table.rows++
	return nil
}

func (s *streamingSink) Close() ([]writtenTable, error) {
	written := make([]writtenTable, 0, len(s.order))
	for i, tableName := range s.order {
		table := s.tables[tableName]
		if err := table.writer.Commit(); err != nil {
			for _, remaining := range s.order[i:] {
				s.tables[remaining].writer.Discard()
			}
			return written, fmt.Errorf("cannot write table %s: %w", tableName, err)
		}
		path, _ := s.files.pathFor(tableName)
		log.WithField("table", tableName).WithField("rows", table.rows).Infof("wrote %s", path)
		written = append(written, writtenTable{name: tableName, path: path})
	}
	return written, nil
}

func (s *streamingSink) Abort() {
	for _, table := range s.tables {
		table.writer.Discard()
	}
}
