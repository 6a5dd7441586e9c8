package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

const (
	SchemaParserNaive = "naive"
	SchemaParserAST   = "ast"

	FieldCountKeep  = "keep"
	FieldCountPad   = "pad"
	FieldCountError = "error"

	DefaultOutputDir        = "csv_output"
	DefaultFileNameTemplate = "{{ .Table }}.csv"
	DefaultLocale           = "en"
)

// DefaultConstraintKeywords lists the tokens that introduce a table constraint rather than
// a column inside a CREATE TABLE column list.
var DefaultConstraintKeywords = []string{
	"PRIMARY",
	"KEY",
	"UNIQUE",
	"CONSTRAINT",
	"FOREIGN",
	"INDEX",
	"FULLTEXT",
	"SPATIAL",
	"CHECK",
}

type Config struct {
	TableConfigs    []TableConfig       `json:"tables" yaml:"tables"`
	GlobalVariables map[string]Template `json:"globalVariables,omitempty" yaml:"globalVariables,omitempty"`
	Settings        Settings            `json:"settings" yaml:"settings"`
}

type Settings struct {
	OutputDir          string   `json:"outputDir,omitempty" yaml:"outputDir,omitempty"`
	Locale             string   `json:"locale,omitempty" yaml:"locale,omitempty"`
	FileNameTemplate   string   `json:"fileNameTemplate,omitempty" yaml:"fileNameTemplate,omitempty"`
	SchemaParser       string   `json:"schemaParser,omitempty" yaml:"schemaParser,omitempty"`
	ConstraintKeywords []string `json:"constraintKeywords,omitempty" yaml:"constraintKeywords,omitempty"`
	UnescapeQuotes     bool     `json:"unescapeQuotes,omitempty" yaml:"unescapeQuotes,omitempty"`
	FieldCountPolicy   string   `json:"fieldCountPolicy,omitempty" yaml:"fieldCountPolicy,omitempty"`
	Stream             bool     `json:"stream,omitempty" yaml:"stream,omitempty"`
}

type Template string

type TableConfig struct {
	TableName string         `json:"name" yaml:"name"`
	Skip      bool           `json:"skip,omitempty" yaml:"skip,omitempty"`
	Columns   []ColumnConfig `json:"columns" yaml:"columns"`
}

type ColumnConfig struct {
	ColumnName      string                 `json:"name" yaml:"name"`
	Transformations []TransformationConfig `json:"transformations" yaml:"transformations"`
}

type TransformationConfig struct {
	Template Template `json:"template" yaml:"template"`
}

// Templates returns column transformation templates in application order.
func (c ColumnConfig) Templates() []Template {
	result := make([]Template, len(c.Transformations))
	for i := range c.Transformations {
		result[i] = c.Transformations[i].Template
	}
	return result
}

func (t TableConfig) GetAllColumnConfigsByName(name string) []ColumnConfig {
	var result []ColumnConfig
	for i := range t.Columns {
		if t.Columns[i].ColumnName == name {
			result = append(result, t.Columns[i])
		}
	}
	return result
}

func (c Config) GetAllTableConfigsByName(name string) []TableConfig {
	var result []TableConfig
	for i := range c.TableConfigs {
		currentConfig := c.TableConfigs[i]
		if currentConfig.TableName != name {
			continue
		}
		result = append(result, currentConfig)
	}
	return result
}

// Default returns a configuration with every setting filled in and no transformations.
func Default() Config {
	c := Config{}
	c.Settings.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset settings with their default values.
func (s *Settings) ApplyDefaults() {
	if s.OutputDir == "" {
		s.OutputDir = DefaultOutputDir
	}
	if s.Locale == "" {
		s.Locale = DefaultLocale
	}
	if s.FileNameTemplate == "" {
		s.FileNameTemplate = DefaultFileNameTemplate
	}
	if s.SchemaParser == "" {
		s.SchemaParser = SchemaParserNaive
	}
	if s.ConstraintKeywords == nil {
		s.ConstraintKeywords = slices.Clone(DefaultConstraintKeywords)
	}
	if s.FieldCountPolicy == "" {
		s.FieldCountPolicy = FieldCountKeep
	}
}

// Validate reports settings outside their allowed values.
func (c Config) Validate() error {
	if !slices.Contains([]string{SchemaParserNaive, SchemaParserAST}, c.Settings.SchemaParser) {
		return fmt.Errorf("unknown schema parser '%s'", c.Settings.SchemaParser)
	}
	if !slices.Contains([]string{FieldCountKeep, FieldCountPad, FieldCountError}, c.Settings.FieldCountPolicy) {
		return fmt.Errorf("unknown field count policy '%s'", c.Settings.FieldCountPolicy)
	}
	for _, tableConfig := range c.TableConfigs {
		if tableConfig.TableName == "" {
			return fmt.Errorf("table config without name")
		}
		for _, columnConfig := range tableConfig.Columns {
			if columnConfig.ColumnName == "" {
				return fmt.Errorf("column config without name in table '%s'", tableConfig.TableName)
			}
		}
	}
	return nil
}

// Load reads a JSON or YAML config file. An empty path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read config file: %w", err)
	}
	var decoded Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &decoded)
	default:
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		err = decoder.Decode(&decoded)
	}
	if err != nil {
		return Config{}, fmt.Errorf("cannot decode config file %s: %w", path, err)
	}
	decoded.Settings.ApplyDefaults()
	if err = decoded.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return decoded, nil
}
