/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	"github.com/duffpl/go-dump2csv/config"
	"github.com/duffpl/go-dump2csv/converter"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	FlagNameInput          = "input"
	FlagNameOutputDir      = "output-dir"
	FlagNameConfig         = "config"
	FlagNameStream         = "stream"
	FlagNameSchemaParser   = "schema-parser"
	FlagNameUnescapeQuotes = "unescape-quotes"
	FlagNameFieldCount     = "field-count"
	FlagNameSummary        = "summary"
	FlagNameLogLevel       = "log-level"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "go-dump2csv",
	Short: "Converts a MySQL dump into one CSV file per table",
	Long: `go-dump2csv reads the CREATE TABLE and INSERT INTO statements of a SQL dump
and writes every table it finds to <output-dir>/<table>.csv, header row first.

Rows of tables without a CREATE TABLE statement are dropped. Column values can be
rewritten with templates configured per table and column in a JSON or YAML file.`,
	Example: `go-dump2csv -i database_dump.sql
go-dump2csv -i database_dump.sql -o export --schema-parser ast --summary
go-dump2csv -i database_dump.sql -c anonymize.yaml --stream`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogger(cmd); err != nil {
			return err
		}
		configData, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		c, err := converter.New(cmd.Flag(FlagNameInput).Value.String(), configData.Settings.OutputDir, configData)
		if err != nil {
			return fmt.Errorf("cannot create converter: %w", err)
		}
		if err = c.Convert(ctx); err != nil {
			return fmt.Errorf("conversion failed: %w", err)
		}
		summary, _ := cmd.Flags().GetBool(FlagNameSummary)
		if !summary {
			return nil
		}
		return printSummary(cmd.OutOrStdout(), c)
	},
}

func setupLogger(cmd *cobra.Command) error {
	level, err := logrus.ParseLevel(cmd.Flag(FlagNameLogLevel).Value.String())
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	l := logrus.New()
	l.SetOutput(cmd.ErrOrStderr())
	l.SetLevel(level)
	converter.SetLogger(l)
	return nil
}

// loadConfig reads the config file and applies the flags given on the command line on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	configData, err := config.Load(cmd.Flag(FlagNameConfig).Value.String())
	if err != nil {
		return config.Config{}, fmt.Errorf("cannot load config: %w", err)
	}
	flags := cmd.Flags()
	settings := &configData.Settings
	if flags.Changed(FlagNameOutputDir) || settings.OutputDir == "" {
		settings.OutputDir, _ = flags.GetString(FlagNameOutputDir)
	}
	if flags.Changed(FlagNameStream) {
		settings.Stream, _ = flags.GetBool(FlagNameStream)
	}
	if flags.Changed(FlagNameSchemaParser) {
		settings.SchemaParser, _ = flags.GetString(FlagNameSchemaParser)
	}
	if flags.Changed(FlagNameUnescapeQuotes) {
		settings.UnescapeQuotes, _ = flags.GetBool(FlagNameUnescapeQuotes)
	}
	if flags.Changed(FlagNameFieldCount) {
		settings.FieldCountPolicy, _ = flags.GetString(FlagNameFieldCount)
	}
	if err = configData.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid settings: %w", err)
	}
	return configData, nil
}

func printSummary(output io.Writer, c *converter.Converter) error {
	tables, err := c.GetTables()
	if err != nil {
		return fmt.Errorf("cannot read converted tables: %w", err)
	}
	names := c.TableNames()
	sort.Strings(names)
	table := tablewriter.NewWriter(output)
	table.SetHeader([]string{"Table", "Columns", "Rows"})
	table.SetAutoWrapText(false)
	for _, name := range names {
		t := tables[name]
		table.Append([]string{name, strings.Join(t.Columns, ", "), strconv.Itoa(len(t.Rows))})
	}
	table.Render()
	return nil
}

// Run executes the root command and returns the process exit code.
func Run() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	os.Exit(Run())
}

func defaultLogLevel() string {
	if lvl, ok := os.LookupEnv("LOG_LEVEL"); ok {
		return lvl
	}
	return logrus.InfoLevel.String()
}

func init() {
	rootCmd.Flags().StringP(FlagNameInput, "i", "", "SQL dump file to convert")
	rootCmd.Flags().StringP(FlagNameOutputDir, "o", config.DefaultOutputDir, "directory the CSV files are written to")
	rootCmd.Flags().StringP(FlagNameConfig, "c", "", "JSON or YAML config file")
	rootCmd.Flags().Bool(FlagNameStream, false, "write rows while reading instead of buffering them in memory")
	rootCmd.Flags().String(FlagNameSchemaParser, config.SchemaParserNaive, "CREATE TABLE column extraction: naive or ast")
	rootCmd.Flags().Bool(FlagNameUnescapeQuotes, false, "decode doubled and backslash-escaped quotes in values")
	rootCmd.Flags().String(FlagNameFieldCount, config.FieldCountKeep, "rows not matching the column count: keep, pad or error")
	rootCmd.Flags().Bool(FlagNameSummary, false, "print a summary of the converted tables")
	rootCmd.Flags().String(FlagNameLogLevel, defaultLogLevel(), "log level (debug, info, warn, error)")
	_ = rootCmd.MarkFlagRequired(FlagNameInput)
}
