package converter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/duffpl/go-dump2csv/config"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plantsDump = `-- MySQL dump 10.13  Distrib 8.0.36
/*!40101 SET @OLD_CHARACTER_SET_CLIENT=@@CHARACTER_SET_CLIENT */;

DROP TABLE IF EXISTS ` + "`plants`" + `;
CREATE TABLE ` + "`plants`" + ` (
  ` + "`id`" + ` int NOT NULL AUTO_INCREMENT,
  ` + "`name`" + ` varchar(100) NOT NULL,
  ` + "`owner_id`" + ` int DEFAULT NULL,
  PRIMARY KEY (` + "`id`" + `),
  KEY ` + "`owner_idx`" + ` (` + "`owner_id`" + `)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

LOCK TABLES ` + "`plants`" + ` WRITE;
INSERT INTO ` + "`plants`" + ` VALUES (1,'Basil',7),(2,'Mint, spearmint',7),(3,'Fern \"Bob\"',NULL);
UNLOCK TABLES;

CREATE TABLE ` + "`sensor_data`" + ` (
  ` + "`plant_id`" + ` int,
  ` + "`moisture`" + ` float
);
INSERT INTO ` + "`sensor_data`" + ` VALUES (1,41.5),(2,38);
INSERT INTO ` + "`sensor_data`" + ` VALUES (3,52.25);
INSERT INTO ` + "`unknown`" + ` VALUES (1,2);
`

func writeDump(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dump.sql")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestConverter(t *testing.T, dump string, configData config.Config) (*Converter, string) {
	t.Helper()
	outputDir := filepath.Join(t.TempDir(), "csv_output")
	c, err := New(writeDump(t, dump), outputDir, configData)
	require.NoError(t, err)
	return c, outputDir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestConvertScenarios(t *testing.T) {
	cases := []struct {
		name  string
		dump  string
		files map[string]string
	}{
		{
			"Single line create and insert",
			"CREATE TABLE `users` (id INT, name VARCHAR(50), PRIMARY KEY (id));\nINSERT INTO `users` VALUES (1,'Alice'),(2,'Bob');\n",
			map[string]string{"users.csv": "id,name\n1,Alice\n2,Bob\n"},
		},
		{
			"Insert without create",
			"INSERT INTO unknown_table VALUES (1,2);\n",
			map[string]string{},
		},
		{
			"Embedded comma",
			"CREATE TABLE t (id INT, v TEXT);\nINSERT INTO t VALUES (1,'a,b');\n",
			map[string]string{"t.csv": "id,v\n1,\"a,b\"\n"},
		},
		{
			"Create split across lines",
			"CREATE TABLE t (\n  id INT,\n  v TEXT);\nINSERT INTO t VALUES (1,'x');\n",
			map[string]string{"t.csv": "id,v\n1,x\n"},
		},
		{
			"Comment before create",
			"-- comment\nCREATE TABLE x (id INT);\n",
			map[string]string{"x.csv": "id\n"},
		},
		{
			"Comments inside create",
			"CREATE TABLE x (\n-- id INT,\n/* skipped */\nname TEXT\n);\n",
			map[string]string{"x.csv": "name\n"},
		},
		{
			"Last line without newline",
			"CREATE TABLE x (id INT);\nINSERT INTO x VALUES (5);",
			map[string]string{"x.csv": "id\n5\n"},
		},
		{
			"Empty value",
			"CREATE TABLE x (v TEXT);\nINSERT INTO x VALUES (''),('a');\n",
			map[string]string{"x.csv": "v\n\"\"\na\n"},
		},
		{
			"Rows before create are dropped",
			"INSERT INTO x VALUES (1);\nCREATE TABLE x (id INT);\nINSERT INTO x VALUES (2);\n",
			map[string]string{"x.csv": "id\n2\n"},
		},
		{
			"Field count mismatch is kept",
			"CREATE TABLE x (a INT, b INT);\nINSERT INTO x VALUES (1),(1,2,3);\n",
			map[string]string{"x.csv": "a,b\n1\n1,2,3\n"},
		},
		{
			"Create if not exists",
			"CREATE TABLE IF NOT EXISTS `x` (id INT);\n",
			map[string]string{"x.csv": "id\n"},
		},
	}
	for _, c := range cases {
		for _, stream := range []bool{false, true} {
			name := c.name
			if stream {
				name += " streamed"
			}
			t.Run(name, func(t *testing.T) {
				configData := config.Default()
				configData.Settings.Stream = stream
				conv, outputDir := newTestConverter(t, c.dump, configData)
				require.NoError(t, conv.Convert(context.Background()))

				assert.Len(t, listDir(t, outputDir), len(c.files))
				for fileName, content := range c.files {
					assert.Equal(t, content, readFile(t, filepath.Join(outputDir, fileName)), fileName)
				}
			})
		}
	}
}

func TestConvertPlantsDump(t *testing.T) {
	conv, outputDir := newTestConverter(t, plantsDump, config.Default())
	require.NoError(t, conv.Convert(context.Background()))

	assert.Equal(t, []string{"plants", "sensor_data"}, conv.TableNames())
	assert.ElementsMatch(t, []string{"plants.csv", "sensor_data.csv"}, listDir(t, outputDir))
	assert.Equal(t,
		"id,name,owner_id\n1,Basil,7\n2,\"Mint, spearmint\",7\n3,\"Fern \\\"\"Bob\\\"\"\",NULL\n",
		readFile(t, filepath.Join(outputDir, "plants.csv")),
	)
	assert.Equal(t,
		"plant_id,moisture\n1,41.5\n2,38\n3,52.25\n",
		readFile(t, filepath.Join(outputDir, "sensor_data.csv")),
	)
}

func TestGetTablesRoundTrip(t *testing.T) {
	dump := "CREATE TABLE notes (id INT, body TEXT);\n" +
		"INSERT INTO notes VALUES (1,'comma, here'),(2,'say \"hi\"'),(3,'line\\nbreak'),(4,''),(5,' padded '),(6,'crlf\\r\\nhere'),(7, ' sp');\n"
	configData := config.Default()
	configData.Settings.UnescapeQuotes = true
	conv, outputDir := newTestConverter(t, dump, configData)

	tables, err := conv.GetTables()
	require.NoError(t, err)
	assert.Empty(t, tables)

	require.NoError(t, conv.Convert(context.Background()))
	tables, err = conv.GetTables()
	require.NoError(t, err)
	require.Contains(t, tables, "notes")
	notes := tables["notes"]
	assert.Equal(t, "notes", notes.Name)
	assert.Equal(t, []string{"id", "body"}, notes.Columns)
	assert.Equal(t, [][]string{
		{"1", "comma, here"},
		{"2", `say "hi"`},
		{"3", "line\nbreak"},
		{"4", ""},
		{"5", " padded "},
		{"6", "crlf\r\nhere"},
		{"7", " sp"},
	}, notes.Rows)

	content := readFile(t, filepath.Join(outputDir, "notes.csv"))
	assert.Contains(t, content, "6,\"crlf\r\nhere\"\n")
	assert.Contains(t, content, "7,\" sp\"\n")
}

func TestConvertMissingDump(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "missing.sql"), t.TempDir(), config.Default())
	require.NoError(t, err)
	err = c.Convert(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConvertMalformedCreateWritesNothing(t *testing.T) {
	dump := "CREATE TABLE a (id INT);\nINSERT INTO a VALUES (1);\nCREATE TABLE b;\nINSERT INTO b VALUES (2);\n"
	for _, stream := range []bool{false, true} {
		configData := config.Default()
		configData.Settings.Stream = stream
		conv, outputDir := newTestConverter(t, dump, configData)
		err := conv.Convert(context.Background())
		assert.ErrorIs(t, err, ErrMalformedCreateTable)
		assert.Contains(t, err.Error(), "line 3")
		assert.Empty(t, listDir(t, outputDir))
		assert.Empty(t, conv.TableNames())
	}
}

func TestStreamingMatchesBuffered(t *testing.T) {
	buffered, bufferedDir := newTestConverter(t, plantsDump, config.Default())
	require.NoError(t, buffered.Convert(context.Background()))

	streamConfig := config.Default()
	streamConfig.Settings.Stream = true
	streamed, streamedDir := newTestConverter(t, plantsDump, streamConfig)
	require.NoError(t, streamed.Convert(context.Background()))

	assert.Equal(t, buffered.TableNames(), streamed.TableNames())
	for _, fileName := range listDir(t, bufferedDir) {
		assert.Equal(t, readFile(t, filepath.Join(bufferedDir, fileName)), readFile(t, filepath.Join(streamedDir, fileName)))
	}
}

func TestSchemaParsers(t *testing.T) {
	dump := "CREATE TABLE `readings` (\n`id` INT,\n`moisture` DECIMAL(10,2),\nPRIMARY KEY (`id`)\n);\nINSERT INTO `readings` VALUES (1,'41.50');\n"

	naive, naiveDir := newTestConverter(t, dump, config.Default())
	require.NoError(t, naive.Convert(context.Background()))
	assert.Equal(t, "id,moisture,2)\n1,41.50\n", readFile(t, filepath.Join(naiveDir, "readings.csv")))

	astConfig := config.Default()
	astConfig.Settings.SchemaParser = config.SchemaParserAST
	parsed, astDir := newTestConverter(t, dump, astConfig)
	require.NoError(t, parsed.Convert(context.Background()))
	assert.Equal(t, "id,moisture\n1,41.50\n", readFile(t, filepath.Join(astDir, "readings.csv")))
}

func TestFieldCountPolicies(t *testing.T) {
	dump := "CREATE TABLE x (a INT, b INT);\nINSERT INTO x VALUES (1),(1,2),(1,2,3);\n"

	padConfig := config.Default()
	padConfig.Settings.FieldCountPolicy = config.FieldCountPad
	padded, paddedDir := newTestConverter(t, dump, padConfig)
	require.NoError(t, padded.Convert(context.Background()))
	assert.Equal(t, "a,b\n1,\n1,2\n1,2\n", readFile(t, filepath.Join(paddedDir, "x.csv")))

	errorConfig := config.Default()
	errorConfig.Settings.FieldCountPolicy = config.FieldCountError
	strict, strictDir := newTestConverter(t, dump, errorConfig)
	err := strict.Convert(context.Background())
	assert.ErrorIs(t, err, ErrFieldCount)
	assert.Empty(t, listDir(t, strictDir))
}

func TestTransformationsAndSkip(t *testing.T) {
	configData := config.Default()
	configData.TableConfigs = []config.TableConfig{
		{TableName: "plants", Columns: []config.ColumnConfig{
			{ColumnName: "name", Transformations: []config.TransformationConfig{{Template: "plant-{{ .RowMeta.Index }}"}}},
		}},
		{TableName: "sensor_data", Skip: true},
	}
	conv, outputDir := newTestConverter(t, plantsDump, configData)
	require.NoError(t, conv.Convert(context.Background()))

	assert.Equal(t, []string{"plants.csv"}, listDir(t, outputDir))
	assert.Equal(t,
		"id,name,owner_id\n1,plant-1,7\n2,plant-2,7\n3,plant-3,NULL\n",
		readFile(t, filepath.Join(outputDir, "plants.csv")),
	)
}

func TestFileNameTemplate(t *testing.T) {
	configData := config.Default()
	configData.Settings.FileNameTemplate = "export_{{ .Table | upper }}.csv"
	conv, outputDir := newTestConverter(t, plantsDump, configData)
	require.NoError(t, conv.Convert(context.Background()))
	assert.ElementsMatch(t, []string{"export_PLANTS.csv", "export_SENSOR_DATA.csv"}, listDir(t, outputDir))

	tables, err := conv.GetTables()
	require.NoError(t, err)
	assert.Len(t, tables["sensor_data"].Rows, 3)
}

func TestFileNameTemplateErrors(t *testing.T) {
	cases := map[string]string{
		"Path separator": "../{{ .Table }}.csv",
		"Empty name":     "{{ if false }}x{{ end }}",
		"Collision":      "all.csv",
	}
	for name, fileNameTemplate := range cases {
		t.Run(name, func(t *testing.T) {
			configData := config.Default()
			configData.Settings.FileNameTemplate = fileNameTemplate
			conv, outputDir := newTestConverter(t, plantsDump, configData)
			assert.Error(t, conv.Convert(context.Background()))
			assert.Empty(t, listDir(t, outputDir))
		})
	}

	configData := config.Default()
	configData.Settings.FileNameTemplate = "{{ .Table "
	_, err := New("dump.sql", t.TempDir(), configData)
	assert.Error(t, err)
}

func TestTableRedefinition(t *testing.T) {
	dump := "CREATE TABLE x (a INT);\nINSERT INTO x VALUES (1);\nCREATE TABLE y (id INT);\nCREATE TABLE x (b INT, c INT);\nINSERT INTO x VALUES (2,3);\n"
	for _, stream := range []bool{false, true} {
		configData := config.Default()
		configData.Settings.Stream = stream
		conv, outputDir := newTestConverter(t, dump, configData)
		require.NoError(t, conv.Convert(context.Background()))
		assert.Equal(t, []string{"x", "y"}, conv.TableNames())
		assert.Equal(t, "b,c\n2,3\n", readFile(t, filepath.Join(outputDir, "x.csv")))
		assert.Len(t, listDir(t, outputDir), 2)
	}
}

func TestFileCountMatchesCreatedTables(t *testing.T) {
	var dump strings.Builder
	names := []string{"alpha", "beta", "gamma", "beta", "delta"}
	for i, name := range names {
		dump.WriteString("CREATE TABLE `" + name + "` (id INT);\n")
		dump.WriteString("INSERT INTO `" + name + "` VALUES (" + strings.Repeat("1", i+1) + ");\n")
	}
	conv, outputDir := newTestConverter(t, dump.String(), config.Default())
	require.NoError(t, conv.Convert(context.Background()))
	assert.Len(t, listDir(t, outputDir), 4)
	assert.Equal(t, []string{"alpha", "beta", "gamma", "delta"}, conv.TableNames())
}

func TestConvertCancelled(t *testing.T) {
	conv, outputDir := newTestConverter(t, plantsDump, config.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, conv.Convert(ctx), context.Canceled)
	assert.Empty(t, listDir(t, outputDir))
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	configData := config.Default()
	configData.Settings.SchemaParser = "regex"
	_, err := New("dump.sql", t.TempDir(), configData)
	assert.Error(t, err)

	configData = config.Default()
	configData.Settings.Locale = "xx"
	_, err = New("dump.sql", t.TempDir(), configData)
	assert.Error(t, err)
}

func TestNewDefaultsOutputDir(t *testing.T) {
	c, err := New("dump.sql", "", config.Config{})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultOutputDir, c.outputDir)
}

func TestLogsDroppedRows(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	SetLogger(logger)
	defer SetLogger(logrus.New())

	conv, _ := newTestConverter(t, plantsDump, config.Default())
	require.NoError(t, conv.Convert(context.Background()))

	var dropped bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "dropping rows of table without schema" && entry.Data["table"] == "unknown" {
			dropped = true
		}
	}
	assert.True(t, dropped)
}
