package csv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/text/encoding/charmap"

	"github.com/ajitpratap0/pipeflow/pkg/compression"
	"github.com/ajitpratap0/pipeflow/pkg/config"
	"github.com/ajitpratap0/pipeflow/pkg/connector/core"
	"github.com/ajitpratap0/pipeflow/pkg/models"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func collect(t *testing.T, src core.Extractor) ([]models.Record, []error) {
	t.Helper()
	var recs []models.Record
	var errs []error
	for rec, err := range src.Extract(context.Background()) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, errs
}

func TestCSVSource_Extract(t *testing.T) {
	path := writeFile(t, "users.csv", []byte("id,name,age\n1,Ann,34\n2,Bob,x\n3,\"Smith, Jo\",51\n"))

	src, err := NewCSVSource(config.ExtractConfig{Type: "csv", Path: path}, zaptest.NewLogger(t))
	require.NoError(t, err)

	recs, errs := collect(t, src)
	require.Empty(t, errs)
	require.Len(t, recs, 3)

	assert.Equal(t, []string{"id", "name", "age"}, recs[0].Keys())
	assert.Equal(t, "Ann", recs[0].Value("name"))
	assert.Equal(t, "x", recs[1].Value("age"))
	assert.Equal(t, "Smith, Jo", recs[2].Value("name"))
}

func TestCSVSource_MalformedRows(t *testing.T) {
	data := "id,name\n1,Ann\n2,Bob,extra\n3\n4,Dan\n"
	path := writeFile(t, "bad.csv", []byte(data))

	src, err := NewCSVSource(config.ExtractConfig{Type: "csv", Path: path}, zaptest.NewLogger(t))
	require.NoError(t, err)

	recs, errs := collect(t, src)
	require.Len(t, recs, 2)
	require.Len(t, errs, 2)

	var ee *core.ExtractError
	require.ErrorAs(t, errs[0], &ee)
	assert.Equal(t, 3, ee.Line)
	assert.Equal(t, "2,Bob,extra", ee.Raw)
	assert.True(t, core.IsRecoverable(errs[1]))

	assert.Equal(t, "1", recs[0].Value("id"))
	assert.Equal(t, "4", recs[1].Value("id"))
}

func TestCSVSource_Options(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		file     string
		cfg      config.ExtractConfig
		wantKeys []string
		wantVals []any
	}{
		{
			name:     "semicolon delimiter",
			data:     []byte("a;b\n1;2\n"),
			file:     "semi.csv",
			cfg:      config.ExtractConfig{Delimiter: ";"},
			wantKeys: []string{"a", "b"},
			wantVals: []any{"1", "2"},
		},
		{
			name:     "tab delimiter",
			data:     []byte("a\tb\n1\t2\n"),
			file:     "tab.tsv",
			cfg:      config.ExtractConfig{Delimiter: `\t`},
			wantKeys: []string{"a", "b"},
			wantVals: []any{"1", "2"},
		},
		{
			name:     "no header",
			data:     []byte("1,2\n"),
			file:     "nohdr.csv",
			cfg:      config.ExtractConfig{HasHeader: new(bool)},
			wantKeys: []string{"column_1", "column_2"},
			wantVals: []any{"1", "2"},
		},
		{
			name:     "utf-8 bom stripped",
			data:     []byte("\xef\xbb\xbfid,name\n1,Zoë\n"),
			file:     "bom.csv",
			wantKeys: []string{"id", "name"},
			wantVals: []any{"1", "Zoë"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Type = "csv"
			cfg.Path = writeFile(t, tt.file, tt.data)

			src, err := NewCSVSource(cfg, zaptest.NewLogger(t))
			require.NoError(t, err)

			recs, errs := collect(t, src)
			require.Empty(t, errs)
			require.Len(t, recs, 1)
			assert.Equal(t, tt.wantKeys, recs[0].Keys())
			for i, k := range tt.wantKeys {
				assert.Equal(t, tt.wantVals[i], recs[0].Value(k))
			}
		})
	}
}

func TestCSVSource_Latin1(t *testing.T) {
	encoded, err := charmap.ISO8859_1.NewEncoder().String("name\nJosé\n")
	require.NoError(t, err)
	path := writeFile(t, "latin.csv", []byte(encoded))

	src, err := NewCSVSource(config.ExtractConfig{Type: "csv", Path: path, Encoding: "latin1"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	recs, errs := collect(t, src)
	require.Empty(t, errs)
	require.Len(t, recs, 1)
	assert.Equal(t, "José", recs[0].Value("name"))
}

func TestCSVSource_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.csv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := compression.NewWriter(f, compression.Gzip)
	require.NoError(t, err)
	_, err = w.Write([]byte("id\n1\n2\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	src, err := NewCSVSource(config.ExtractConfig{Type: "csv", Path: path}, zaptest.NewLogger(t))
	require.NoError(t, err)

	recs, errs := collect(t, src)
	require.Empty(t, errs)
	assert.Len(t, recs, 2)
}

func TestCSVSource_Config(t *testing.T) {
	_, err := NewCSVSource(config.ExtractConfig{Type: "csv"}, nil)
	assert.Error(t, err)

	_, err = NewCSVSource(config.ExtractConfig{Type: "csv", Path: "x.csv", Delimiter: ",,"}, nil)
	assert.Error(t, err)

	_, err = NewCSVSource(config.ExtractConfig{Type: "csv", Path: "x.csv", Encoding: "klingon"}, nil)
	assert.Error(t, err)
}

func TestCSVSource_MissingFile(t *testing.T) {
	src, err := NewCSVSource(config.ExtractConfig{Type: "csv", Path: filepath.Join(t.TempDir(), "nope.csv")}, nil)
	require.NoError(t, err)

	recs, errs := collect(t, src)
	assert.Empty(t, recs)
	require.Len(t, errs, 1)
	assert.False(t, core.IsRecoverable(errs[0]))
}

func TestCSVSource_Rereadable(t *testing.T) {
	path := writeFile(t, "twice.csv", []byte("id\n1\n2\n"))
	src, err := NewCSVSource(config.ExtractConfig{Type: "csv", Path: path}, nil)
	require.NoError(t, err)

	first, _ := collect(t, src)
	second, _ := collect(t, src)
	assert.Len(t, first, 2)
	assert.Len(t, second, 2)
}
