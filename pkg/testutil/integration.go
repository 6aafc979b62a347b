package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/pipeflow/pkg/config"
)

// IntegrationTestSuite provides a temp directory and a context for
// end-to-end pipeline tests.
type IntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	tempDir   string
	startTime time.Time
}

// SetupSuite runs before all tests in the suite
func (s *IntegrationTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.startTime = time.Now()

	tempDir, err := os.MkdirTemp("", "pipeflow-test-*")
	require.NoError(s.T(), err)
	s.tempDir = tempDir
}

// TearDownSuite runs after all tests in the suite
func (s *IntegrationTestSuite) TearDownSuite() {
	s.cancel()
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
	s.T().Logf("integration suite completed in %v", time.Since(s.startTime))
}

// Context returns the suite context
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}

// TempDir returns the temporary directory path
func (s *IntegrationTestSuite) TempDir() string {
	return s.tempDir
}

// CreateTempFile writes content to a file in the temp directory.
func (s *IntegrationTestSuite) CreateTempFile(name, content string) string {
	path := filepath.Join(s.tempDir, name)
	require.NoError(s.T(), os.WriteFile(path, []byte(content), 0o600))
	return path
}

// ParseConfig parses a YAML pipeline after formatting it with args.
func (s *IntegrationTestSuite) ParseConfig(format string, args ...any) *config.PipelineConfig {
	cfg, err := config.Parse([]byte(fmt.Sprintf(format, args...)))
	require.NoError(s.T(), err)
	return cfg
}

// QueryRows returns every row of query against the SQLite database at path,
// each row formatted as its columns joined by "|".
func (s *IntegrationTestSuite) QueryRows(path, query string) []string {
	return QueryRows(s.T(), path, query)
}

// QueryRows is the standalone form of IntegrationTestSuite.QueryRows. The
// "sqlite" driver must be registered by the caller's imports.
func QueryRows(t *testing.T, path, query string) []string {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query(query)
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)

	var out []string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		require.NoError(t, rows.Scan(ptrs...))
		parts := make([]string, len(cols))
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			parts[i] = fmt.Sprint(v)
		}
		out = append(out, strings.Join(parts, "|"))
	}
	require.NoError(t, rows.Err())
	return out
}

// IntegrationTest marks a test as an integration test
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// CreateTestData writes a CSV file with a header id,name,value and n rows.
func CreateTestData(t *testing.T, dir, name string, n int) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("id,name,value\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,record_%d,%.2f\n", i, i, float64(i)*1.25)
	}
	return WriteFile(t, dir, name, b.String())
}
