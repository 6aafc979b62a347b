// Package config defines the pipeline configuration consumed by the runner.
//
// A PipelineConfig has four sections (extract, transforms, validate, load)
// plus run options. Each section recognizes a closed set of options; unknown
// keys are rejected at load time. The configuration is immutable for the
// duration of a run.
//
// Example usage:
//
//	cfg, err := config.Load("pipeline.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	runner, err := pipeline.New(cfg)
package config

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/pipeflow/pkg/models"
)

// Extractor kinds
const (
	ExtractCSV   = "csv"
	ExtractJSON  = "json"
	ExtractJSONL = "jsonl"
	ExtractAPI   = "api"
)

// Loader kinds
const (
	LoadSQLite   = "sqlite"
	LoadPostgres = "postgres"
	LoadMySQL    = "mysql"
	LoadCSV      = "csv"
)

// Transform kinds
const (
	TransformRename      = "rename"
	TransformCast        = "cast"
	TransformFilter      = "filter"
	TransformDerive      = "derive"
	TransformDeduplicate = "deduplicate"
	TransformSelect      = "select"
	TransformDrop        = "drop"
)

// Load modes
const (
	ModeInsert = "insert"
	ModeUpsert = "upsert"
)

// Validation modes
const (
	ValidateCollectAll = "collect_all"
	ValidateFailFast   = "fail_fast"
)

// Pagination strategies
const (
	PaginationNone   = "none"
	PaginationOffset = "offset"
	PaginationPage   = "page"
	PaginationCursor = "cursor"
	PaginationLink   = "link"
)

// Defaults
const (
	DefaultDelimiter   = ","
	DefaultEncoding    = "utf-8"
	DefaultBatchSize   = 100
	DefaultDatabase    = ":memory:"
	DefaultTable       = "data"
	DefaultCSVPath     = "output.csv"
	DefaultPageLimit   = 100
	DefaultHTTPTimeout = 30 * time.Second
	DefaultModel       = "Record"
)

// PipelineConfig is the complete description of one pipeline.
type PipelineConfig struct {
	// Name labels the pipeline in logs, metrics and reports
	Name       string            `yaml:"name" json:"name"`
	Extract    ExtractConfig     `yaml:"extract" json:"extract"`
	Transforms []TransformConfig `yaml:"transforms" json:"transforms"`
	// Validate is optional; without it every record that survives the
	// transforms is valid
	Validate *ValidateConfig `yaml:"validate" json:"validate,omitempty"`
	Load     LoadConfig      `yaml:"load" json:"load"`
	Options  RunOptions      `yaml:"options" json:"options"`
}

// ExtractConfig configures the source.
type ExtractConfig struct {
	Type      string `yaml:"type" json:"type"`
	Path      string `yaml:"path" json:"path,omitempty"`
	URL       string `yaml:"url" json:"url,omitempty"`
	Method    string `yaml:"method" json:"method,omitempty"`
	Delimiter string `yaml:"delimiter" json:"delimiter,omitempty"`
	Encoding  string `yaml:"encoding" json:"encoding,omitempty"`
	// HasHeader defaults to true for CSV sources
	HasHeader *bool             `yaml:"has_header" json:"has_header,omitempty"`
	Headers   map[string]string `yaml:"headers" json:"headers,omitempty"`
	Params    map[string]string `yaml:"params" json:"params,omitempty"`
	// RecordsPath is a dot path to the record list inside an API page
	RecordsPath string `yaml:"records_path" json:"records_path,omitempty"`
	// RateLimit is the requests-per-second ceiling; 0 disables throttling
	RateLimit  float64          `yaml:"rate_limit" json:"rate_limit,omitempty"`
	Timeout    time.Duration    `yaml:"timeout" json:"timeout,omitempty"`
	Retry      int              `yaml:"retry" json:"retry,omitempty"`
	OAuth2     *OAuth2Config    `yaml:"oauth2" json:"oauth2,omitempty"`
	Pagination PaginationConfig `yaml:"pagination" json:"pagination"`
}

// OAuth2Config configures the client-credentials flow for API sources.
type OAuth2Config struct {
	TokenURL     string   `yaml:"token_url" json:"token_url"`
	ClientID     string   `yaml:"client_id" json:"client_id"`
	ClientSecret string   `yaml:"client_secret" json:"-"`
	Scopes       []string `yaml:"scopes" json:"scopes,omitempty"`
}

// PaginationConfig configures how an API source walks pages.
type PaginationConfig struct {
	Type     string `yaml:"type" json:"type"`
	Limit    int    `yaml:"limit" json:"limit,omitempty"`
	MaxPages int    `yaml:"max_pages" json:"max_pages,omitempty"`
	// Request parameter names
	OffsetParam string `yaml:"offset_param" json:"offset_param,omitempty"`
	LimitParam  string `yaml:"limit_param" json:"limit_param,omitempty"`
	PageParam   string `yaml:"page_param" json:"page_param,omitempty"`
	CursorParam string `yaml:"cursor_param" json:"cursor_param,omitempty"`
	// CursorPath is a dot path to the next cursor in the response body
	CursorPath string `yaml:"cursor_path" json:"cursor_path,omitempty"`
	StartPage  int    `yaml:"start_page" json:"start_page,omitempty"`
}

// TransformConfig is one step of the transform chain. Which fields apply
// depends on Type.
type TransformConfig struct {
	Type       string            `yaml:"type" json:"type"`
	Mapping    map[string]string `yaml:"mapping" json:"mapping,omitempty"`
	Columns    Columns           `yaml:"columns" json:"columns,omitempty"`
	Condition  string            `yaml:"condition" json:"condition,omitempty"`
	Expression string            `yaml:"expression" json:"expression,omitempty"`
	Field      string            `yaml:"field" json:"field,omitempty"`
	Key        StringList        `yaml:"key" json:"key,omitempty"`
	Keep       string            `yaml:"keep" json:"keep,omitempty"`
}

// ValidateConfig declares the expected record schema.
type ValidateConfig struct {
	// Model is a label only
	Model  string     `yaml:"model" json:"model"`
	Mode   string     `yaml:"mode" json:"mode"`
	Fields FieldSpecs `yaml:"fields" json:"fields"`
}

// LoadConfig configures the destination.
type LoadConfig struct {
	Type     string `yaml:"type" json:"type"`
	Database string `yaml:"database" json:"database,omitempty"`
	// DSN is the connection string for postgres and mysql
	DSN         string     `yaml:"dsn" json:"-"`
	Path        string     `yaml:"path" json:"path,omitempty"`
	Table       string     `yaml:"table" json:"table,omitempty"`
	Mode        string     `yaml:"mode" json:"mode,omitempty"`
	ConflictKey StringList `yaml:"conflict_key" json:"conflict_key,omitempty"`
	BatchSize   int        `yaml:"batch_size" json:"batch_size"`
	Append      bool       `yaml:"append" json:"append,omitempty"`
	Delimiter   string     `yaml:"delimiter" json:"delimiter,omitempty"`
}

// RunOptions tune the runner's failure policy.
type RunOptions struct {
	// StopOnLoadFailure ends the run on the first failed batch. Defaults to true.
	StopOnLoadFailure *bool `yaml:"stop_on_load_failure" json:"stop_on_load_failure,omitempty"`
	// MaxErrors fails the run once the error report grows past it; 0 means unlimited
	MaxErrors int `yaml:"max_errors" json:"max_errors,omitempty"`
}

// ShouldStopOnLoadFailure resolves the StopOnLoadFailure default.
func (o RunOptions) ShouldStopOnLoadFailure() bool {
	return o.StopOnLoadFailure == nil || *o.StopOnLoadFailure
}

// ApplyDefaults fills unset pagination options.
func (p *PaginationConfig) ApplyDefaults() {
	if p.Type == "" {
		p.Type = PaginationNone
	}
	if p.Limit == 0 {
		p.Limit = DefaultPageLimit
	}
	if p.OffsetParam == "" {
		p.OffsetParam = "offset"
	}
	if p.LimitParam == "" {
		p.LimitParam = "limit"
	}
	if p.PageParam == "" {
		p.PageParam = "page"
	}
	if p.CursorParam == "" {
		p.CursorParam = "cursor"
	}
	if p.CursorPath == "" {
		p.CursorPath = "next_cursor"
	}
	if p.StartPage == 0 {
		p.StartPage = 1
	}
}

// CSVHasHeader resolves the HasHeader default.
func (e ExtractConfig) CSVHasHeader() bool {
	return e.HasHeader == nil || *e.HasHeader
}

// ApplyDefaults fills unset options with their defaults.
func (c *PipelineConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "pipeline"
	}

	e := &c.Extract
	if e.Delimiter == "" {
		e.Delimiter = DefaultDelimiter
	}
	if e.Encoding == "" {
		e.Encoding = DefaultEncoding
	}
	if e.Type == ExtractAPI {
		if e.Method == "" {
			e.Method = "GET"
		}
		if e.Timeout == 0 {
			e.Timeout = DefaultHTTPTimeout
		}
		e.Pagination.ApplyDefaults()
	}

	for i := range c.Transforms {
		t := &c.Transforms[i]
		if t.Type == TransformDeduplicate && t.Keep == "" {
			t.Keep = "first"
		}
	}

	if v := c.Validate; v != nil {
		if v.Model == "" {
			v.Model = DefaultModel
		}
		if v.Mode == "" {
			v.Mode = ValidateCollectAll
		}
	}

	l := &c.Load
	if l.Mode == "" {
		l.Mode = ModeInsert
	}
	if l.BatchSize == 0 {
		l.BatchSize = DefaultBatchSize
	}
	if l.Delimiter == "" {
		l.Delimiter = DefaultDelimiter
	}
	switch l.Type {
	case LoadSQLite:
		if l.Database == "" {
			l.Database = DefaultDatabase
		}
		if l.Table == "" {
			l.Table = DefaultTable
		}
	case LoadPostgres, LoadMySQL:
		if l.Table == "" {
			l.Table = DefaultTable
		}
	case LoadCSV:
		if l.Path == "" {
			l.Path = DefaultCSVPath
		}
	}
}

// Check checks the configuration for correctness. All problems are
// reported together.
func (c *PipelineConfig) Check() error {
	var issues Issues

	switch c.Extract.Type {
	case ExtractCSV, ExtractJSON, ExtractJSONL:
		if c.Extract.Path == "" {
			issues.Add("extract.path", "is required for %s sources", c.Extract.Type)
		}
		if c.Extract.Type == ExtractCSV && len([]rune(c.Extract.Delimiter)) != 1 {
			issues.Add("extract.delimiter", "must be a single character")
		}
	case ExtractAPI:
		if c.Extract.URL == "" {
			issues.Add("extract.url", "is required for api sources")
		}
		if c.Extract.RateLimit < 0 {
			issues.Add("extract.rate_limit", "cannot be negative")
		}
		if c.Extract.Retry < 0 {
			issues.Add("extract.retry", "cannot be negative")
		}
		switch c.Extract.Pagination.Type {
		case PaginationNone, PaginationOffset, PaginationPage, PaginationCursor, PaginationLink:
		default:
			issues.Add("extract.pagination.type", "unknown strategy %q", c.Extract.Pagination.Type)
		}
		if c.Extract.Pagination.Limit < 0 || c.Extract.Pagination.MaxPages < 0 {
			issues.Add("extract.pagination", "limit and max_pages cannot be negative")
		}
		if o := c.Extract.OAuth2; o != nil && (o.TokenURL == "" || o.ClientID == "") {
			issues.Add("extract.oauth2", "token_url and client_id are required")
		}
	case "":
		issues.Add("extract.type", "is required")
	default:
		issues.Add("extract.type", "unknown extractor %q", c.Extract.Type)
	}

	for i, t := range c.Transforms {
		c.validateTransform(&issues, fmt.Sprintf("transforms[%d]", i), t)
	}

	if v := c.Validate; v != nil {
		if v.Mode != ValidateCollectAll && v.Mode != ValidateFailFast {
			issues.Add("validate.mode", "must be %q or %q", ValidateCollectAll, ValidateFailFast)
		}
		for _, f := range v.Fields {
			if _, ok := models.ParseFieldType(f.Type); !ok {
				issues.Add("validate.fields."+f.Name, "unknown type %q", f.Type)
			}
		}
	}

	l := c.Load
	switch l.Type {
	case LoadSQLite, LoadPostgres, LoadMySQL:
		if l.Type != LoadSQLite && l.DSN == "" {
			issues.Add("load.dsn", "is required for %s", l.Type)
		}
		if l.Table == "" {
			issues.Add("load.table", "is required")
		}
		switch l.Mode {
		case ModeInsert:
		case ModeUpsert:
			if len(l.ConflictKey) == 0 {
				issues.Add("load.conflict_key", "is required in upsert mode")
			}
		default:
			issues.Add("load.mode", "must be %q or %q", ModeInsert, ModeUpsert)
		}
	case LoadCSV:
		if l.Path == "" {
			issues.Add("load.path", "is required for csv")
		}
		if l.Mode == ModeUpsert {
			issues.Add("load.mode", "upsert is not supported by csv loaders")
		}
		if len([]rune(l.Delimiter)) != 1 {
			issues.Add("load.delimiter", "must be a single character")
		}
	case "":
		issues.Add("load.type", "is required")
	default:
		issues.Add("load.type", "unknown loader %q", l.Type)
	}
	if l.BatchSize <= 0 {
		issues.Add("load.batch_size", "must be positive")
	}
	if c.Options.MaxErrors < 0 {
		issues.Add("options.max_errors", "cannot be negative")
	}

	return issues.Err()
}

func (c *PipelineConfig) validateTransform(issues *Issues, path string, t TransformConfig) {
	switch t.Type {
	case TransformRename:
		if len(t.Mapping) == 0 {
			issues.Add(path+".mapping", "is required")
		}
	case TransformCast:
		if len(t.Columns) == 0 {
			issues.Add(path+".columns", "is required")
		}
		for _, col := range t.Columns {
			ft, ok := models.ParseFieldType(col.Type)
			if !ok || ft == models.FieldTypeJSON || ft == models.FieldTypeAny {
				issues.Add(path+".columns."+col.Name, "unknown cast type %q", col.Type)
			}
		}
	case TransformFilter:
		if t.Condition == "" {
			issues.Add(path+".condition", "is required")
		}
	case TransformDerive:
		if t.Expression == "" {
			issues.Add(path+".expression", "is required")
		}
	case TransformDeduplicate:
		if len(t.Key) == 0 {
			issues.Add(path+".key", "is required")
		}
		if t.Keep != "first" {
			issues.Add(path+".keep", "only \"first\" is supported")
		}
	case TransformSelect, TransformDrop:
		if len(t.Columns) == 0 {
			issues.Add(path+".columns", "is required")
		}
	case "":
		issues.Add(path+".type", "is required")
	default:
		issues.Add(path+".type", "unknown transform %q", t.Type)
	}
}
