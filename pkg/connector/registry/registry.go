// Package registry maps the configured extractor and loader kinds to their
// implementations. The set of kinds is closed: a type not listed here is a
// configuration error.
package registry

import (
	"sort"

	"go.uber.org/zap"

	"github.com/ajitpratap0/pipeflow/pkg/config"
	"github.com/ajitpratap0/pipeflow/pkg/connector/core"
	csvdest "github.com/ajitpratap0/pipeflow/pkg/connector/destinations/csv"
	sqldest "github.com/ajitpratap0/pipeflow/pkg/connector/destinations/sql"
	"github.com/ajitpratap0/pipeflow/pkg/connector/sources/api"
	csvsrc "github.com/ajitpratap0/pipeflow/pkg/connector/sources/csv"
	jsonsrc "github.com/ajitpratap0/pipeflow/pkg/connector/sources/json"
	"github.com/ajitpratap0/pipeflow/pkg/errors"
)

// SourceFactory creates an extractor from the extract section.
type SourceFactory func(cfg config.ExtractConfig, logger *zap.Logger) (core.Extractor, error)

// DestinationFactory creates a loader from the load section.
type DestinationFactory func(cfg config.LoadConfig, logger *zap.Logger) (core.Loader, error)

type sourceEntry struct {
	info    core.Info
	factory SourceFactory
}

type destinationEntry struct {
	info    core.Info
	factory DestinationFactory
}

var sources = map[string]sourceEntry{
	config.ExtractCSV: {
		info: core.Info{
			Description: "Delimited text file with optional header, any WHATWG encoding, optional compression",
			Options:     []string{"path", "delimiter", "encoding", "has_header"},
		},
		factory: func(cfg config.ExtractConfig, logger *zap.Logger) (core.Extractor, error) {
			return csvsrc.NewCSVSource(cfg, logger)
		},
	},
	config.ExtractJSON: {
		info: core.Info{
			Description: "JSON document: an array of objects or a single object",
			Options:     []string{"path"},
		},
		factory: newJSONSource,
	},
	config.ExtractJSONL: {
		info: core.Info{
			Description: "JSON Lines file, one object per line",
			Options:     []string{"path"},
		},
		factory: newJSONSource,
	},
	config.ExtractAPI: {
		info: core.Info{
			Description: "Paginated HTTP JSON API with rate limiting, retries and OAuth2",
			Options: []string{
				"url", "method", "headers", "params", "records_path", "pagination",
				"rate_limit", "timeout", "retry", "oauth2",
			},
		},
		factory: func(cfg config.ExtractConfig, logger *zap.Logger) (core.Extractor, error) {
			return api.NewAPISource(cfg, logger)
		},
	},
}

var destinations = map[string]destinationEntry{
	config.LoadSQLite: {
		info: core.Info{
			Description: "SQLite table, created from the first record",
			Options:     []string{"database", "table", "mode", "conflict_key", "batch_size"},
		},
		factory: newSQLDestination,
	},
	config.LoadPostgres: {
		info: core.Info{
			Description: "PostgreSQL table, created from the first record",
			Options:     []string{"dsn", "table", "mode", "conflict_key", "batch_size"},
		},
		factory: newSQLDestination,
	},
	config.LoadMySQL: {
		info: core.Info{
			Description: "MySQL table, created from the first record",
			Options:     []string{"dsn", "table", "mode", "conflict_key", "batch_size"},
		},
		factory: newSQLDestination,
	},
	config.LoadCSV: {
		info: core.Info{
			Description: "CSV file with a header from the first record, optional compression",
			Options:     []string{"path", "delimiter", "append", "batch_size"},
		},
		factory: func(cfg config.LoadConfig, logger *zap.Logger) (core.Loader, error) {
			return csvdest.NewCSVDestination(cfg, logger)
		},
	},
}

func newJSONSource(cfg config.ExtractConfig, logger *zap.Logger) (core.Extractor, error) {
	return jsonsrc.NewJSONSource(cfg, logger)
}

func newSQLDestination(cfg config.LoadConfig, logger *zap.Logger) (core.Loader, error) {
	return sqldest.NewSQLDestination(cfg, logger)
}

// NewExtractor creates the extractor named by cfg.Type.
func NewExtractor(cfg config.ExtractConfig, logger *zap.Logger) (core.Extractor, error) {
	entry, ok := sources[cfg.Type]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown extractor %q", cfg.Type)
	}
	ext, err := entry.factory(cfg, logger)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "create %s extractor", cfg.Type)
	}
	return ext, nil
}

// NewLoader creates the loader named by cfg.Type.
func NewLoader(cfg config.LoadConfig, logger *zap.Logger) (core.Loader, error) {
	entry, ok := destinations[cfg.Type]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown loader %q", cfg.Type)
	}
	l, err := entry.factory(cfg, logger)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "create %s loader", cfg.Type)
	}
	return l, nil
}

// HasSource reports whether name is a known extractor kind.
func HasSource(name string) bool {
	_, ok := sources[name]
	return ok
}

// HasDestination reports whether name is a known loader kind.
func HasDestination(name string) bool {
	_, ok := destinations[name]
	return ok
}

// List describes every extractor and loader kind, sources first, each group
// sorted by name.
func List() []core.Info {
	infos := make([]core.Info, 0, len(sources)+len(destinations))
	for name, e := range sources {
		info := e.info
		info.Name, info.Type = name, core.ConnectorTypeSource
		infos = append(infos, info)
	}
	for name, e := range destinations {
		info := e.info
		info.Name, info.Type = name, core.ConnectorTypeDestination
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Type != infos[j].Type {
			return infos[i].Type == core.ConnectorTypeSource
		}
		return infos[i].Name < infos[j].Name
	})
	return infos
}
