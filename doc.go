// Package pipeflow is a declarative record pipeline: it extracts records from
// files or HTTP APIs, transforms and validates them, and loads them into CSV
// files or SQL tables.
//
// A pipeline is described by a single YAML document:
//
//	name: users
//	extract:
//	  type: csv
//	  path: users.csv
//	transforms:
//	  - type: rename
//	    mapping: {"Full Name": name}
//	  - type: cast
//	    columns: {age: int}
//	  - type: filter
//	    condition: "age >= 18"
//	  - type: deduplicate
//	    key: name
//	validate:
//	  fields:
//	    name: str
//	    age: {type: int, required: true}
//	load:
//	  type: sqlite
//	  database: users.db
//	  table: users
//	  mode: upsert
//	  conflict_key: name
//	  batch_size: 500
//
// Environment variables are substituted with ${VAR_NAME} syntax before the
// document is parsed.
//
// # Running
//
//	pipeflow validate pipeline.yaml   # check the config and build every stage
//	pipeflow run pipeline.yaml        # run it and print the JSON report
//	pipeflow inspect data.csv.gz      # infer the schema of a data file
//	pipeflow list                     # list the available connectors
//
// Every run ends with a report: the status, per-outcome record counts that
// always add up (extracted = filtered out + transform failed + valid +
// invalid, and valid = loaded + load failed), stage timings and one entry per
// rejected record naming the stage and the reason.
//
// # Key Packages
//
//	internal/pipeline        - Runner state machine, metrics and error report
//	pkg/config               - Pipeline YAML schema, defaults and validation
//	pkg/connector/sources    - CSV, JSON, JSONL and HTTP API extractors
//	pkg/connector/destinations - CSV and SQL (SQLite, PostgreSQL, MySQL) loaders
//	pkg/connector/registry   - Connector lookup by config type
//	pkg/transform            - rename, select, drop, cast, filter, derive, deduplicate
//	pkg/expr                 - Expression language for filter and derive
//	pkg/validation           - Field-spec and model validation
//	pkg/errors               - Typed errors
//	pkg/logger               - Structured logging
//	pkg/metrics              - Prometheus collectors and Pushgateway export
//	pkg/observability        - OpenTelemetry tracing
package pipeflow
