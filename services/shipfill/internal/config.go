package internal

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

type Config struct {
	// Source
	Endpoint     string `default:"localhost:8080" help:"State-history websocket endpoint (host:port)"`
	MaxMessageMB int64  `name:"max-message-mb" default:"1024" help:"Largest message accepted from the node in MB"`

	// Storage
	Schema       string `default:"chain" help:"Namespace for stored records"`
	DBPath       string `name:"db-path" alias:"path" default:"./shipfill.db" help:"Path to Pebble database"`
	DBSizeMB     uint64 `name:"set-db-size-mb" help:"Refuse commits once the database exceeds this size in MB (0 = unlimited)"`
	CacheSizeMB  int64  `name:"pebble-cache-size-mb" default:"256" help:"Pebble block cache size in MB"`
	CompressRows bool   `name:"compress-rows" help:"Store table rows and traces zstd-compressed"`

	// Filling
	SkipTo       uint32 `name:"skip-to" help:"Skip blocks before this one"`
	Stop         uint32 `help:"Stop before this block (0 = never)"`
	Trim         bool   `help:"Remove blocks that are no longer reversible"`
	Drop         bool   `help:"Delete all data for the schema before starting"`
	ProgressRows uint32 `name:"progress-rows" default:"10000" help:"Log progress every N rows of a large table delta (0 to disable)"`

	// Server
	MetricsListen string `name:"metrics-listen" default:"none" help:"Metrics endpoint address (e.g., 'localhost:9090' or '/path/to/metrics.sock')"`

	// Logging and debugging
	Debug           bool     `help:"Enable debug logging (all categories)"`
	LogFilter       []string `name:"log-filter" default:"startup,session,fork,trim,pebble" help:"Log category filter (comma-separated)"`
	LogFile         string   `name:"log-file" help:"Log output file path (logs to both stdout and file when set)"`
	GOGC            int      `name:"gogc" default:"100" help:"Go GC target percentage"`
	PprofPort       string   `name:"pprof-port" help:"Port for pprof debugging endpoint"`
	Profile         bool     `help:"Enable periodic CPU profiling"`
	ProfileInterval int      `name:"profile-interval" default:"60" help:"Profile logging interval in seconds"`
}

func (c *Config) Validate() error {
	var errs []error
	if _, _, err := net.SplitHostPort(c.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("endpoint: %w", err))
	}
	if c.Schema == "" || strings.IndexByte(c.Schema, 0) >= 0 {
		errs = append(errs, fmt.Errorf("schema: must be non-empty and contain no NUL bytes"))
	}
	if c.DBPath == "" {
		errs = append(errs, fmt.Errorf("db-path: required"))
	}
	if c.MaxMessageMB <= 0 {
		errs = append(errs, fmt.Errorf("max-message-mb: must be positive"))
	}
	if c.Stop != 0 && c.SkipTo >= c.Stop {
		errs = append(errs, fmt.Errorf("skip-to %d is not before stop %d", c.SkipTo, c.Stop))
	}
	return errors.Join(errs...)
}

func (c *Config) StoreConfig() StoreConfig {
	return StoreConfig{
		Schema:       c.Schema,
		SizeLimitMB:  c.DBSizeMB,
		CacheSizeMB:  c.CacheSizeMB,
		CompressRows: c.CompressRows,
	}
}

func (c *Config) SessionConfig() SessionConfig {
	return SessionConfig{
		Endpoint: c.Endpoint,
		Pipeline: PipelineConfig{
			Schema:       c.Schema,
			SkipTo:       c.SkipTo,
			StopBefore:   c.Stop,
			Trim:         c.Trim,
			ProgressRows: c.ProgressRows,
		},
	}
}
