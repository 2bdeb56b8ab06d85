// Package config loads the two configuration surfaces the engine depends on:
// environment-variable driven process configuration (WorkerConfig,
// ServerConfig, DatabaseConfig) via internal/env, and the YAML probe fleet
// file (endpoints, connections, queries, limits) validated by this package
// and hot-swapped by internal/engine.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/watchkeeper/watchkeeper/internal/domain"
	"github.com/watchkeeper/watchkeeper/internal/schedule"
)

// EndpointSpec is the YAML shape of one HTTP probe target.
type EndpointSpec struct {
	Name          string            `yaml:"name"`
	URL           string            `yaml:"url"`
	Method        string            `yaml:"method"`
	TimeoutSec    int               `yaml:"timeout_seconds"`
	AcceptedCodes []int             `yaml:"accepted_codes"`
	Headers       map[string]string `yaml:"headers"`
	Tags          map[string]string `yaml:"tags"`
	Serialize     bool              `yaml:"serialize"`
}

// ConnectionSpec is the YAML shape of one SQL probe target.
type ConnectionSpec struct {
	Name                 string            `yaml:"name"`
	ConnString           string            `yaml:"conn_string"`
	Provider             string            `yaml:"provider"`
	Environment          string            `yaml:"environment"`
	ConnectTimeoutSec    int               `yaml:"connect_timeout_seconds"`
	CommandTimeoutSec    int               `yaml:"command_timeout_seconds"`
	Enabled              bool              `yaml:"enabled"`
	Tags                 map[string]string `yaml:"tags"`
	Serialize            bool              `yaml:"serialize"`
}

// QuerySpec is the YAML shape of one Query Definition, nested under the
// connection it belongs to.
type QuerySpec struct {
	Name              string   `yaml:"name"`
	SQL               string   `yaml:"sql"`
	ResultKind        string   `yaml:"result_kind"`
	ExpectedValue     *string  `yaml:"expected_value"`
	Comparison        string   `yaml:"comparison"`
	WarningThreshold  *float64 `yaml:"warning_threshold"`
	CriticalThreshold *float64 `yaml:"critical_threshold"`
	TimeoutSec        int      `yaml:"timeout_seconds"`
	Description       string   `yaml:"description"`
	Connection        string   `yaml:"connection"`
}

// Limits holds the §9 "recognized options" that are not per-target.
type Limits struct {
	DefaultTimeoutSeconds   int    `yaml:"default_timeout_seconds"`
	CronSchedule            string `yaml:"cron_schedule"`
	MaxConcurrentHTTP       int    `yaml:"max_concurrent_http"`
	MaxConcurrentDB         int    `yaml:"max_concurrent_db"`
	HeartbeatIntervalSec    int    `yaml:"heartbeat_interval_seconds"`
	ShutdownDeadlineSec     int    `yaml:"shutdown_deadline_seconds"`
	JobMaxRetries           int    `yaml:"job_max_retries"`
	JobRetryBaseBackoffMS   int    `yaml:"job_retry_base_backoff_ms"`
	JobRetryMaxBackoffMS    int    `yaml:"job_retry_max_backoff_ms"`
	DataRetentionDays       int    `yaml:"data_retention_days"`
	QueueMaxDepth           int    `yaml:"queue_max_depth"`
	DeadLetterSpillPath     string `yaml:"dead_letter_spill_path"`
}

// FleetSpec is the raw, unvalidated shape of the fleet configuration file.
type FleetSpec struct {
	Limits      Limits           `yaml:"limits"`
	Endpoints   []EndpointSpec   `yaml:"endpoints"`
	Connections []ConnectionSpec `yaml:"connections"`
	Queries     []QuerySpec      `yaml:"queries"`
}

// Fleet is the validated, immutable configuration snapshot published by the
// hot-reloader. It is never mutated after construction; a reload builds a
// new Fleet and swaps the pointer (§9 "Options/configuration objects").
type Fleet struct {
	DefaultTimeout       time.Duration
	CronSchedule         string
	MaxConcurrentHTTP    int
	MaxConcurrentDB      int
	HeartbeatInterval    time.Duration
	ShutdownDeadline     time.Duration
	JobMaxRetries        int
	JobRetryBaseBackoff  time.Duration
	JobRetryMaxBackoff   time.Duration
	DataRetentionDays    int
	QueueMaxDepth        int
	DeadLetterSpillPath  string

	Endpoints   map[string]*domain.Endpoint
	Connections map[string]*domain.Connection
	Queries     map[string]*domain.Query // keyed "connection/query"
}

// ValidationReport is the C11 output: validation never blocks on warnings,
// only on errors.
type ValidationReport struct {
	Errors   []string
	Warnings []string
}

// OK reports whether the report contains no errors.
func (r ValidationReport) OK() bool {
	return len(r.Errors) == 0
}

func (r *ValidationReport) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationReport) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func durationOrDefault(seconds, def int) time.Duration {
	if seconds <= 0 {
		return time.Duration(def) * time.Second
	}
	return time.Duration(seconds) * time.Second
}

// LoadFleet reads and parses a fleet configuration file. It does not
// validate; call Validate on the result before using it.
func LoadFleet(path string) (*FleetSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fleet config: %w", err)
	}

	var spec FleetSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parse fleet config: %w", err)
	}
	return &spec, nil
}

// Validate applies the §3 invariants plus the §4.11 cross-cutting rules
// (at least one enabled target, parseable cron expression, no duplicate
// names within a section) and, only if there are no errors, builds the
// immutable Fleet snapshot.
func Validate(spec *FleetSpec, jwtSigningKeyLen int) (*Fleet, ValidationReport) {
	var report ValidationReport

	defaultTimeout := durationOrDefault(spec.Limits.DefaultTimeoutSeconds, 10)

	fleet := &Fleet{
		DefaultTimeout:      defaultTimeout,
		CronSchedule:        spec.Limits.CronSchedule,
		MaxConcurrentHTTP:   spec.Limits.MaxConcurrentHTTP,
		MaxConcurrentDB:     spec.Limits.MaxConcurrentDB,
		HeartbeatInterval:   durationOrDefault(spec.Limits.HeartbeatIntervalSec, 30),
		ShutdownDeadline:    durationOrDefault(spec.Limits.ShutdownDeadlineSec, 30),
		JobMaxRetries:       spec.Limits.JobMaxRetries,
		JobRetryBaseBackoff: time.Duration(spec.Limits.JobRetryBaseBackoffMS) * time.Millisecond,
		JobRetryMaxBackoff:  time.Duration(spec.Limits.JobRetryMaxBackoffMS) * time.Millisecond,
		DataRetentionDays:   spec.Limits.DataRetentionDays,
		QueueMaxDepth:       spec.Limits.QueueMaxDepth,
		DeadLetterSpillPath: spec.Limits.DeadLetterSpillPath,
		Endpoints:           map[string]*domain.Endpoint{},
		Connections:         map[string]*domain.Connection{},
		Queries:             map[string]*domain.Query{},
	}

	if fleet.MaxConcurrentHTTP <= 0 {
		fleet.MaxConcurrentHTTP = 10
	}
	if fleet.MaxConcurrentDB <= 0 {
		fleet.MaxConcurrentDB = 10
	}
	if fleet.JobMaxRetries <= 0 {
		fleet.JobMaxRetries = 3
	}
	if fleet.JobRetryBaseBackoff <= 0 {
		fleet.JobRetryBaseBackoff = time.Second
	}
	if fleet.JobRetryMaxBackoff <= 0 {
		fleet.JobRetryMaxBackoff = 60 * time.Second
	}
	if fleet.QueueMaxDepth <= 0 {
		fleet.QueueMaxDepth = 100
	}

	if spec.Limits.CronSchedule == "" {
		report.addError("cron_schedule is required")
	} else if _, err := schedule.New(spec.Limits.CronSchedule); err != nil {
		report.addError("cron_schedule: %v", err)
	}

	seenEndpoint := map[string]bool{}
	for i := range spec.Endpoints {
		ep := spec.Endpoints[i]
		if seenEndpoint[ep.Name] {
			report.addError("duplicate endpoint name %q", ep.Name)
			continue
		}
		seenEndpoint[ep.Name] = true

		accepted := map[int]struct{}{}
		for _, c := range ep.AcceptedCodes {
			accepted[c] = struct{}{}
		}
		domainEp := &domain.Endpoint{
			Name:            ep.Name,
			URL:             ep.URL,
			Method:          ep.Method,
			Timeout:         durationOrDefault(ep.TimeoutSec, 0),
			AcceptedCodes:   accepted,
			Headers:         ep.Headers,
			Tags:            ep.Tags,
			SerializeProbes: ep.Serialize,
		}
		if ep.TimeoutSec == 0 {
			domainEp.Timeout = 0
		}
		if err := domainEp.Validate(defaultTimeout); err != nil {
			report.addError("%v", err)
			continue
		}
		fleet.Endpoints[domainEp.Name] = domainEp
	}

	seenConn := map[string]bool{}
	for i := range spec.Connections {
		cn := spec.Connections[i]
		if seenConn[cn.Name] {
			report.addError("duplicate connection name %q", cn.Name)
			continue
		}
		seenConn[cn.Name] = true

		domainConn := &domain.Connection{
			Name:            cn.Name,
			ConnString:      cn.ConnString,
			Provider:        domain.Provider(cn.Provider),
			Environment:     cn.Environment,
			ConnectTimeout:  durationOrDefault(cn.ConnectTimeoutSec, 0),
			CommandTimeout:  durationOrDefault(cn.CommandTimeoutSec, 0),
			Enabled:         cn.Enabled,
			Tags:            cn.Tags,
			SerializeProbes: cn.Serialize,
		}
		if cn.ConnectTimeoutSec == 0 {
			domainConn.ConnectTimeout = 0
		}
		if cn.CommandTimeoutSec == 0 {
			domainConn.CommandTimeout = 0
		}
		if err := domainConn.Validate(defaultTimeout); err != nil {
			report.addError("%v", err)
			continue
		}
		fleet.Connections[domainConn.Name] = domainConn
	}

	seenQuery := map[string]bool{}
	for i := range spec.Queries {
		q := spec.Queries[i]
		key := q.Connection + "/" + q.Name
		if seenQuery[key] {
			report.addError("duplicate query name %q on connection %q", q.Name, q.Connection)
			continue
		}
		seenQuery[key] = true

		conn, ok := fleet.Connections[q.Connection]
		if !ok {
			report.addError("query %q references unknown connection %q", q.Name, q.Connection)
			continue
		}

		domainQuery := &domain.Query{
			Name:              q.Name,
			SQL:               q.SQL,
			ResultKind:        domain.ResultKind(q.ResultKind),
			ExpectedValue:     q.ExpectedValue,
			Comparison:        domain.ComparisonOp(q.Comparison),
			WarningThreshold:  q.WarningThreshold,
			CriticalThreshold: q.CriticalThreshold,
			Timeout:           durationOrDefault(q.TimeoutSec, 0),
			Description:       q.Description,
		}
		if q.TimeoutSec == 0 {
			domainQuery.Timeout = 0
		}
		if err := domainQuery.Validate(defaultTimeout); err != nil {
			report.addError("%v", err)
			continue
		}
		fleet.Queries[key] = domainQuery
		conn.QueryNames = append(conn.QueryNames, domainQuery.Name)
	}

	enabledTarget := len(fleet.Endpoints) > 0
	for _, c := range fleet.Connections {
		if c.Enabled {
			enabledTarget = true
		}
	}
	if !enabledTarget {
		report.addError("at least one endpoint or one enabled connection must be configured")
	}

	if jwtSigningKeyLen > 0 && jwtSigningKeyLen < 32 {
		report.addError("jwt signing key must be at least 32 characters")
	}

	if fleet.DataRetentionDays == 0 {
		report.addWarning("data_retention_days not set; results accumulate without a janitor sweep")
	}

	if !report.OK() {
		return nil, report
	}
	return fleet, report
}
