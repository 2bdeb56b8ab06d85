package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// TargetKind distinguishes the two probe families the engine executes.
type TargetKind string

const (
	TargetKindHTTP TargetKind = "http"
	TargetKindSQL  TargetKind = "database"
)

// Endpoint is an HTTP probe target. Identity is Name, which must be unique
// among endpoints within one configuration snapshot.
type Endpoint struct {
	Name            string
	URL             string
	Method          string
	Timeout         time.Duration
	AcceptedCodes   map[int]struct{}
	Headers         map[string]string
	Tags            map[string]string
	SerializeProbes bool // loaded from config but not read by the engine; HTTP probes are never serialized per endpoint
}

// Validate enforces the §3 Endpoint Target invariants. defaultTimeout is the
// global fallback used when Timeout is zero.
func (e *Endpoint) Validate(defaultTimeout time.Duration) error {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return fmt.Errorf("%w: endpoint name", ErrNameRequired)
	}
	e.Name = name

	parsed, err := url.Parse(e.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("endpoint %q: URL scheme must be http or https", e.Name)
	}

	if e.Method == "" {
		e.Method = "GET"
	}

	if e.Timeout == 0 {
		e.Timeout = defaultTimeout
	}
	if e.Timeout < time.Second || e.Timeout > 300*time.Second {
		return fmt.Errorf("endpoint %q: timeout %s outside [1s, 300s]", e.Name, e.Timeout)
	}

	if len(e.AcceptedCodes) == 0 {
		e.AcceptedCodes = map[int]struct{}{200: {}}
	}
	for code := range e.AcceptedCodes {
		if code < 100 || code > 599 {
			return fmt.Errorf("endpoint %q: invalid HTTP status code %d", e.Name, code)
		}
	}

	return nil
}

// Accepts reports whether statusCode is among the endpoint's acceptable set.
func (e *Endpoint) Accepts(statusCode int) bool {
	_, ok := e.AcceptedCodes[statusCode]
	return ok
}

// Provider is a tag identifying the SQL driver family a Connection speaks.
type Provider string

const (
	ProviderPostgres Provider = "postgres"
	ProviderMySQL    Provider = "mysql"
	ProviderSQLite   Provider = "sqlite"
)

var knownProviders = map[Provider]struct{}{
	ProviderPostgres: {},
	ProviderMySQL:    {},
	ProviderSQLite:   {},
}

// Connection is a SQL probe target. Identity is Name, unique among connections.
type Connection struct {
	Name           string
	ConnString     string
	Provider       Provider
	Environment    string
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	Enabled        bool
	Tags           map[string]string
	QueryNames     []string
	SerializeProbes bool
}

// Validate enforces the §3 Connection Target invariants.
func (c *Connection) Validate(defaultTimeout time.Duration) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("%w: connection name", ErrNameRequired)
	}
	c.Name = name

	if strings.TrimSpace(c.ConnString) == "" {
		return fmt.Errorf("connection %q: connection string must not be empty", c.Name)
	}

	if _, ok := knownProviders[c.Provider]; !ok {
		return fmt.Errorf("connection %q: unknown provider %q", c.Name, c.Provider)
	}

	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultTimeout
	}
	if c.ConnectTimeout < time.Second || c.ConnectTimeout > 300*time.Second {
		return fmt.Errorf("connection %q: connect timeout %s outside [1s, 300s]", c.Name, c.ConnectTimeout)
	}

	if c.CommandTimeout == 0 {
		c.CommandTimeout = defaultTimeout
	}
	if c.CommandTimeout < time.Second || c.CommandTimeout > 300*time.Second {
		return fmt.Errorf("connection %q: command timeout %s outside [1s, 300s]", c.Name, c.CommandTimeout)
	}

	return nil
}

// ResultKind describes the shape of data a Query Definition produces.
type ResultKind string

const (
	ResultKindScalar   ResultKind = "scalar"
	ResultKindNonQuery ResultKind = "non_query"
	ResultKindTable    ResultKind = "table"
)

// ComparisonOp is the operator used to compare an actual scalar value against
// a query's expected value.
type ComparisonOp string

const (
	OpEq       ComparisonOp = "eq"
	OpNe       ComparisonOp = "ne"
	OpGt       ComparisonOp = "gt"
	OpGte      ComparisonOp = "gte"
	OpLt       ComparisonOp = "lt"
	OpLte      ComparisonOp = "lte"
	OpContains ComparisonOp = "contains"
)

// Query is a SQL probe definition, identity Name, unique among queries
// associated with a Connection.
type Query struct {
	Name              string
	SQL               string
	ResultKind        ResultKind
	ExpectedValue      *string
	Comparison         ComparisonOp
	WarningThreshold   *float64
	CriticalThreshold  *float64
	Timeout            time.Duration
	Description        string
}

// Validate enforces the §3 Query Definition invariants.
func (q *Query) Validate(defaultTimeout time.Duration) error {
	name := strings.TrimSpace(q.Name)
	if name == "" {
		return fmt.Errorf("%w: query name", ErrNameRequired)
	}
	q.Name = name

	if strings.TrimSpace(q.SQL) == "" {
		return fmt.Errorf("query %q: SQL text must not be empty", q.Name)
	}

	switch q.ResultKind {
	case ResultKindScalar, ResultKindNonQuery, ResultKindTable:
	case "":
		q.ResultKind = ResultKindNonQuery
	default:
		return fmt.Errorf("query %q: unknown result kind %q", q.Name, q.ResultKind)
	}

	if q.WarningThreshold != nil && q.CriticalThreshold != nil {
		if *q.CriticalThreshold <= *q.WarningThreshold {
			return fmt.Errorf("query %q: critical threshold must exceed warning threshold", q.Name)
		}
	}

	if (q.Comparison != "") != (q.ExpectedValue != nil) {
		return fmt.Errorf("query %q: comparison operator must be set iff expected value is set", q.Name)
	}

	if q.Timeout == 0 {
		q.Timeout = defaultTimeout
	}
	if q.Timeout < time.Second || q.Timeout > 300*time.Second {
		return fmt.Errorf("query %q: timeout %s outside [1s, 300s]", q.Name, q.Timeout)
	}

	return nil
}
