package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointValidate(t *testing.T) {
	e := &Endpoint{Name: " api ", URL: "https://example.com/health"}
	require.NoError(t, e.Validate(5*time.Second))
	assert.Equal(t, "api", e.Name)
	assert.Equal(t, "GET", e.Method)
	assert.Equal(t, 5*time.Second, e.Timeout)
	assert.True(t, e.Accepts(200))
	assert.False(t, e.Accepts(503))
}

func TestEndpointValidateRejectsBadScheme(t *testing.T) {
	e := &Endpoint{Name: "api", URL: "ftp://example.com"}
	assert.Error(t, e.Validate(5*time.Second))
}

func TestEndpointValidateRejectsOutOfRangeTimeout(t *testing.T) {
	e := &Endpoint{Name: "api", URL: "https://example.com", Timeout: 301 * time.Second}
	assert.Error(t, e.Validate(5*time.Second))
}

func TestConnectionValidate(t *testing.T) {
	c := &Connection{Name: "primary", ConnString: "postgres://localhost/db", Provider: ProviderPostgres}
	require.NoError(t, c.Validate(5*time.Second))
	assert.Equal(t, 5*time.Second, c.ConnectTimeout)
	assert.Equal(t, 5*time.Second, c.CommandTimeout)
}

func TestConnectionValidateRejectsUnknownProvider(t *testing.T) {
	c := &Connection{Name: "primary", ConnString: "dsn", Provider: "oracle"}
	assert.Error(t, c.Validate(5*time.Second))
}

func TestQueryValidateThresholds(t *testing.T) {
	warn, crit := 50.0, 40.0
	q := &Query{Name: "q", SQL: "SELECT 1", ResultKind: ResultKindScalar, WarningThreshold: &warn, CriticalThreshold: &crit}
	assert.Error(t, q.Validate(5*time.Second), "critical must exceed warning")
}

func TestQueryValidateComparisonRequiresExpected(t *testing.T) {
	q := &Query{Name: "q", SQL: "SELECT 1", ResultKind: ResultKindScalar, Comparison: OpEq}
	assert.Error(t, q.Validate(5*time.Second))
}

func TestQueryValidateOK(t *testing.T) {
	expected := "5"
	q := &Query{Name: "q", SQL: "SELECT 1", ResultKind: ResultKindScalar, ExpectedValue: &expected, Comparison: OpEq}
	require.NoError(t, q.Validate(5*time.Second))
}
