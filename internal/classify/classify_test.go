package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchkeeper/watchkeeper/internal/domain"
)

func mustEndpoint(t *testing.T, codes ...int) *domain.Endpoint {
	t.Helper()
	accepted := map[int]struct{}{}
	for _, c := range codes {
		accepted[c] = struct{}{}
	}
	e := &domain.Endpoint{Name: "api", URL: "https://example.com", AcceptedCodes: accepted}
	require.NoError(t, e.Validate(0))
	return e
}

func TestHTTPHealthyOnExactAcceptedCode(t *testing.T) {
	e := mustEndpoint(t, 200)
	status, msg := HTTP(HTTPRaw{StatusCode: 200, ReasonPhrase: "OK"}, e)
	assert.Equal(t, domain.ResultStatusHealthy, status)
	assert.Equal(t, "HTTP 200 OK", msg)
}

func TestHTTPUnhealthyOnBoundaryCodes(t *testing.T) {
	e := mustEndpoint(t, 200)

	status, _ := HTTP(HTTPRaw{StatusCode: 199, ReasonPhrase: "x"}, e)
	assert.Equal(t, domain.ResultStatusCritical, status)

	status, _ = HTTP(HTTPRaw{StatusCode: 201, ReasonPhrase: "Created"}, e)
	assert.Equal(t, domain.ResultStatusCritical, status)
}

func TestHTTPErrorOutcomeIsAlwaysError(t *testing.T) {
	e := mustEndpoint(t, 200)
	status, msg := HTTP(HTTPRaw{Outcome: OutcomeError, ErrorMessage: "timeout after 5s"}, e)
	assert.Equal(t, domain.ResultStatusError, status)
	assert.Equal(t, "timeout after 5s", msg)
}

func scalar(v string) *string { return &v }
func f64(v float64) *float64  { return &v }

func TestSQLThresholds(t *testing.T) {
	tests := []struct {
		name   string
		actual string
		want   domain.ResultStatus
	}{
		{"below warning", "49.999", domain.ResultStatusHealthy},
		{"at warning", "50", domain.ResultStatusWarning},
		{"below critical", "99.999", domain.ResultStatusWarning},
		{"at critical", "100", domain.ResultStatusCritical},
	}

	query := &domain.Query{
		Name:              "q",
		SQL:               "SELECT x",
		ResultKind:        domain.ResultKindScalar,
		WarningThreshold:  f64(50),
		CriticalThreshold: f64(100),
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, raw := SQL(SQLRaw{ScalarValue: scalar(tt.actual)}, query)
			assert.Equal(t, tt.want, status)
			assert.Equal(t, tt.actual, raw)
		})
	}
}

func TestSQLExpectedValueEqNumericAndString(t *testing.T) {
	expected := "5"
	query := &domain.Query{Name: "q", SQL: "SELECT x", ResultKind: domain.ResultKindScalar, ExpectedValue: &expected, Comparison: domain.OpEq}

	status, _, _ := SQL(SQLRaw{ScalarValue: scalar("5")}, query)
	assert.Equal(t, domain.ResultStatusHealthy, status)

	status, _, _ = SQL(SQLRaw{ScalarValue: scalar("5.0")}, query)
	assert.Equal(t, domain.ResultStatusHealthy, status)

	status, _, _ = SQL(SQLRaw{ScalarValue: scalar("6")}, query)
	assert.Equal(t, domain.ResultStatusCritical, status)
}

func TestSQLNullScalar(t *testing.T) {
	query := &domain.Query{Name: "q", SQL: "SELECT x", ResultKind: domain.ResultKindScalar}
	status, _, _ := SQL(SQLRaw{ScalarValue: nil}, query)
	assert.Equal(t, domain.ResultStatusHealthy, status)

	expected := "5"
	query.ExpectedValue = &expected
	query.Comparison = domain.OpEq
	status, _, _ = SQL(SQLRaw{ScalarValue: nil}, query)
	assert.Equal(t, domain.ResultStatusCritical, status)
}

func TestSQLThresholdInversionIsDefensiveError(t *testing.T) {
	query := &domain.Query{
		Name:              "q",
		SQL:               "SELECT x",
		ResultKind:        domain.ResultKindScalar,
		WarningThreshold:  f64(100),
		CriticalThreshold: f64(50),
	}
	status, msg, _ := SQL(SQLRaw{ScalarValue: scalar("75")}, query)
	assert.Equal(t, domain.ResultStatusError, status)
	assert.Equal(t, "threshold_inversion", msg)
}

func TestSQLNonScalarHealthyOnSuccess(t *testing.T) {
	query := &domain.Query{Name: "q", SQL: "UPDATE t SET x=1", ResultKind: domain.ResultKindNonQuery}
	rows := int64(3)
	status, _, raw := SQL(SQLRaw{RowsAffected: &rows}, query)
	assert.Equal(t, domain.ResultStatusHealthy, status)
	assert.Equal(t, "3", raw)
}

func TestSQLErrorOutcomeIsAlwaysError(t *testing.T) {
	query := &domain.Query{Name: "q", SQL: "SELECT x", ResultKind: domain.ResultKindScalar}
	status, msg, _ := SQL(SQLRaw{Outcome: OutcomeError, ErrorMessage: "connection failed: refused"}, query)
	assert.Equal(t, domain.ResultStatusError, status)
	assert.Equal(t, "connection failed: refused", msg)
}
