// Package classify implements the Result Classifier (C6): a pure function
// mapping a raw probe outcome plus its target/query configuration to a
// domain.ResultStatus and a human message. Nothing in this package touches
// I/O, a clock, or mutable state — every function is deterministic in its
// arguments, satisfying the §8 idempotence law (classify(raw, cfg) called
// twice with equal inputs returns equal outputs).
package classify

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/watchkeeper/watchkeeper/internal/domain"
)

// Outcome is the kind of raw result produced by an executor before
// classification, per §4.6 rule 1.
type Outcome string

const (
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error" // timeout / transport / execute / unexpected
)

// HTTPRaw is the raw outcome handed from the HTTP executor (C4) to the
// classifier, per §4.4.
type HTTPRaw struct {
	Outcome      Outcome
	ErrorMessage string
	StatusCode   int
	ReasonPhrase string
}

// HTTP implements §4.6 rules 1-2 for an HTTP probe.
func HTTP(raw HTTPRaw, endpoint *domain.Endpoint) (domain.ResultStatus, string) {
	if raw.Outcome == OutcomeError {
		return domain.ResultStatusError, raw.ErrorMessage
	}

	reason := raw.ReasonPhrase
	if reason == "" {
		reason = http.StatusText(raw.StatusCode)
	}
	message := fmt.Sprintf("HTTP %d %s", raw.StatusCode, reason)

	if endpoint.Accepts(raw.StatusCode) {
		return domain.ResultStatusHealthy, message
	}
	return domain.ResultStatusCritical, message
}

// SQLRaw is the raw outcome handed from the SQL executor (C5) to the
// classifier, per §4.5.
type SQLRaw struct {
	Outcome       Outcome
	ErrorMessage  string
	ScalarValue   *string // nil means a SQL NULL or n/a for non-scalar kinds
	RowsAffected  *int64
}

// SQL implements §4.6 rules 1, 3, 4, 5 for a SQL probe.
func SQL(raw SQLRaw, query *domain.Query) (domain.ResultStatus, string, string) {
	if raw.Outcome == OutcomeError {
		return domain.ResultStatusError, raw.ErrorMessage, ""
	}

	if query.ResultKind != domain.ResultKindScalar {
		return domain.ResultStatusHealthy, "query executed successfully", rawValueOf(raw)
	}

	rawValue := rawValueOf(raw)

	if query.WarningThreshold != nil && query.CriticalThreshold != nil && *query.CriticalThreshold < *query.WarningThreshold {
		return domain.ResultStatusError, "threshold_inversion", rawValue
	}

	// Rule 3: expected-value comparison.
	if query.ExpectedValue != nil {
		if raw.ScalarValue == nil {
			return domain.ResultStatusCritical, "Query result was NULL, expected " + *query.ExpectedValue, rawValue
		}
		ok, err := compare(*raw.ScalarValue, *query.ExpectedValue, query.Comparison)
		if err != nil {
			return domain.ResultStatusError, err.Error(), rawValue
		}
		if !ok {
			return domain.ResultStatusCritical, fmt.Sprintf("Query result outside expected range: %s", *raw.ScalarValue), rawValue
		}
		// Comparison passed; thresholds (rule 4) may still downgrade a
		// numeric value, but the spec treats rule 3 success as continuing
		// to rule 4 rather than an immediate Healthy.
	} else if raw.ScalarValue == nil {
		// Null scalar with no expected value configured: Healthy (rule "tie-break").
		return domain.ResultStatusHealthy, "query returned NULL", rawValue
	}

	// Rule 4: numeric thresholds.
	if query.WarningThreshold != nil || query.CriticalThreshold != nil {
		if raw.ScalarValue != nil {
			actual, err := strconv.ParseFloat(*raw.ScalarValue, 64)
			if err == nil {
				if query.CriticalThreshold != nil && actual >= *query.CriticalThreshold {
					return domain.ResultStatusCritical, fmt.Sprintf("value %s at or above critical threshold %.0f", *raw.ScalarValue, *query.CriticalThreshold), rawValue
				}
				if query.WarningThreshold != nil && actual >= *query.WarningThreshold {
					return domain.ResultStatusWarning, fmt.Sprintf("value %s at or above warning threshold %.0f", *raw.ScalarValue, *query.WarningThreshold), rawValue
				}
			}
			// Coercion failure: status was already decided by rule 3 (or
			// defaults to Healthy below) per §4.6 rule 4.
		}
	}

	return domain.ResultStatusHealthy, "query within expected bounds", rawValue
}

func rawValueOf(raw SQLRaw) string {
	switch {
	case raw.ScalarValue != nil:
		return *raw.ScalarValue
	case raw.RowsAffected != nil:
		return strconv.FormatInt(*raw.RowsAffected, 10)
	default:
		return ""
	}
}

// compare applies comparison to (actual, expected). Numeric coercion is
// attempted for gt/gte/lt/lte; eq/ne/contains fall back to string semantics
// when either side fails to parse as a number, per §8's boundary behavior.
func compare(actual, expected string, op domain.ComparisonOp) (bool, error) {
	switch op {
	case domain.OpEq:
		if equalNumeric(actual, expected) {
			return true, nil
		}
		return actual == expected, nil
	case domain.OpNe:
		if equalNumeric(actual, expected) {
			return false, nil
		}
		return actual != expected, nil
	case domain.OpContains:
		return strings.Contains(actual, expected), nil
	case domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte:
		a, errA := strconv.ParseFloat(actual, 64)
		b, errB := strconv.ParseFloat(expected, 64)
		if errA != nil || errB != nil {
			return false, fmt.Errorf("cannot apply %s to non-numeric values %q, %q", op, actual, expected)
		}
		switch op {
		case domain.OpGt:
			return a > b, nil
		case domain.OpGte:
			return a >= b, nil
		case domain.OpLt:
			return a < b, nil
		default:
			return a <= b, nil
		}
	default:
		return false, fmt.Errorf("unknown comparison operator %q", op)
	}
}

func equalNumeric(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	return errA == nil && errB == nil && fa == fb
}
