// Package numeric converts the floating-point numbers embedded in agent
// outputs into the fixed-decimal representation the record store's
// schemaless documents actually persist (spec §4.3 "Floats and the record
// store", §7.3 "Type encoding"). The conversion is lossless for values with
// at most 6 significant digits, matching the spec's Testable Properties.
//
// pgtype.Numeric is the pgx ecosystem's own decimal type and already ships
// with the configstore Postgres adapter's dependency (pgx/v5); reusing it
// here means the record store persists a decimal string rather than a raw
// float and never risks the "float rejected" failures the spec calls out.
package numeric

import (
	"fmt"
	"math"

	"github.com/jackc/pgx/v5/pgtype"
)

// MaterializeFloats walks v (as produced by encoding/json unmarshalling into
// map[string]any/[]any) and replaces every float64 with its fixed-decimal
// string representation, rounded to 6 significant digits. Non-float values
// are returned unchanged; maps and slices are walked recursively.
func MaterializeFloats(v any) (any, error) {
	switch t := v.(type) {
	case float64:
		return ToDecimalString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			m, err := MaterializeFloats(vv)
			if err != nil {
				return nil, fmt.Errorf("numeric: key %q: %w", k, err)
			}
			out[k] = m
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			m, err := MaterializeFloats(vv)
			if err != nil {
				return nil, fmt.Errorf("numeric: index %d: %w", i, err)
			}
			out[i] = m
		}
		return out, nil
	default:
		return v, nil
	}
}

// ToDecimalString converts f to the store's fixed-decimal string form via
// pgtype.Numeric, rounding to 6 significant digits. It returns an error for
// NaN/Inf, which have no decimal representation.
func ToDecimalString(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("numeric: cannot encode non-finite float %v", f)
	}

	rounded := roundToSignificantDigits(f, 6)

	var n pgtype.Numeric
	if err := n.Scan(fmt.Sprintf("%g", rounded)); err != nil {
		return "", fmt.Errorf("numeric: scan decimal: %w", err)
	}
	s, err := n.Value()
	if err != nil {
		return "", fmt.Errorf("numeric: decimal value: %w", err)
	}
	return fmt.Sprint(s), nil
}

// FromDecimalString parses a value previously produced by ToDecimalString
// back into a float64.
func FromDecimalString(s string) (float64, error) {
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return 0, fmt.Errorf("numeric: scan %q: %w", s, err)
	}
	f, err := n.Float64Value()
	if err != nil {
		return 0, fmt.Errorf("numeric: decimal to float: %w", err)
	}
	return f.Float64, nil
}

// roundToSignificantDigits rounds f to n significant decimal digits.
func roundToSignificantDigits(f float64, n int) float64 {
	if f == 0 {
		return 0
	}
	abs := math.Abs(f)
	magnitude := math.Floor(math.Log10(abs))
	scale := math.Pow(10, float64(n-1)-magnitude)
	return math.Round(f*scale) / scale
}
