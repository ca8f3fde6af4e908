package source

import (
	"database/sql"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// CoerceBool reads a conversion indicator. Anything cast.ToBoolE accepts
// keeps its meaning, "yes"/"y" are true, "no"/"n" are false and any other
// number is true when non-zero. NULL, NaN, empty and unparseable values are
// false.
//
// A plain truthiness cast would count NaN and every non-empty string as a
// conversion; missing indicators are read as "did not convert" instead.
func CoerceBool(v any) bool {
	v = normalize(v)
	if s, ok := v.(string); ok {
		s = strings.ToLower(s)
		switch s {
		case "yes", "y":
			return true
		case "no", "n":
			return false
		}
		if b, err := cast.ToBoolE(s); err == nil {
			return b
		}
	}
	f, err := cast.ToFloat64E(v)
	return err == nil && f != 0 && !math.IsNaN(f)
}

// normalize maps the many spellings of a missing value to nil and trims
// text values.
func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return normalize(string(x))
	case string:
		s := strings.TrimSpace(x)
		switch strings.ToLower(s) {
		case "", "nan", "null":
			return nil
		}
		return s
	case float64:
		if math.IsNaN(x) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(x)) {
			return nil
		}
	}
	return v
}

func coerceString(v any) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		s = fmt.Sprint(v)
	}
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

func coerceInt(v any) (sql.NullInt64, error) {
	switch x := normalize(v).(type) {
	case nil:
		return sql.NullInt64{}, nil
	case *big.Int:
		if !x.IsInt64() {
			return sql.NullInt64{}, fmt.Errorf("value %s overflows int64", x)
		}
		return sql.NullInt64{Int64: x.Int64(), Valid: true}, nil
	case uint64:
		if x > math.MaxInt64 {
			return sql.NullInt64{}, fmt.Errorf("value %d overflows int64", x)
		}
	case float64, float32, string:
		// Fractional and textual values round rather than truncate.
		f, err := cast.ToFloat64E(x)
		if err != nil {
			return sql.NullInt64{}, fmt.Errorf("parsing %v as integer: %w", x, err)
		}
		return sql.NullInt64{Int64: int64(math.Round(f)), Valid: true}, nil
	}

	n, err := cast.ToInt64E(v)
	if err != nil {
		f, ferr := cast.ToFloat64E(v)
		if ferr != nil {
			return sql.NullInt64{}, err
		}
		n = int64(math.Round(f))
	}
	return sql.NullInt64{Int64: n, Valid: true}, nil
}

func coerceFloat(v any) (sql.NullFloat64, error) {
	switch x := normalize(v).(type) {
	case nil:
		return sql.NullFloat64{}, nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(x).Float64()
		return sql.NullFloat64{Float64: f, Valid: true}, nil
	default:
		f, err := cast.ToFloat64E(x)
		if err != nil {
			return sql.NullFloat64{}, fmt.Errorf("parsing %v as number: %w", x, err)
		}
		return sql.NullFloat64{Float64: f, Valid: !math.IsNaN(f)}, nil
	}
}

// coerceTime reads a session date. Values without a zone are taken as UTC.
func coerceTime(v any) (time.Time, error) {
	x := normalize(v)
	if x == nil {
		return time.Time{}, fmt.Errorf("missing date")
	}
	t, err := cast.ToTimeInDefaultLocationE(x, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised date %v: %w", x, err)
	}
	return t.UTC(), nil
}
