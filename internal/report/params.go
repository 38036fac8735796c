package report

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"jobflow/internal/daterange"
)

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", time.DateOnly}

// ResolveParameters converts string report parameters to typed values.
// Date terms such as "last-month" resolve against ref: keys ending in End
// or To take the range end, all others its start. Remaining values are
// parsed as dates, integers, decimals, booleans or UUIDs, falling back to
// the raw string.
func ResolveParameters(params map[string]string, ref time.Time, logger zerolog.Logger) map[string]any {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]any, len(params))
	for key, value := range params {
		v := resolveValue(key, value, ref)
		logger.Debug().Str("parameter", key).Str("raw", value).Interface("value", v).Msg("resolved report parameter")
		out[key] = v
	}
	return out
}

func resolveValue(key, value string, ref time.Time) any {
	r, err := daterange.Resolve(value, ref)
	if err == nil {
		if takesRangeEnd(key) {
			return r.End
		}
		return r.Start
	}
	if !errors.Is(err, daterange.ErrUnknownTerm) {
		return value
	}

	s := strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, ref.Location()); err == nil {
			return t
		}
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if strings.EqualFold(s, "true") || strings.EqualFold(s, "false") {
		return strings.EqualFold(s, "true")
	}
	if id, err := uuid.Parse(s); err == nil {
		return id
	}
	return value
}

func takesRangeEnd(key string) bool {
	k := strings.ToLower(key)
	return strings.HasSuffix(k, "end") || strings.HasSuffix(k, "to")
}
