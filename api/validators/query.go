package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/craftconnect/marketplace-backend/pkg/errors"
)

var queryTimeLayouts = []string{time.RFC3339, time.DateOnly}

// optionalQuery parses key with parse and returns nil when it is absent.
func optionalQuery[T any](r *http.Request, key, want string, parse func(string) (T, bool)) (*T, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	value, ok := parse(raw)
	if !ok {
		return nil, queryError(key, "query parameter must be "+want, nil)
	}
	return &value, nil
}

func queryError(key, message string, extra map[string]any) *pkgerrors.Error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(details)
}

// ParseQueryInt returns defaultVal when key is absent and rejects values
// outside [min, max].
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	value, err := optionalQuery(r, key, "numeric", func(raw string) (int, bool) {
		n, err := strconv.Atoi(raw)
		return n, err == nil
	})
	if err != nil {
		return 0, err
	}
	if value == nil {
		return defaultVal, nil
	}
	if *value < min || *value > max {
		return 0, queryError(key, "query parameter out of range", map[string]any{"min": min, "max": max})
	}
	return *value, nil
}

func ParseQueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	return optionalQuery(r, key, "a uuid", func(raw string) (uuid.UUID, bool) {
		id, err := uuid.Parse(raw)
		return id, err == nil
	})
}

// ParseQueryTime accepts RFC3339 or YYYY-MM-DD (UTC midnight).
func ParseQueryTime(r *http.Request, key string) (*time.Time, error) {
	return optionalQuery(r, key, "RFC3339 or YYYY-MM-DD", func(raw string) (time.Time, bool) {
		for _, layout := range queryTimeLayouts {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return parsed.UTC(), true
			}
		}
		return time.Time{}, false
	})
}
