package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/use-agent/newswalk/models"
)

// ParsePayload validates a work-item payload and builds the search request.
// A missing key yields *models.MissingFieldError; a date_range that is not
// numeric yields a plain error.
func ParsePayload(payload map[string]any) (models.SearchRequest, error) {
	phrase, err := stringField(payload, models.PayloadSearchPhrase)
	if err != nil {
		return models.SearchRequest{}, err
	}
	section, err := stringField(payload, models.PayloadSection)
	if err != nil {
		return models.SearchRequest{}, err
	}
	raw, ok := payload[models.PayloadDateRange]
	if !ok || raw == nil {
		return models.SearchRequest{}, &models.MissingFieldError{Key: models.PayloadDateRange}
	}
	months, err := toMonths(raw)
	if err != nil {
		return models.SearchRequest{}, err
	}
	return models.NewSearchRequest(phrase, section, months), nil
}

func stringField(payload map[string]any, key string) (string, error) {
	v, ok := payload[key]
	if !ok || v == nil {
		return "", &models.MissingFieldError{Key: key}
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

// toMonths coerces a numeric or numeric-string value to an integer,
// truncating any fractional part.
func toMonths(v any) (int, error) {
	var f float64
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", models.PayloadDateRange, n, err)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", models.PayloadDateRange, n, err)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("invalid %s: unsupported type %T", models.PayloadDateRange, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s: %v", models.PayloadDateRange, f)
	}
	return int(math.Trunc(f)), nil
}

// failureFor maps a processing error to the triple reported to the source.
func failureFor(err error) models.Failure {
	code := models.ErrCodeSystemException
	var missing *models.MissingFieldError
	if errors.As(err, &missing) {
		code = models.ErrCodeMissingField
	}
	return models.Failure{
		Category: models.FailureCategory,
		Code:     code,
		Message:  err.Error(),
	}
}
