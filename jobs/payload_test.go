package jobs

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/newswalk/models"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    models.SearchRequest
	}{
		{
			name:    "float date range",
			payload: map[string]any{"search_phrase": "oil", "section": "Business", "date_range": 2.9},
			want:    models.SearchRequest{Phrase: "oil", Section: models.SectionBusiness, LookbackMonths: 2},
		},
		{
			name:    "int date range",
			payload: map[string]any{"search_phrase": "oil", "section": "world", "date_range": 3},
			want:    models.SearchRequest{Phrase: "oil", Section: models.SectionWorld, LookbackMonths: 3},
		},
		{
			name:    "string date range",
			payload: map[string]any{"search_phrase": "oil", "section": "all", "date_range": " 6.0 "},
			want:    models.SearchRequest{Phrase: "oil", Section: models.SectionAll, LookbackMonths: 6},
		},
		{
			name:    "json number",
			payload: map[string]any{"search_phrase": "oil", "section": "all", "date_range": json.Number("12")},
			want:    models.SearchRequest{Phrase: "oil", Section: models.SectionAll, LookbackMonths: 12},
		},
		{
			name:    "zero clamps to one",
			payload: map[string]any{"search_phrase": "oil", "section": "finance", "date_range": 0},
			want:    models.SearchRequest{Phrase: "oil", Section: models.SectionAll, LookbackMonths: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePayload(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePayload_MissingKeys(t *testing.T) {
	full := map[string]any{"search_phrase": "oil", "section": "all", "date_range": 1}
	for _, key := range []string{"search_phrase", "section", "date_range"} {
		t.Run(key, func(t *testing.T) {
			payload := map[string]any{}
			for k, v := range full {
				if k != key {
					payload[k] = v
				}
			}
			_, err := ParsePayload(payload)

			var missing *models.MissingFieldError
			require.True(t, errors.As(err, &missing))
			assert.Equal(t, key, missing.Key)

			f := failureFor(err)
			assert.Equal(t, models.FailureCategory, f.Category)
			assert.Equal(t, models.ErrCodeMissingField, f.Code)
			assert.Equal(t, "missing payload key: "+key, f.Message)
		})
	}
}

func TestParsePayload_BadDateRange(t *testing.T) {
	for _, v := range []any{"soon", []int{1}, map[string]any{}} {
		_, err := ParsePayload(map[string]any{"search_phrase": "oil", "section": "all", "date_range": v})
		require.Error(t, err)
		assert.Equal(t, models.ErrCodeSystemException, failureFor(err).Code)
	}
}
