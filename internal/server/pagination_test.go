package server

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sqlgateway/sqlgateway/internal/config"
)

func TestApplyRangeHeader(t *testing.T) {
	tests := []struct {
		name           string
		rangeUnit      string
		rangeHeader    string
		existingQuery  url.Values
		expectedLimit  string
		expectedOffset string
	}{
		{
			name:           "basic range",
			rangeHeader:    "0-9",
			expectedLimit:  "10",
			expectedOffset: "0",
		},
		{
			name:           "non-zero lower bound",
			rangeHeader:    "10-19",
			expectedLimit:  "10",
			expectedOffset: "10",
		},
		{
			name:          "wrong range unit is ignored",
			rangeUnit:     "bytes",
			rangeHeader:   "0-9",
			expectedLimit: "",
		},
		{
			name:          "empty header is ignored",
			rangeHeader:   "",
			expectedLimit: "",
		},
		{
			name:          "malformed header is ignored",
			rangeHeader:   "notarange",
			expectedLimit: "",
		},
		{
			name:          "upper below lower is ignored",
			rangeHeader:   "9-0",
			expectedLimit: "",
		},
		{
			name:          "explicit limit already set wins",
			rangeHeader:   "0-9",
			existingQuery: url.Values{"limit": []string{"5"}},
			expectedLimit: "5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.existingQuery
			if q == nil {
				q = url.Values{}
			}
			applyRangeHeader(q, tt.rangeUnit, tt.rangeHeader)
			assert.Equal(t, tt.expectedLimit, q.Get("limit"))
			if tt.expectedOffset != "" {
				assert.Equal(t, tt.expectedOffset, q.Get("offset"))
			}
		})
	}
}

func TestApplyDefaultPageSize(t *testing.T) {
	t.Run("sets default when limit absent", func(t *testing.T) {
		q := url.Values{}
		applyDefaultPageSize(q, config.APIConfig{DefaultPageSize: 50})
		assert.Equal(t, "50", q.Get("limit"))
	})

	t.Run("leaves explicit limit untouched", func(t *testing.T) {
		q := url.Values{"limit": []string{"5"}}
		applyDefaultPageSize(q, config.APIConfig{DefaultPageSize: 50})
		assert.Equal(t, "5", q.Get("limit"))
	})

	t.Run("no default configured leaves limit unset", func(t *testing.T) {
		q := url.Values{}
		applyDefaultPageSize(q, config.APIConfig{DefaultPageSize: -1})
		assert.Equal(t, "", q.Get("limit"))
	})
}

func TestMaxRowsFor(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.APIConfig
		expected *int
	}{
		{
			name:     "unlimited when both unset",
			cfg:      config.APIConfig{MaxPageSize: -1, DBMaxRows: 0},
			expected: nil,
		},
		{
			name:     "max page size applies",
			cfg:      config.APIConfig{MaxPageSize: 1000, DBMaxRows: 0},
			expected: intPtr(1000),
		},
		{
			name:     "db max rows tighter than max page size wins",
			cfg:      config.APIConfig{MaxPageSize: 1000, DBMaxRows: 100},
			expected: intPtr(100),
		},
		{
			name:     "db max rows looser than max page size is ignored",
			cfg:      config.APIConfig{MaxPageSize: 100, DBMaxRows: 1000},
			expected: intPtr(100),
		},
		{
			name:     "db max rows alone applies when page size unlimited",
			cfg:      config.APIConfig{MaxPageSize: -1, DBMaxRows: 50},
			expected: intPtr(50),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := maxRowsFor(tt.cfg)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			if assert.NotNil(t, got) {
				assert.Equal(t, *tt.expected, *got)
			}
		})
	}
}

func intPtr(n int) *int { return &n }
