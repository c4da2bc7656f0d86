package classifier

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/llm-mail-pipeline/internal/core"
)

func TestParseModelResponse(t *testing.T) {
	cases := []struct {
		raw  string
		cat  core.Category
		conf float64
	}{
		{"interested:0.82", core.CategoryInterested, 0.82},
		{"Category: NOT_INTERESTED = 0.7", core.CategoryNotInterested, 0.7},
		{"meeting booked: 85%", core.CategoryMeetingBooked, 0.85},
		{"out_of_office:95", core.CategoryOutOfOffice, 0.95},
		{"spam:.5\nbecause it is", core.CategorySpam, 0.5},
		{"interested:1.5", core.CategoryInterested, 1},
		{"interested:1", core.CategoryInterested, 1},
		{"interested:85", core.CategoryInterested, 0.85},
		{"interested:2", core.CategoryInterested, 0.02},
	}
	for _, tc := range cases {
		cat, conf, err := ParseModelResponse(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.cat, cat, tc.raw)
		assert.InDelta(t, tc.conf, conf, 1e-9, tc.raw)
	}
}

func TestParseModelResponseRejects(t *testing.T) {
	for _, raw := range []string{"", "no idea", "interested", "spam:250", "unknown:0.4"} {
		_, _, err := ParseModelResponse(raw)
		assert.True(t, errors.Is(err, core.ErrInvalidModelResponse), raw)
	}
}
