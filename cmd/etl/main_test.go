package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverrides(t *testing.T) {
	ov, err := parseOverrides("2024-01-01", "2024-01-05T04:00:00+09:00")
	require.NoError(t, err)
	require.NotNil(t, ov.Start)
	require.NotNil(t, ov.End)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *ov.Start)
	assert.Equal(t, time.Date(2024, 1, 4, 19, 0, 0, 0, time.UTC), *ov.End)

	ov, err = parseOverrides("", "")
	require.NoError(t, err)
	assert.Nil(t, ov.Start)
	assert.Nil(t, ov.End)

	testCases := []struct {
		name       string
		start, end string
	}{
		{name: "不正な形式", start: "01/02/2024"},
		{name: "開始が終了より後", start: "2024-02-01", end: "2024-01-01"},
		{name: "開始と終了が同じ", start: "2024-01-01", end: "2024-01-01"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseOverrides(tc.start, tc.end)
			assert.Error(t, err)
		})
	}
}
