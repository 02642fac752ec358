// pkg/utils/utils_test.go
package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	expanded, err := ExpandPath("~/.stagehand/config.yml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".stagehand/config.yml"), expanded)

	expanded, err = ExpandPath("~")
	require.NoError(t, err)
	assert.Equal(t, home, expanded)

	expanded, err = ExpandPath("/etc/stagehand.yml")
	require.NoError(t, err)
	assert.Equal(t, "/etc/stagehand.yml", expanded)
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitCSV([]string{"a,b", "c"}))
	assert.Equal(t, []string{"a", "b"}, SplitCSV([]string{" a , b , "}))
	assert.Nil(t, SplitCSV([]string{"", ","}))
	assert.Nil(t, SplitCSV(nil))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains([]string{"dev", "rc"}, "rc"))
	assert.False(t, Contains([]string{"dev", "rc"}, "latest"))
	assert.False(t, Contains(nil, "dev"))
}

func TestParseTime(t *testing.T) {
	for _, value := range []string{
		"2026-08-30 12:00:00",
		"2026-08-30T12:00:00Z",
		"2026-08-30",
	} {
		parsed, err := ParseTime(value)
		require.NoError(t, err, value)
		assert.Equal(t, 2026, parsed.Year())
	}

	_, err := ParseTime("not a date")
	assert.Error(t, err)
}

func TestPrettyJSON(t *testing.T) {
	out := PrettyJSON(map[string]string{"tag": "dev"})
	assert.Contains(t, out, "\"tag\": \"dev\"")
}

func TestParseTimeRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	parsed, err := ParseTime(now.Format(time.RFC3339))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(now))
}
