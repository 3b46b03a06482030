package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	cases := map[string]struct {
		in   string
		want time.Time
	}{
		"rfc3339":          {"2024-06-01T12:00:00Z", time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)},
		"rfc3339 offset":   {"2024-06-01T12:00:00+02:00", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)},
		"iso no zone":      {"2024-06-01T12:00:00", time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)},
		"iso microseconds": {"2024-06-01T12:00:00.123456", time.Date(2024, 6, 1, 12, 0, 0, 123456000, time.Local)},
		"space separated":  {"2024-06-01 12:00:00", time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)},
		"date only":        {"2024-06-01", time.Date(2024, 6, 1, 0, 0, 0, 0, time.Local)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := ParseTimestamp(tc.in)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "got %s", got)
		})
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestTimestamp_JSON(t *testing.T) {
	ts := NewTimestamp(time.Date(2025, 3, 3, 1, 2, 3, 0, time.UTC))
	raw, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2025-03-03T01:02:03Z"`, string(raw))

	var back Timestamp
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, ts.Equal(back.Time))

	var empty Timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &empty))
	assert.True(t, empty.IsZero())
	require.NoError(t, json.Unmarshal([]byte(`""`), &empty))
	assert.True(t, empty.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`12`), &empty))
}

func TestMigrate(t *testing.T) {
	m := &PostMetadata{Title: "T", Description: "D"}
	assert.True(t, m.Migrate())
	assert.Equal(t, MetadataSchemaVersion, m.SchemaVersion)
	assert.Equal(t, ContentHash("T", "D"), m.ContentHash)
	assert.False(t, m.Migrate())
}
