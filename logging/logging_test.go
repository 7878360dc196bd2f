package logging

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   any
		wantOK bool
	}{
		{in: "", wantOK: false},
		{in: "off", wantOK: false},
		{in: "debug", want: log.LevelDebug, wantOK: true},
		{in: " INFO ", want: log.LevelInfo, wantOK: true},
		{in: "warning", want: log.LevelWarn, wantOK: true},
		{in: "trace", want: log.LevelTrace, wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lvl, ok, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, lvl)
			}
		})
	}

	_, _, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("info", &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("Launching sandbox", "test", "TestExample")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "Launching sandbox")
	assert.Contains(t, buf.String(), "test=TestExample")

	buf.Reset()
	quiet, err := New("off", &buf)
	require.NoError(t, err)
	quiet.Error("dropped")
	assert.Zero(t, buf.Len())
}
