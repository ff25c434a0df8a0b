package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	testCases := map[string]struct {
		level       string
		development bool
		wantLevel   zapcore.Level
		wantErr     bool
	}{
		"production info":   {level: "info", wantLevel: zapcore.InfoLevel},
		"production error":  {level: "error", wantLevel: zapcore.ErrorLevel},
		"development debug": {level: "debug", development: true, wantLevel: zapcore.DebugLevel},
		"upper case":        {level: "WARN", wantLevel: zapcore.WarnLevel},
		"invalid level":     {level: "verbose", wantErr: true},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			logger, err := New(tc.level, tc.development)
			if tc.wantErr {
				assert.Error(err)
				return
			}
			assert.NoError(err)
			assert.True(logger.Core().Enabled(tc.wantLevel))
			assert.False(logger.Core().Enabled(tc.wantLevel - 1))
		})
	}
}
