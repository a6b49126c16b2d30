package main

import (
	"testing"

	"github.com/DINO060/mediasink/pkg/logger"
	"github.com/stretchr/testify/assert"
)

func TestMinLevelForVerbosity(t *testing.T) {
	tests := []struct {
		name      string
		verbosity int
		expected  int
	}{
		{"0 is silent", 0, logger.FATAL.Level() + 1},
		{"1 keeps warnings", 1, logger.WARNING.Level()},
		{"default shows info", 3, logger.INFO.Level()},
		{"5 is most verbose", 5, logger.VERBOSE.Level()},
		{"clamped below", -2, logger.FATAL.Level() + 1},
		{"clamped above", 99, logger.VERBOSE.Level()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, minLevelForVerbosity(tt.verbosity))
		})
	}
}

func TestHigherVerbosityNeverRaisesThreshold(t *testing.T) {
	for v := 1; v <= 5; v++ {
		assert.LessOrEqual(t, minLevelForVerbosity(v), minLevelForVerbosity(v-1))
	}
}
