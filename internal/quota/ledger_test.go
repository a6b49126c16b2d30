package quota_test

import (
	"testing"

	"github.com/DINO060/mediasink/internal/quota"
	"github.com/stretchr/testify/assert"
)

func TestMegabytesFromBytesRoundsUp(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected int64
	}{
		{0, 0},
		{1, 1},
		{1024 * 1024, 1},
		{1024*1024 + 1, 2},
		{5 * 1024 * 1024, 5},
		{10*1024*1024 - 1, 10},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, quota.MegabytesFromBytes(tt.bytes), "bytes=%d", tt.bytes)
	}
}

func TestTierPrivileges(t *testing.T) {
	assert.False(t, quota.TierFree.Privileged())
	assert.True(t, quota.TierPremium.Privileged())
}
