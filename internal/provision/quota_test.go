package provision

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/sandboxd/internal/platform"
)

func TestBaselineLimits(t *testing.T) {
	limits := BaselineLimits()
	require.Equal(t, 10, limits.ServiceLimit)
	require.Equal(t, 10, limits.RouteLimit)
	require.Equal(t, 1024, limits.MemoryLimit)
}

func TestNextLimits(t *testing.T) {
	tests := []struct {
		name       string
		current    platform.QuotaLimits
		spaceCount int
		expected   platform.QuotaLimits
	}{
		{
			name:       "grows linearly with space count",
			current:    platform.QuotaLimits{ServiceLimit: 10, RouteLimit: 10, MemoryLimit: 1024},
			spaceCount: 3,
			expected:   platform.QuotaLimits{ServiceLimit: 30, RouteLimit: 30, MemoryLimit: 3072},
		},
		{
			name:       "never shrinks below current",
			current:    platform.QuotaLimits{ServiceLimit: 100, RouteLimit: 100, MemoryLimit: 9000},
			spaceCount: 2,
			expected:   platform.QuotaLimits{ServiceLimit: 100, RouteLimit: 100, MemoryLimit: 9000},
		},
		{
			name:       "per-component max",
			current:    platform.QuotaLimits{ServiceLimit: 50, RouteLimit: 10, MemoryLimit: 1024},
			spaceCount: 2,
			expected:   platform.QuotaLimits{ServiceLimit: 50, RouteLimit: 20, MemoryLimit: 2048},
		},
		{
			name:       "single space equals baseline",
			current:    platform.QuotaLimits{},
			spaceCount: 1,
			expected:   platform.QuotaLimits{ServiceLimit: 10, RouteLimit: 10, MemoryLimit: 1024},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, NextLimits(tt.current, tt.spaceCount))
		})
	}
}

func TestNextLimits_Monotonic(t *testing.T) {
	// A non-decreasing sequence of space counts yields non-decreasing limits.
	limits := BaselineLimits()
	for _, count := range []int{1, 1, 2, 5, 5, 9, 20} {
		next := NextLimits(limits, count)
		require.GreaterOrEqual(t, next.ServiceLimit, limits.ServiceLimit)
		require.GreaterOrEqual(t, next.RouteLimit, limits.RouteLimit)
		require.GreaterOrEqual(t, next.MemoryLimit, limits.MemoryLimit)
		limits = next
	}
}
