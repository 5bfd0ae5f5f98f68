package provision

import "github.com/wolfeidau/sandboxd/internal/platform"

// Per-workspace capacity units. Target limits grow linearly with the number
// of spaces in a tenancy and never shrink.
const (
	perSpaceServices = 10
	perSpaceRoutes   = 10
	perSpaceMemory   = 1024
)

// BaselineLimits are the limits a brand-new tenancy starts with: the
// one-workspace case. New tenancies are never created with zero capacity.
func BaselineLimits() platform.QuotaLimits {
	return platform.QuotaLimits{
		ServiceLimit: perSpaceServices,
		RouteLimit:   perSpaceRoutes,
		MemoryLimit:  perSpaceMemory,
	}
}

// NextLimits computes target quota limits from current limits and the space
// count. Each component is max(current, count*unit), so limits are monotonic
// non-decreasing and always cover the linear demand of the current spaces.
func NextLimits(current platform.QuotaLimits, spaceCount int) platform.QuotaLimits {
	return platform.QuotaLimits{
		ServiceLimit: max(current.ServiceLimit, spaceCount*perSpaceServices),
		RouteLimit:   max(current.RouteLimit, spaceCount*perSpaceRoutes),
		MemoryLimit:  max(current.MemoryLimit, spaceCount*perSpaceMemory),
	}
}
