package database

import (
	"context"
	"time"
)

// PoolStats is the connection-pool slice of a health probe.
type PoolStats struct {
	Open     int   `json:"open"`
	InUse    int   `json:"in_use"`
	Idle     int   `json:"idle"`
	MaxOpen  int   `json:"max_open"`
	Waits    int64 `json:"waits"`
	WaitedMS int64 `json:"waited_ms"`
}

// HealthStatus is one probe result: reachability, round-trip latency,
// and pool pressure.
type HealthStatus struct {
	Status    string    `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	Pool      PoolStats `json:"pool"`
}

// Health pings the database and snapshots pool pressure. The returned
// status is populated even on failure, so handlers can serve the probe
// alongside the error.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	err := c.db.PingContext(ctx)
	hs := &HealthStatus{
		Status:    "healthy",
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		hs.Status = "unhealthy"
		return hs, err
	}

	s := c.db.Stats()
	hs.Pool = PoolStats{
		Open:     s.OpenConnections,
		InUse:    s.InUse,
		Idle:     s.Idle,
		MaxOpen:  s.MaxOpenConnections,
		Waits:    s.WaitCount,
		WaitedMS: s.WaitDuration.Milliseconds(),
	}
	return hs, nil
}
