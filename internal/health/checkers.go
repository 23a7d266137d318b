package health

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pinger is satisfied by the answer cache and the answer store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker reports a dependency healthy when Ping succeeds.
type PingChecker struct {
	name     string
	target   Pinger
	critical bool
	timeout  time.Duration
	logger   *zap.Logger
}

// NewRedisHealthChecker checks the parsed-answer cache. The cache is an
// optimisation, so a failure only degrades the service.
func NewRedisHealthChecker(target Pinger, logger *zap.Logger) *PingChecker {
	return &PingChecker{name: "redis", target: target, critical: false, timeout: 3 * time.Second, logger: logger}
}

// NewDatabaseHealthChecker checks the answer history store.
func NewDatabaseHealthChecker(target Pinger, logger *zap.Logger) *PingChecker {
	return &PingChecker{name: "database", target: target, critical: true, timeout: 5 * time.Second, logger: logger}
}

func (p *PingChecker) Name() string           { return p.name }
func (p *PingChecker) IsCritical() bool       { return p.critical }
func (p *PingChecker) Timeout() time.Duration { return p.timeout }

func (p *PingChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Component: p.name,
		Critical:  p.critical,
		Timestamp: start,
	}

	err := p.target.Ping(ctx)
	result.Duration = time.Since(start)
	if err != nil {
		if p.critical {
			result.Status = StatusUnhealthy
		} else {
			result.Status = StatusDegraded
		}
		result.Error = err.Error()
		result.Message = p.name + " ping failed"
		p.logger.Warn("Health check failed", zap.String("component", p.name), zap.Error(err))
		return result
	}

	result.Status = StatusHealthy
	result.Message = p.name + " is reachable"
	if result.Duration > time.Second {
		result.Status = StatusDegraded
		result.Message = p.name + " is slow"
	}
	return result
}

// CustomHealthChecker allows for custom health check logic
type CustomHealthChecker struct {
	name     string
	critical bool
	timeout  time.Duration
	checkFn  func(ctx context.Context) CheckResult
}

// NewCustomHealthChecker creates a custom health checker
func NewCustomHealthChecker(name string, critical bool, timeout time.Duration, checkFn func(ctx context.Context) CheckResult) *CustomHealthChecker {
	return &CustomHealthChecker{
		name:     name,
		critical: critical,
		timeout:  timeout,
		checkFn:  checkFn,
	}
}

func (c *CustomHealthChecker) Name() string           { return c.name }
func (c *CustomHealthChecker) IsCritical() bool       { return c.critical }
func (c *CustomHealthChecker) Timeout() time.Duration { return c.timeout }

func (c *CustomHealthChecker) Check(ctx context.Context) CheckResult {
	result := c.checkFn(ctx)
	result.Component = c.name
	result.Critical = c.critical
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}
	return result
}
