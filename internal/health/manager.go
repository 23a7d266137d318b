package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered checkers on demand and aggregates their results.
type Manager struct {
	checkers map[string]Checker
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewManager creates a new health manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		checkers: make(map[string]Checker),
		logger:   logger,
	}
}

// RegisterChecker registers a health check
func (m *Manager) RegisterChecker(checker Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := checker.Name()
	if name == "" {
		return fmt.Errorf("checker name cannot be empty")
	}
	if _, exists := m.checkers[name]; exists {
		return fmt.Errorf("checker %s already registered", name)
	}
	m.checkers[name] = checker
	m.logger.Info("Health checker registered",
		zap.String("name", name),
		zap.Bool("critical", checker.IsCritical()))
	return nil
}

// CheckerNames returns registered checker names, sorted.
func (m *Manager) CheckerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetDetailedHealth runs every checker concurrently, each bounded by its own timeout.
func (m *Manager) GetDetailedHealth(ctx context.Context) DetailedHealth {
	start := time.Now()

	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var (
		wg  sync.WaitGroup
		rmu sync.Mutex
	)
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			r := m.runSingleCheck(ctx, c)
			rmu.Lock()
			results[c.Name()] = r
			rmu.Unlock()
		}(c)
	}
	wg.Wait()

	summary := HealthSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusHealthy:
			summary.Healthy++
		case StatusDegraded:
			summary.Degraded++
		default:
			summary.Unhealthy++
		}
		if r.Critical {
			summary.Critical++
		}
	}

	overall := calculateOverallStatus(results)
	overall.Duration = time.Since(start)
	return DetailedHealth{
		Overall:    overall,
		Components: results,
		Summary:    summary,
		Timestamp:  time.Now(),
	}
}

// GetOverallHealth returns the aggregated status only.
func (m *Manager) GetOverallHealth(ctx context.Context) OverallHealth {
	return m.GetDetailedHealth(ctx).Overall
}

// IsReady is false when any critical checker is unhealthy.
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.GetOverallHealth(ctx).Ready
}

// IsLive reports process liveness; the engine has no state that can wedge.
func (m *Manager) IsLive(ctx context.Context) bool {
	return true
}

func (m *Manager) runSingleCheck(ctx context.Context, checker Checker) CheckResult {
	timeout := checker.Timeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan CheckResult, 1)
	go func() { done <- checker.Check(cctx) }()

	select {
	case r := <-done:
		return r
	case <-cctx.Done():
		status := StatusDegraded
		if checker.IsCritical() {
			status = StatusUnhealthy
		}
		return CheckResult{
			Status:    status,
			Component: checker.Name(),
			Critical:  checker.IsCritical(),
			Error:     "health check timed out",
			Duration:  timeout,
			Timestamp: time.Now(),
		}
	}
}

func calculateOverallStatus(components map[string]CheckResult) OverallHealth {
	overall := OverallHealth{
		Status:    StatusHealthy,
		Message:   "all components healthy",
		Timestamp: time.Now(),
		Ready:     true,
		Live:      true,
	}
	for name, r := range components {
		switch {
		case r.Status == StatusHealthy:
		case r.Critical && r.Status != StatusDegraded:
			overall.Status = StatusUnhealthy
			overall.Ready = false
			overall.Message = fmt.Sprintf("critical component %s is %s", name, r.Status)
		default:
			if overall.Status == StatusHealthy {
				overall.Status = StatusDegraded
				overall.Message = fmt.Sprintf("component %s is %s", name, r.Status)
			}
			overall.Degraded = true
		}
	}
	return overall
}
