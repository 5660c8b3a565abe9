package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/phuslu/log"
)

// 组件状态
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// 组件名
const (
	ComponentDatabase = "database"
	ComponentAnalog   = "analog"
	ComponentJobs     = "jobs"
	ComponentProvider = "provider"
)

// HealthStatus 健康状态
type HealthStatus struct {
	Component   string    `json:"component"`
	Status      string    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
	Message     string    `json:"message,omitempty"`
}

// Monitor 组件健康登记表
type Monitor struct {
	components map[string]*HealthStatus
	mutex      sync.RWMutex
	alertFunc  func(component, status, message string)
}

// NewMonitor 创建新的监控系统，alertFunc 在组件变为非健康状态时调用，可为 nil
func NewMonitor(alertFunc func(component, status, message string)) *Monitor {
	return &Monitor{
		components: make(map[string]*HealthStatus),
		alertFunc:  alertFunc,
	}
}

// RegisterComponent 注册组件
func (m *Monitor) RegisterComponent(component string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.components[component]; exists {
		return
	}
	m.components[component] = &HealthStatus{
		Component:   component,
		Status:      StatusUnknown,
		LastChecked: time.Now(),
	}
}

// UpdateStatus 更新组件状态
func (m *Monitor) UpdateStatus(component, status, message string) {
	m.mutex.Lock()
	current, exists := m.components[component]
	if !exists {
		current = &HealthStatus{Component: component}
		m.components[component] = current
	}
	oldStatus := current.Status
	current.Status = status
	current.LastChecked = time.Now()
	current.Message = message
	m.mutex.Unlock()

	if oldStatus == status {
		return
	}
	if status != StatusHealthy {
		log.Warn().Str("component", component).Str("status", status).Str("message", message).Msg("组件状态变化")
		if m.alertFunc != nil {
			m.alertFunc(component, status, message)
		}
		return
	}
	log.Info().Str("component", component).Msg("组件恢复健康")
}

// GetStatus 获取组件状态的副本
func (m *Monitor) GetStatus(component string) *HealthStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if status, exists := m.components[component]; exists {
		copied := *status
		return &copied
	}
	return nil
}

// GetAllStatus 获取所有组件状态，按组件名排序
func (m *Monitor) GetAllStatus() []HealthStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	statuses := make([]HealthStatus, 0, len(m.components))
	for _, status := range m.components {
		statuses = append(statuses, *status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Component < statuses[j].Component })
	return statuses
}

// Overall 汇总状态：任一组件不健康则不健康，任一降级则降级
func (m *Monitor) Overall() string {
	overall := StatusHealthy
	for _, s := range m.GetAllStatus() {
		switch s.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// Check 执行一次检查函数并记录结果
func (m *Monitor) Check(ctx context.Context, component string, check func(context.Context) error) {
	if err := check(ctx); err != nil {
		m.UpdateStatus(component, StatusUnhealthy, err.Error())
		return
	}
	m.UpdateStatus(component, StatusHealthy, "")
}

// StartChecking 定期执行检查，直到 ctx 结束
func (m *Monitor) StartChecking(ctx context.Context, component string, interval time.Duration, check func(context.Context) error) {
	m.RegisterComponent(component)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		m.Check(ctx, component, check)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx, component, check)
			}
		}
	}()
}
