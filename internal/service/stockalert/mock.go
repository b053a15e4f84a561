package stockalert

import (
	"sync"

	"github.com/the-white-platform/fashion-web-sub000/internal/domain"
)

// MockNotifier — записывающая заглушка StockNotifier для тестов.
type MockNotifier struct {
	mu     sync.Mutex
	alerts []domain.StockAlert
}

// NewMockNotifier возвращает mock, накапливающий полученные сигналы.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Notify сохраняет сигнал во внутренний срез.
func (m *MockNotifier) Notify(alert domain.StockAlert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
}

// Alerts возвращает копию всех полученных сигналов.
func (m *MockNotifier) Alerts() []domain.StockAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.StockAlert(nil), m.alerts...)
}

// ByKind возвращает сигналы заданного вида.
func (m *MockNotifier) ByKind(kind domain.StockAlertKind) []domain.StockAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []domain.StockAlert
	for _, alert := range m.alerts {
		if alert.Kind == kind {
			result = append(result, alert)
		}
	}
	return result
}

var _ domain.StockNotifier = (*MockNotifier)(nil)
