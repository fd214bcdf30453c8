package usecase

import "time"

// Metrics receives engine events. The prometheus implementation lives in
// internal/infra/metrics.
type Metrics interface {
	ProviderRequest(provider, result string)
	CycleFinished(duration time.Duration, err error)
	AlertsTriggered(n int)
	Delivery(ok bool)
}

type nopMetrics struct{}

func (nopMetrics) ProviderRequest(string, string)     {}
func (nopMetrics) CycleFinished(time.Duration, error) {}
func (nopMetrics) AlertsTriggered(int)                {}
func (nopMetrics) Delivery(bool)                      {}
