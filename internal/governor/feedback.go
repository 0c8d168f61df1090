package governor

import "riptide/internal/circuitbreaker"

// ServiceFeedback composes rate/budget admission with the circuit
// breakers, so a dependency that is failing repeatedly trips its own
// breaker independent of any one tenant's rate limit: record_success and
// record_failure per service feed a shared circuit for coarse fairness.
type ServiceFeedback struct {
	breakers *circuitbreaker.Registry
}

// NewServiceFeedback builds a ServiceFeedback over an existing breaker
// registry.
func NewServiceFeedback(breakers *circuitbreaker.Registry) *ServiceFeedback {
	return &ServiceFeedback{breakers: breakers}
}

// RecordSuccess admits one more successful call through service's breaker.
func (f *ServiceFeedback) RecordSuccess(service string) {
	f.report(service, true)
}

// RecordFailure admits one more failed call through service's breaker.
func (f *ServiceFeedback) RecordFailure(service string) {
	f.report(service, false)
}

func (f *ServiceFeedback) report(service string, success bool) {
	if f.breakers == nil {
		return
	}
	b := f.breakers.Get(service)
	permit, err := b.TryAcquire()
	if err != nil {
		// Circuit already open; nothing to release.
		return
	}
	permit.Release(success)
}
