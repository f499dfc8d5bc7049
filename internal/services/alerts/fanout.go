package alerts

import (
	"context"

	"riskgate/internal/domain/alert"
	"riskgate/internal/metrics"
	"riskgate/pkg/errors"
)

// Route sends alerts at or above MinSeverity to a sink
type Route struct {
	Name        string
	Sink        alert.Sink
	MinSeverity alert.Severity
}

// FanOut delivers an alert to every route whose threshold it meets.
// One failing sink does not stop the others.
type FanOut struct {
	routes []Route
}

// NewFanOut creates a fan-out sink
func NewFanOut(routes ...Route) *FanOut {
	return &FanOut{routes: routes}
}

// Deliver implements alert.Sink
func (f *FanOut) Deliver(ctx context.Context, a alert.RiskAlert) error {
	var errs errors.MultiError
	for _, r := range f.routes {
		if a.Severity.Rank() < r.MinSeverity.Rank() {
			continue
		}
		if err := r.Sink.Deliver(ctx, a); err != nil {
			metrics.AlertDeliveryFailures.WithLabelValues(r.Name).Inc()
			errs.Add(errors.Wrapf(err, "sink %s", r.Name))
		}
	}
	return errs.ToError()
}
