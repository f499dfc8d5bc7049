package risk

import (
	"context"
	"time"

	"riskgate/internal/services/monitor"
	"riskgate/internal/workers"
	"riskgate/pkg/logger"
)

// Sweeper is implemented by *monitor.Monitor
type Sweeper interface {
	Sweep(ctx context.Context, mode monitor.Mode) (monitor.Stats, error)
}

// SweepWorker runs one monitor mode on a fixed interval
type SweepWorker struct {
	*workers.BaseWorker
	monitor Sweeper
	mode    monitor.Mode
}

// NewGeneralSweepWorker checks stop-loss, hard floor and take-profit for every monitored user
func NewGeneralSweepWorker(m Sweeper, interval time.Duration, log *logger.Logger) *SweepWorker {
	return &SweepWorker{
		BaseWorker: workers.NewBaseWorker("general_risk_sweep", interval, true, log),
		monitor:    m,
		mode:       monitor.ModeGeneral,
	}
}

// NewStopLossSweepWorker is the fast pass that only checks stop-loss conditions
func NewStopLossSweepWorker(m Sweeper, interval time.Duration, log *logger.Logger) *SweepWorker {
	return &SweepWorker{
		BaseWorker: workers.NewBaseWorker("stop_loss_sweep", interval, true, log),
		monitor:    m,
		mode:       monitor.ModeFast,
	}
}

// Run executes one sweep
func (w *SweepWorker) Run(ctx context.Context) error {
	st, err := w.monitor.Sweep(ctx, w.mode)

	if st.StopLosses > 0 || st.TakeProfits > 0 || st.Failures > 0 {
		w.Log().Infow("Risk sweep finished",
			"users", st.Users,
			"positions", st.Positions,
			"stop_losses", st.StopLosses,
			"take_profits", st.TakeProfits,
			"removed", st.Removed,
			"failures", st.Failures,
		)
	}
	return err
}
