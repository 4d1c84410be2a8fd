// Package scheduler runs the periodic batch compliance sweep.
package scheduler

import (
	"context"
	"time"

	"custodia/internal/compliance"
	"custodia/pkg/config"
	"custodia/pkg/logger"
)

// Scheduler triggers the batch AML report on a fixed interval. Each run
// covers the trailing sweep window ending at the tick.
type Scheduler struct {
	compliance *compliance.Service
	interval   time.Duration
	window     time.Duration
	logger     logger.Logger
	stop       chan struct{}
}

func NewScheduler(cs *compliance.Service, cfg config.MonitoringConfig, log logger.Logger) *Scheduler {
	return &Scheduler{
		compliance: cs,
		interval:   cfg.SweepInterval,
		window:     cfg.SweepWindow,
		logger:     log,
		stop:       make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.runSweep()
			case <-s.stop:
				ticker.Stop()
				return
			}
		}
	}()
	s.logger.Info("compliance sweep scheduler started", map[string]interface{}{
		"interval": s.interval.String(),
		"window":   s.window.String(),
	})
}

func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) runSweep() {
	to := time.Now()
	from := to.Add(-s.window)

	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	report, err := s.compliance.GenerateReport(ctx, from, to)
	if err != nil {
		s.logger.Error("scheduled compliance sweep failed", map[string]interface{}{
			"from":  from,
			"to":    to,
			"error": err.Error(),
		})
		return
	}

	s.logger.Info("scheduled compliance sweep completed", map[string]interface{}{
		"from":        from,
		"to":          to,
		"suspicious":  report.Stats.SuspiciousCount,
		"sars":        len(report.SARs),
		"structuring": len(report.StructuringPatterns),
	})
}
