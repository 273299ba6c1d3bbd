// Package digest periodically runs the summary reports and writes their
// series to the log, giving operators a trend view without opening the UI.
package digest

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/reporting"
)

// DigestUser is the identity the job authorizes as.
const DigestUser = "digest"

// Kinds are the reports included in every digest.
var Kinds = []reporting.Kind{
	reporting.KindMonthlyVisits,
	reporting.KindServiceDistribution,
}

// Generator is the subset of the report engine the digest needs.
type Generator interface {
	Generate(ctx context.Context, req reporting.Request) (*reporting.Report, error)
	DefaultRange() reporting.Range
}

// ParseSchedule validates a standard five-field cron spec or a descriptor
// such as "@daily".
func ParseSchedule(spec string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse digest schedule %q: %w", spec, err)
	}
	return sched, nil
}

type Digest struct {
	engine Generator
	cron   *cron.Cron
	logger zerolog.Logger
}

func New(engine Generator, logger zerolog.Logger) *Digest {
	return &Digest{
		engine: engine,
		cron:   cron.New(),
		logger: logger.With().Str("component", "digest").Logger(),
	}
}

// Start schedules Run on spec and starts the cron loop.
func (d *Digest) Start(spec string) error {
	if _, err := ParseSchedule(spec); err != nil {
		return err
	}
	if _, err := d.cron.AddFunc(spec, func() {
		if err := d.Run(context.Background()); err != nil {
			d.logger.Error().Err(err).Msg("digest run failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule digest: %w", err)
	}
	d.cron.Start()
	d.logger.Info().Str("schedule", spec).Msg("digest scheduled")
	return nil
}

// Stop halts the schedule. The returned context is done once a running
// digest has finished.
func (d *Digest) Stop() context.Context {
	return d.cron.Stop()
}

// Run generates each digest report over the default range and logs one
// event per series point. A failing report does not stop the others.
func (d *Digest) Run(ctx context.Context) error {
	ctx = auth.WithUser(ctx, DigestUser, []string{auth.RoleAdmin})
	rng := d.engine.DefaultRange()

	var errs []error
	for _, kind := range Kinds {
		report, err := d.engine.Generate(ctx, reporting.Request{Kind: kind, Range: rng})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			continue
		}
		d.log(report)
	}
	return errors.Join(errs...)
}

func (d *Digest) log(report *reporting.Report) {
	for _, series := range report.Series {
		for _, p := range series.Points {
			d.logger.Info().
				Str("report", string(report.Kind)).
				Str("start", report.Start).
				Str("end", report.End).
				Str("series", series.Name).
				Str("label", p.Label).
				Float64("value", p.Value).
				Msg("digest")
		}
	}
}
