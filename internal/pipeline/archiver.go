package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// Archiver moves fill and audit history older than the retention window
// out of Postgres and into blob storage.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	logger        *slog.Logger
}

func NewArchiver(blobArchiver domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run performs one archive pass: everything older than now minus the
// retention window goes to cold storage.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	fills, err := a.blobArchiver.ArchiveFills(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving fills before %v: %w", cutoff, err)
	}

	audit, err := a.blobArchiver.ArchiveAudit(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving audit entries before %v: %w", cutoff, err)
	}

	a.logger.Info("archive run complete",
		slog.Int64("fills_archived", fills),
		slog.Int64("audit_archived", audit),
	)
	return nil
}

// RunCron repeats Run on a 5-field cron schedule ("minute hour
// day-of-month month day-of-week") until ctx is cancelled. A failed run is
// logged and the schedule continues.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
		}
		a.logger.Info("archiver waiting for next cron trigger", slog.Time("next_run", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField is one parsed schedule field. A nil allowed set is a wildcard.
type cronField struct {
	allowed []int
}

func (f cronField) matches(v int) bool {
	if f.allowed == nil {
		return true
	}
	for _, a := range f.allowed {
		if a == v {
			return true
		}
	}
	return false
}

type cronSpec struct {
	minute, hour, dom, month, dow cronField
}

func (c cronSpec) matches(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dom.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dow.matches(int(t.Weekday()))
}

// parseCron accepts "*" and comma lists of integers per field; ranges and
// step syntax are not needed for archive schedules.
func parseCron(expr string) (cronSpec, error) {
	raw := strings.Fields(expr)
	if len(raw) != 5 {
		return cronSpec{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(raw))
	}

	fields := make([]cronField, 5)
	for i, field := range raw {
		if field == "*" {
			continue
		}
		for _, part := range strings.Split(field, ",") {
			v, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return cronSpec{}, fmt.Errorf("invalid cron field value %q: %w", part, err)
			}
			fields[i].allowed = append(fields[i].allowed, v)
		}
	}

	return cronSpec{
		minute: fields[0],
		hour:   fields[1],
		dom:    fields[2],
		month:  fields[3],
		dow:    fields[4],
	}, nil
}

// nextCronTime finds the first minute boundary after 'after' matching the
// expression. The scan is bounded at one year so an unsatisfiable spec
// (e.g. Feb 30) errors instead of spinning forever.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	spec, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if spec.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", cronExpr)
}
