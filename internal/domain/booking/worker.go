package booking

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/slotbook/slotbook-api/internal/domain/schedule"
)

// Completer periodically completes confirmed bookings whose date has passed.
type Completer struct {
	service *Service
	loc     *time.Location
	cron    *cron.Cron
	now     func() time.Time
}

// NewCompleter creates a completer that evaluates "today" in loc
func NewCompleter(service *Service, loc *time.Location) *Completer {
	if loc == nil {
		loc = time.UTC
	}
	return &Completer{
		service: service,
		loc:     loc,
		cron:    cron.New(cron.WithLocation(loc)),
		now:     time.Now,
	}
}

// Start schedules the sweep with a standard 5-field cron expression.
func (c *Completer) Start(ctx context.Context, schedule string) error {
	if _, err := c.cron.AddFunc(schedule, func() { c.RunOnce(ctx) }); err != nil {
		return err
	}
	c.cron.Start()
	log.Info().Str("schedule", schedule).Msg("Booking completion job started")
	return nil
}

// Stop waits for a running sweep to finish or ctx to expire.
func (c *Completer) Stop(ctx context.Context) {
	done := c.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Warn().Msg("Booking completion job did not stop in time")
	}
}

// RunOnce performs a single sweep and returns the number of completed bookings
func (c *Completer) RunOnce(ctx context.Context) int {
	today := schedule.DateOf(c.now().In(c.loc))
	n, err := c.service.CompleteElapsed(ctx, today)
	if err != nil {
		log.Error().Err(err).Int("completed", n).Str("today", today.String()).Msg("Booking completion sweep finished with errors")
		return n
	}
	if n > 0 {
		log.Info().Int("completed", n).Str("today", today.String()).Msg("Booking completion sweep finished")
	}
	return n
}
