package chrono

import (
	"fmt"
	"polwatch-backend/internal/components/telemetry"

	"github.com/robfig/cron/v3"
)

// CronAPI is what anything that runs on a schedule should depend on.
type CronAPI interface {
	Cron(spec string, callback func()) error
}

var specParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSpec checks a standard 5 field cron spec (or a descriptor like
// `@hourly`) without scheduling anything.
func ValidateSpec(spec string) error {
	_, err := specParser.Parse(spec)
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

// StandardCron implements CronAPI with robfig/cron. A job that panics is
// reported and a job that is still running when it is due again is skipped.
type StandardCron struct {
	cron *cron.Cron
}

// NewStandardCron starts the scheduler immediately, it runs in the clock's location.
func NewStandardCron(tel telemetry.API, clock API) StandardCron {
	logger := cronLogger{tel: telemetry.NewScopedAPI("cron", tel)}
	cronner := cron.New(
		cron.WithParser(specParser),
		cron.WithLogger(logger),
		cron.WithLocation(clock.Location()),
		cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		),
	)
	cronner.Start()
	return StandardCron{cron: cronner}
}

func (s StandardCron) Cron(spec string, callback func()) error {
	_, err := s.cron.AddFunc(spec, callback)
	return err
}

// Stop prevents new jobs from being scheduled, the returned channel closes once
// running jobs finish.
func (s StandardCron) Stop() <-chan struct{} {
	return s.cron.Stop().Done()
}

// cronLogger adapts telemetry.API to cron.Logger.
type cronLogger struct {
	tel telemetry.API
}

func pairs(keysAndValues []any) []any {
	out := make([]any, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out = append(out, fmt.Sprintf("%v=%v", keysAndValues[i], keysAndValues[i+1]))
	}
	return out
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug(msg, pairs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportBroken("job", append([]any{fmt.Errorf("%s: %w", msg, err)}, pairs(keysAndValues)...)...)
}
