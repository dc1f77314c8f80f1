package chrono

import (
	"context"
	"sync"
	"time"
)

// API is the interface that anything depending on the system clock, or on waiting
// for some amount of time, should use.
type API interface {
	// Now returns the current time in the configured location.
	Now() time.Time
	// Sleep blocks the calling goroutine for d or until ctx is done, whichever is first.
	Sleep(ctx context.Context, d time.Duration) error
	Location() *time.Location
}

// StandardImpl is the standard implementation of API using the standard library.
type StandardImpl struct {
	location *time.Location
}

// NewStandardImpl loads the given IANA location, an empty name means UTC.
func NewStandardImpl(locationName string) (StandardImpl, error) {
	if locationName == "" {
		return StandardImpl{location: time.UTC}, nil
	}
	location, err := time.LoadLocation(locationName)
	if err != nil {
		return StandardImpl{}, err
	}
	return StandardImpl{location: location}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// Fake is a manually driven clock, Sleep returns immediately after advancing
// the clock by the requested duration and remembering it.
type Fake struct {
	mutex  sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.sleeps = append(f.sleeps, d)
	if d > 0 {
		f.now = f.now.Add(d)
	}
	return nil
}

func (f *Fake) Location() *time.Location {
	return time.UTC
}

// Advance moves the clock forward without recording a sleep.
func (f *Fake) Advance(d time.Duration) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.now = f.now.Add(d)
}

// Sleeps returns every duration passed to Sleep, in call order.
func (f *Fake) Sleeps() []time.Duration {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}
