package resilience

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// ErrAllFailed matches the [*ChainError] returned when no entry of a
// [FallbackGroup] accepted a call.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the circuit breaker created for every entry of a
// [FallbackGroup]. The breaker's Name is set to the entry name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// Attempt is one entry's failure within a [ChainError].
type Attempt struct {
	Name string
	Err  error
}

// ChainError lists why each entry of a [FallbackGroup] was passed over. It
// matches [ErrAllFailed] and every attempt's error with errors.Is.
type ChainError struct {
	Attempts []Attempt
}

func (e *ChainError) Error() string {
	var b strings.Builder
	b.WriteString(ErrAllFailed.Error())
	for i, a := range e.Attempts {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(a.Name)
		b.WriteString(": ")
		b.WriteString(a.Err.Error())
	}
	return b.String()
}

// Unwrap returns ErrAllFailed followed by the attempt errors.
func (e *ChainError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+1)
	errs = append(errs, ErrAllFailed)
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup orders interchangeable backends of one kind, primary first,
// each behind its own [CircuitBreaker]. Entries are added during setup;
// calls are safe for concurrent use afterwards.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group with primary as its first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry tried after those already registered. It must
// not be called concurrently with Execute.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Execute is [ExecuteWithResult] for calls without a result.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult walks the entries of fg in order and returns the result
// of the first call that succeeds. Entries whose breaker is open are skipped.
// A cancelled call ends the walk and its error is returned unchanged;
// otherwise, when every entry fails, the error is a [*ChainError].
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero     R
		attempts []Attempt
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var err error
			result, err = fn(entry.value)
			return err
		})
		switch {
		case err == nil:
			if i > 0 {
				slog.Info("served by fallback provider", "provider", entry.name, "position", i)
			}
			return result, nil
		case errors.Is(err, context.Canceled):
			return zero, err
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("skipping provider with open circuit", "provider", entry.name)
		default:
			slog.Warn("provider failed", "provider", entry.name, "err", err)
		}
		attempts = append(attempts, Attempt{Name: entry.name, Err: err})
	}
	return zero, &ChainError{Attempts: attempts}
}

// Healthy reports whether at least one entry's breaker would accept a call.
func (fg *FallbackGroup[T]) Healthy() bool {
	for i := range fg.entries {
		if fg.entries[i].breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Names returns the entry names in the order they are tried.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}
