package scenarios

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/plasma/plasma-testlang/testlang"
)

// Factory returns the testing language a scenario runs on.
type Factory func(ctx context.Context) (*testlang.TestingLanguage, error)

type Metrics interface {
	RecordScenario(name string, passed bool, duration time.Duration)
}

type Result struct {
	Name     string
	Passed   bool
	Err      error
	Duration time.Duration
}

// Select resolves names to scenarios. No names selects all of them.
func Select(names []string) ([]Scenario, error) {
	if len(names) == 0 {
		return All(), nil
	}
	out := make([]Scenario, 0, len(names))
	for _, name := range names {
		s, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		out = append(out, s)
	}
	return out, nil
}

// Run executes each scenario on a testing language from newTL. A failing scenario does
// not stop the ones after it; a cancelled context does.
func Run(ctx context.Context, logger log.Logger, m Metrics, newTL Factory, list []Scenario) []Result {
	results := make([]Result, 0, len(list))
	for _, s := range list {
		if ctx.Err() != nil {
			results = append(results, Result{Name: s.Name, Err: ctx.Err()})
			continue
		}
		lgr := logger.New("scenario", s.Name)
		start := time.Now()
		err := runOne(ctx, newTL, s)
		res := Result{Name: s.Name, Passed: err == nil, Err: err, Duration: time.Since(start)}
		m.RecordScenario(s.Name, res.Passed, res.Duration)
		if err != nil {
			lgr.Error("Scenario failed", "err", err, "duration", res.Duration)
		} else {
			lgr.Info("Scenario passed", "duration", res.Duration)
		}
		results = append(results, res)
	}
	return results
}

// ErrPanicked wraps a panic raised inside a scenario.
var ErrPanicked = errors.New("scenario panicked")

func runOne(ctx context.Context, newTL Factory, s Scenario) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	tl, err := newTL(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up testing language: %w", err)
	}
	return s.Run(ctx, tl)
}

// Failed counts the results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}
