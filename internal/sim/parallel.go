package sim

import (
	"context"
	"sync"

	"github.com/san-kum/bounce/internal/config"
	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/synth"
)

// Ensemble runs the same scene headless under several sequencer seeds.
// Each run gets its own engine and world.
type Ensemble struct {
	cfg       *config.Config
	numRuns   int
	seedStart int64
	metrics   func() []dynamo.Metric

	// Workers bounds how many runs step at once. box2d keeps package-level
	// profiling counters that parallel worlds race on, so it defaults to 1.
	Workers int
}

// NewEnsemble prepares numRuns runs seeded from seedStart. metrics, when
// set, builds a fresh metric set per run.
func NewEnsemble(cfg *config.Config, numRuns int, seedStart int64, metrics func() []dynamo.Metric) *Ensemble {
	if numRuns < 1 {
		numRuns = 1
	}
	return &Ensemble{cfg: cfg, numRuns: numRuns, seedStart: seedStart, metrics: metrics}
}

func (e *Ensemble) Run(ctx context.Context, rc RunConfig) ([]*Result, error) {
	results := make([]*Result, e.numRuns)
	errs := make([]error, e.numRuns)

	sem := make(chan struct{}, max(e.Workers, 1))
	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			cfgCopy := *e.cfg
			cfgCopy.Sequencer.Seed = e.seedStart + int64(idx)

			var opts []Option
			if e.metrics != nil {
				opts = append(opts, WithMetrics(e.metrics()...))
			}
			eng := New(&cfgCopy, synth.Nop{}, opts...)
			defer eng.Dispose()

			if err := eng.LoadScene(cfgCopy.Scene); err != nil {
				errs[idx] = err
				return
			}
			results[idx], errs[idx] = eng.Run(ctx, rc)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
