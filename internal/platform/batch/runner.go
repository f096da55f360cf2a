// Package batch provides a bounded worker pool for recalculating many
// patients concurrently. Failures are isolated per job; one patient's bad
// data never aborts the run.
package batch

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adherence/adherence/internal/measure"
)

// Job identifies one patient/measure recalculation.
type Job struct {
	PatientID   uuid.UUID    `json:"patient_id"`
	MeasureType measure.Type `json:"measure_type"`
}

// Outcome is the result of one job.
type Outcome struct {
	Job Job
	Err error
}

// Summary aggregates a full run.
type Summary struct {
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Failures  []Outcome `json:"-"`
}

// JobFunc processes a single job.
type JobFunc func(ctx context.Context, j Job) error

// Runner fans jobs out over a fixed number of workers.
type Runner struct {
	workers int
	logger  zerolog.Logger
}

func NewRunner(workers int, logger zerolog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{workers: workers, logger: logger}
}

// Run processes all jobs and blocks until they finish or ctx is cancelled.
// Jobs remaining when ctx is cancelled are counted as failures.
func (r *Runner) Run(ctx context.Context, jobs []Job, fn JobFunc) Summary {
	summary := Summary{Total: len(jobs)}
	if len(jobs) == 0 {
		return summary
	}

	jobChan := make(chan Job)
	outChan := make(chan Outcome, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobChan {
				if err := ctx.Err(); err != nil {
					outChan <- Outcome{Job: j, Err: err}
					continue
				}
				outChan <- Outcome{Job: j, Err: fn(ctx, j)}
			}
		}()
	}

	go func() {
		defer close(jobChan)
		for _, j := range jobs {
			select {
			case jobChan <- j:
			case <-ctx.Done():
				outChan <- Outcome{Job: j, Err: ctx.Err()}
			}
		}
	}()

	wg.Wait()
	close(outChan)

	for out := range outChan {
		if out.Err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, out)
			r.logger.Error().Err(out.Err).
				Str("patient_id", out.Job.PatientID.String()).
				Str("measure", string(out.Job.MeasureType)).
				Msg("recalculation failed")
		} else {
			summary.Succeeded++
		}
	}

	r.logger.Info().
		Int("total", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Msg("batch run complete")

	return summary
}
