package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adherence/adherence/internal/measure"
)

func makeJobs(n int) []Job {
	jobs := make([]Job, n)
	for i := range jobs {
		jobs[i] = Job{PatientID: uuid.New(), MeasureType: measure.MAC}
	}
	return jobs
}

func TestRun_AllSucceed(t *testing.T) {
	r := NewRunner(4, zerolog.Nop())
	var count int64

	s := r.Run(context.Background(), makeJobs(20), func(ctx context.Context, j Job) error {
		atomic.AddInt64(&count, 1)
		return nil
	})

	if s.Total != 20 || s.Succeeded != 20 || s.Failed != 0 {
		t.Errorf("summary = %+v", s)
	}
	if count != 20 {
		t.Errorf("fn called %d times", count)
	}
}

func TestRun_FailuresAreIsolated(t *testing.T) {
	r := NewRunner(2, zerolog.Nop())
	jobs := makeJobs(10)
	badPatient := jobs[3].PatientID

	s := r.Run(context.Background(), jobs, func(ctx context.Context, j Job) error {
		if j.PatientID == badPatient {
			return fmt.Errorf("corrupt fill history")
		}
		return nil
	})

	if s.Succeeded != 9 || s.Failed != 1 {
		t.Errorf("summary = %+v", s)
	}
	if len(s.Failures) != 1 || s.Failures[0].Job.PatientID != badPatient {
		t.Errorf("failures = %+v", s.Failures)
	}
}

func TestRun_EmptyJobs(t *testing.T) {
	r := NewRunner(4, zerolog.Nop())
	s := r.Run(context.Background(), nil, func(ctx context.Context, j Job) error { return nil })
	if s.Total != 0 || s.Succeeded != 0 || s.Failed != 0 {
		t.Errorf("summary = %+v", s)
	}
}

func TestRun_BoundedConcurrency(t *testing.T) {
	const workers = 3
	r := NewRunner(workers, zerolog.Nop())

	var mu sync.Mutex
	active, peak := 0, 0

	r.Run(context.Background(), makeJobs(30), func(ctx context.Context, j Job) error {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()

		mu.Lock()
		active--
		mu.Unlock()
		return nil
	})

	if peak > workers {
		t.Errorf("peak concurrency %d exceeds %d workers", peak, workers)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	r := NewRunner(2, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := r.Run(ctx, makeJobs(5), func(ctx context.Context, j Job) error { return nil })
	if s.Succeeded != 0 {
		t.Errorf("cancelled run should not succeed, summary = %+v", s)
	}
	if s.Failed == 0 {
		t.Error("expected failures from cancelled context")
	}
}

func TestNewRunner_MinimumWorkers(t *testing.T) {
	r := NewRunner(0, zerolog.Nop())
	s := r.Run(context.Background(), makeJobs(3), func(ctx context.Context, j Job) error { return nil })
	if s.Succeeded != 3 {
		t.Errorf("summary = %+v", s)
	}
}
