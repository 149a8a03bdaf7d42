// compile_all.go fans a construction batch of stage compiles out over a
// bounded worker pool. A pipeline compiles two stages per pass, and chains
// routinely run a dozen passes; compiling them in parallel keeps pipeline
// construction fast without touching the single-threaded frame path.
package compiler

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

// CompileJob describes one stage compile in a construction batch.
type CompileJob struct {
	// Path is the root WGSL source file.
	Path string

	// EntryPoint is the entry point to compile for.
	EntryPoint string

	// Profile is the resolved shader profile.
	Profile Profile

	// Tag prefixes any error from this job, e.g. "pass 2 fragment shader".
	Tag string
}

// CompileAll runs every job on a bounded worker pool and collects the blobs
// in job order. The first failing job's error is returned, prefixed with its
// tag. Workers are pooled for the batch and idle-exit afterward.
//
// Parameters:
//   - c: the compiler executing the jobs
//   - jobs: the batch to compile
//   - workers: the pool size; zero or negative selects one per spare CPU
//
// Returns:
//   - []*Blob: the compiled blobs in job order
//   - error: the first job error, tagged with the job that produced it
func CompileAll(c Compiler, jobs []CompileJob, workers int) ([]*Blob, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = max(runtime.NumCPU()-1, 1)
	}

	blobs := make([]*Blob, len(jobs))
	errs := make([]error, len(jobs))

	pool := worker.NewDynamicWorkerPool(workers, 256, 1*time.Second)

	// A WaitGroup provides the batch barrier since pool.Wait() blocks until
	// workers idle-exit, which would stall construction by the idle timeout.
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		idx, j := i, job
		pool.SubmitTask(worker.Task{
			ID: idx,
			Do: func() (any, error) {
				defer wg.Done()
				blobs[idx], errs[idx] = c.Compile(j.Path, j.EntryPoint, j.Profile)
				return nil, nil
			},
		})
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		if jobs[i].Tag != "" {
			return nil, fmt.Errorf("%s: %w", jobs[i].Tag, err)
		}
		return nil, err
	}

	return blobs, nil
}
