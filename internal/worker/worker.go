package worker

import (
	"context"
	"sort"
	"sync"

	"github.com/andresmejia3/framecheck/internal/types"
	"go.uber.org/zap"
)

// Job processes one video. Each call owns its own decoder.
type Job func(ctx context.Context, task types.VideoTask) (types.Inspection, error)

// Outcome is the result of one task, delivered in submission order.
type Outcome struct {
	Task       types.VideoTask
	Inspection types.Inspection
	Err        error
}

// Pool runs a fixed number of engines over a task channel.
type Pool struct {
	engines int
	job     Job
	logger  *zap.Logger
}

// NewPool returns a pool with at least one engine.
func NewPool(engines int, job Job, logger *zap.Logger) *Pool {
	if engines < 1 {
		engines = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{engines: engines, job: job, logger: logger}
}

// Run processes paths and calls deliver once per path, in the order given,
// from a single goroutine. Tasks not started before ctx is cancelled are
// delivered with ctx.Err(). Run returns once every outcome is delivered.
func (p *Pool) Run(ctx context.Context, paths []string, deliver func(Outcome)) {
	taskChan := make(chan types.VideoTask, p.engines)
	resultsChan := make(chan Outcome, p.engines*2)
	var wg sync.WaitGroup

	// Start Aggregator (Consumer)
	// Must run concurrently to prevent deadlock on resultsChan
	aggDone := make(chan struct{})
	go func() {
		reorder(resultsChan, deliver)
		close(aggDone)
	}()

	// Spawn the Engine Pool
	for i := 0; i < p.engines; i++ {
		wg.Add(1)
		go func(engineID int) {
			defer wg.Done()
			p.engine(ctx, engineID, taskChan, resultsChan)
		}(i)
	}

	for i, path := range paths {
		task := types.VideoTask{Index: i, Path: path}
		select {
		case <-ctx.Done():
			resultsChan <- Outcome{Task: task, Err: ctx.Err()}
			continue
		default:
		}
		select {
		case taskChan <- task:
		case <-ctx.Done():
			resultsChan <- Outcome{Task: task, Err: ctx.Err()}
		}
	}

	close(taskChan)
	wg.Wait()
	close(resultsChan)

	// Wait for aggregator to finish delivering
	<-aggDone
}

func (p *Pool) engine(ctx context.Context, id int, tasks <-chan types.VideoTask, results chan<- Outcome) {
	log := p.logger.With(zap.Int("engine", id))
	for task := range tasks {
		if err := ctx.Err(); err != nil {
			results <- Outcome{Task: task, Err: err}
			continue
		}

		log.Debug("task started", zap.Int("task", task.Index), zap.String("path", task.Path))
		in, err := p.job(ctx, task)
		if err != nil {
			log.Debug("task failed", zap.Int("task", task.Index), zap.Error(err))
		}
		results <- Outcome{Task: task, Inspection: in, Err: err}
	}
}

// reorder delivers outcomes strictly by task index; engine 2 may finish before engine 1.
func reorder(results <-chan Outcome, deliver func(Outcome)) {
	buffer := make(map[int]Outcome)
	next := 0

	for res := range results {
		buffer[res.Task.Index] = res
		for {
			out, ok := buffer[next]
			if !ok {
				break
			}
			delete(buffer, next)
			deliver(out)
			next++
		}
	}

	// Flush anything left behind a gap
	rest := make([]int, 0, len(buffer))
	for idx := range buffer {
		rest = append(rest, idx)
	}
	sort.Ints(rest)
	for _, idx := range rest {
		deliver(buffer[idx])
	}
}
