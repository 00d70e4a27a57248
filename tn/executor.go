package tn

// Executor runs independent expectation evaluations, possibly
// concurrently. Submissions are gathered in submission order by the
// callers, so an executor only needs to run tasks and deliver results.
type Executor interface {
	Submit(task func() (Expectation, error)) Future
}

// Future delivers the result of a submitted task. Result blocks until
// the task finishes.
type Future interface {
	Result() (Expectation, error)
}

type chanFuture chan result

type result struct {
	res Expectation
	err error
}

func (f chanFuture) Result() (Expectation, error) {
	r := <-f
	return r.res, r.err
}

// PoolExecutor runs tasks on up to Workers goroutines.
type PoolExecutor struct {
	sem chan struct{}
}

// NewPoolExecutor returns an executor with the given concurrency.
func NewPoolExecutor(workers int) *PoolExecutor {
	if workers < 1 {
		workers = 1
	}
	return &PoolExecutor{sem: make(chan struct{}, workers)}
}

// Submit schedules task and returns its future.
func (p *PoolExecutor) Submit(task func() (Expectation, error)) Future {
	f := make(chanFuture, 1)
	go func() {
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		res, err := task()
		f <- result{res: res, err: err}
	}()
	return f
}
