// Package fetch implements the bounded-concurrency, priority-ordered
// outbound request scheduler. A fixed pool of workers pulls tasks from a
// priority queue, validates response codes against a per-request allow-list
// and retries failures with a fixed delay.
package fetch

import (
	"container/heap"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/merchflow/harvester/internal/backoff"
)

// Priority orders queued requests. Lower values run first.
type Priority int

const (
	High Priority = iota
	Medium
	Low
)

// DefaultPriority is used by callers that have no ordering preference.
const DefaultPriority = Medium

// Request describes a single GET to perform.
type Request struct {
	URL string
	// AllowedCodes lists the response status codes treated as success.
	AllowedCodes []int
}

// Response is a completed request.
type Response struct {
	Body []byte
	Code int
}

// Future is the completion handle of a submitted request. It either
// completes with a response or fails with the terminal error; there is no
// cancellation of an accepted task.
type Future struct {
	done chan struct{}
	resp Response
	err  error
}

// Wait blocks until the request completes or ctx is done. Waiting callers
// may give up, but the task itself keeps running to completion.
func (f *Future) Wait(ctx context.Context) (Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

func (f *Future) complete(resp Response, err error) {
	f.resp = resp
	f.err = err
	close(f.done)
}

// Config tunes the scheduler.
type Config struct {
	// Workers is the global cap on concurrent in-flight requests.
	Workers int
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
	// Timeout bounds a single attempt. Zero means no timeout.
	Timeout time.Duration
}

// Scheduler is the priority-ordered fetch executor.
type Scheduler struct {
	client *resty.Client
	policy backoff.RetryPolicy

	mu     sync.Mutex
	cond   *sync.Cond
	queue  taskQueue
	seq    uint64
	closed bool
	wg     sync.WaitGroup
}

// New creates a scheduler and starts its worker pool. Redirects are never
// followed; callers must pass already-resolved URLs.
func New(cfg Config) *Scheduler {
	client := resty.New().
		SetRedirectPolicy(resty.NoRedirectPolicy())
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	s := &Scheduler{
		client: client,
		policy: backoff.NewConstantPolicy(cfg.RetryDelay, cfg.MaxRetries),
	}
	s.cond = sync.NewCond(&s.mu)

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

// Submit queues a request at the given priority and returns its future.
func (s *Scheduler) Submit(priority Priority, req Request) *Future {
	future := &Future{done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		future.complete(Response{}, fmt.Errorf("fetch scheduler is shut down"))
		return future
	}
	s.seq++
	heap.Push(&s.queue, &task{
		priority: priority,
		seq:      s.seq,
		req:      req,
		future:   future,
	})
	s.mu.Unlock()
	s.cond.Signal()

	return future
}

// Shutdown stops accepting submissions and waits for workers to drain the
// queue and exit.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
	s.wg.Wait()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for s.queue.Len() == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.queue.Len() == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		t := heap.Pop(&s.queue).(*task)
		s.mu.Unlock()

		t.future.complete(s.perform(t.req))
	}
}

// perform runs all attempts of one request. The terminal error carries the
// request URL and the last observed failure.
func (s *Scheduler) perform(req Request) (Response, error) {
	var resp Response
	err := backoff.Retry(context.Background(), func(_ context.Context) error {
		var attemptErr error
		resp, attemptErr = s.attempt(req)
		return attemptErr
	}, s.policy, nil)
	if err != nil {
		return Response{}, fmt.Errorf("unable to send GET request to %s: %w", req.URL, err)
	}
	return resp, nil
}

func (s *Scheduler) attempt(req Request) (Response, error) {
	resp, err := s.client.R().Get(req.URL)
	if err != nil {
		return Response{}, err
	}
	code := resp.StatusCode()
	if !allowed(code, req.AllowedCodes) {
		return Response{}, fmt.Errorf("invalid response code (%d)", code)
	}
	return Response{Body: resp.Body(), Code: code}, nil
}

func allowed(code int, allowedCodes []int) bool {
	if len(allowedCodes) == 0 {
		return code == http.StatusOK
	}
	for _, c := range allowedCodes {
		if c == code {
			return true
		}
	}
	return false
}

// task is a queued request. Priority wins; seq breaks ties by arrival.
type task struct {
	priority Priority
	seq      uint64
	req      Request
	future   *Future
}

type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x any) { *q = append(*q, x.(*task)) }

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}
