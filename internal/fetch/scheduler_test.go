package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	s := New(Config{Workers: 2})
	defer s.Shutdown()

	resp, err := s.Submit(DefaultPriority, Request{URL: srv.URL}).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []byte("hello"), resp.Body)
}

func TestPriorityOrdering(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var order []string
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "block" {
			<-release
		} else {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// One worker: the blocker occupies it while the rest queue up, so the
	// dequeue order is purely priority then arrival.
	s := New(Config{Workers: 1})
	defer s.Shutdown()

	blocker := s.Submit(High, Request{URL: srv.URL + "?name=block"})

	futures := []*Future{
		s.Submit(Low, Request{URL: srv.URL + "?name=low"}),
		s.Submit(Medium, Request{URL: srv.URL + "?name=medium1"}),
		s.Submit(High, Request{URL: srv.URL + "?name=high"}),
		s.Submit(Medium, Request{URL: srv.URL + "?name=medium2"}),
	}
	close(release)

	ctx := context.Background()
	_, err := blocker.Wait(ctx)
	require.NoError(t, err)
	for _, f := range futures {
		_, err := f.Wait(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"high", "medium1", "medium2", "low"}, order)
}

func TestRetryCountAndErrorAnnotation(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(Config{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond})
	defer s.Shutdown()

	_, err := s.Submit(DefaultPriority, Request{URL: srv.URL}).Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to send GET request to "+srv.URL)
	assert.Contains(t, err.Error(), "invalid response code (500)")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetryRecovers(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(Config{Workers: 1, MaxRetries: 5, RetryDelay: time.Millisecond})
	defer s.Shutdown()

	resp, err := s.Submit(DefaultPriority, Request{URL: srv.URL}).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAllowedCodes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := New(Config{Workers: 1, MaxRetries: 1, RetryDelay: time.Millisecond})
	defer s.Shutdown()

	// 404 rejected by the default allow-list.
	_, err := s.Submit(DefaultPriority, Request{URL: srv.URL}).Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid response code (404)")

	// 404 accepted when explicitly allowed.
	resp, err := s.Submit(DefaultPriority, Request{
		URL:          srv.URL,
		AllowedCodes: []int{http.StatusOK, http.StatusNotFound},
	}).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSubmitAfterShutdown(t *testing.T) {
	t.Parallel()

	s := New(Config{Workers: 1})
	s.Shutdown()

	_, err := s.Submit(DefaultPriority, Request{URL: "http://localhost"}).Wait(context.Background())
	assert.Error(t, err)
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	s := New(Config{Workers: 1})
	defer s.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Submit(DefaultPriority, Request{URL: srv.URL}).Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
