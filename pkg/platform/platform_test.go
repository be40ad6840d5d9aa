package platform

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/NERVsystems/vectorscene/pkg/sceneurl"
)

func newTestRequester(t *testing.T) *HTTPRequester {
	t.Helper()
	return NewHTTPRequester(Config{
		UserAgent:    "vectorscene-test/1.0",
		DefaultRPS:   1000,
		DefaultBurst: 1000,
		RetryOptions: RetryOptions{
			MaxAttempts:  2,
			InitialDelay: 5 * time.Millisecond,
			MaxDelay:     20 * time.Millisecond,
			Multiplier:   2,
		},
	})
}

func TestStartRequestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	req := newTestRequester(t)
	defer req.Shutdown()

	u, err := sceneurl.Parse(srv.URL)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var got Response
	req.StartRequest(u, func(r Response) {
		got = r
		wg.Done()
	})
	wg.Wait()

	if got.Err != nil {
		t.Fatalf("unexpected error: %v", got.Err)
	}
	if string(got.Bytes) != "hello" {
		t.Errorf("body = %q, want %q", got.Bytes, "hello")
	}
}

func TestStartRequestErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	req := newTestRequester(t)
	defer req.Shutdown()

	u, _ := sceneurl.Parse(srv.URL)

	var wg sync.WaitGroup
	wg.Add(1)
	var got Response
	req.StartRequest(u, func(r Response) {
		got = r
		wg.Done()
	})
	wg.Wait()

	if got.Err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestCancelRequestDeliversErrorOrNothingMore(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.Write([]byte("too late"))
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	req := newTestRequester(t)
	defer req.Shutdown()

	u, _ := sceneurl.Parse(srv.URL)

	var wg sync.WaitGroup
	wg.Add(1)
	var got Response
	handle := req.StartRequest(u, func(r Response) {
		got = r
		wg.Done()
	})

	req.CancelRequest(handle)
	close(block)
	wg.Wait()

	// Cancellation is advisory: we only require it completed without a panic,
	// and that at most one callback fired (enforced by wg.Add(1)/Done once).
	_ = got
}

func TestSetContinuousRendering(t *testing.T) {
	req := newTestRequester(t)
	defer req.Shutdown()

	if req.ContinuousRendering() {
		t.Error("expected continuous rendering to default to false")
	}
	req.SetContinuousRendering(true)
	if !req.ContinuousRendering() {
		t.Error("expected continuous rendering to be true after SetContinuousRendering(true)")
	}
}

func TestRequestRenderInvokesCallback(t *testing.T) {
	called := false
	req := NewHTTPRequester(Config{
		OnRequestRender: func() { called = true },
	})
	defer req.Shutdown()

	req.RequestRender()
	if !called {
		t.Error("expected RequestRender to invoke the configured callback")
	}
}

func TestShutdownCancelsOutstanding(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	req := newTestRequester(t)
	u, _ := sceneurl.Parse(srv.URL)

	var wg sync.WaitGroup
	wg.Add(1)
	req.StartRequest(u, func(r Response) { wg.Done() })

	req.Shutdown()
	wg.Wait()
}
