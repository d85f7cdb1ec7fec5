package shutdown

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

func TestServeHTTPStopsOnCancel(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeHTTP(ctx, log, srv, time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeHTTP() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeHTTP() did not return after cancel")
	}
}

func TestServeHTTPReportsListenError(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := &http.Server{Addr: "256.0.0.1:bad", Handler: http.NotFoundHandler()}

	err := ServeHTTP(context.Background(), log, srv, time.Second)
	if err == nil {
		t.Fatal("ServeHTTP() error = nil, want listen error")
	}
}
