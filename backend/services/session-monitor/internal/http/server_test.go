package httpserver

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparx/backend/services/session-monitor/internal/http/handlers"
)

func TestServerServesUntilCancelled(t *testing.T) {
	srv := NewServer("127.0.0.1:0", http.HandlerFunc(handlers.Health), nil).WithShutdownTimeout(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not bind")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServerReportsBindFailure(t *testing.T) {
	first := NewServer("127.0.0.1:0", http.NotFoundHandler(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = first.Run(ctx) }()
	<-first.Ready()

	second := NewServer(first.Addr(), http.NotFoundHandler(), nil)
	assert.Error(t, second.Run(context.Background()))
}
