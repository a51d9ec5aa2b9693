package observability

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/crescent/pkg/telemetry"
)

func TestTracerProviderWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewTracerProvider("crescent-test", "0.0.0", &buf, false)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "find_single")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name":"find_single"`)
	assert.Contains(t, buf.String(), "crescent-test")

	var nilProvider *TracerProvider
	assert.NoError(t, nilProvider.Shutdown(context.Background()))
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServerMetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "crescent_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	srv := httptest.NewServer(NewServer(ServerConfig{Gatherer: reg, MetricsPath: "/m"}).Handler())
	defer srv.Close()

	code, body := get(t, srv.URL+"/m")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "crescent_test_total 3")

	code, body = get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	code, _ = get(t, srv.URL+"/events")
	assert.Equal(t, http.StatusNotFound, code, "no hub, no event route")
}

func TestEventStream(t *testing.T) {
	hub := telemetry.NewHub()
	defer hub.Close()
	s := NewServer(ServerConfig{Gatherer: prometheus.NewRegistry(), Hub: hub})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events?types=poll.accepted,poll.timeout"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.events.ActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.SubscriberCount())

	hub.Publish(telemetry.Event{Type: telemetry.EventPollAttempt, InvocationID: "a"})
	hub.Publish(telemetry.Event{Type: telemetry.EventPollAccepted, InvocationID: "b", Data: map[string]any{"polls": 3}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got telemetry.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, telemetry.EventPollAccepted, got.Type)
	assert.Equal(t, "b", got.InvocationID)
	assert.EqualValues(t, 3, got.Data["polls"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventStreamUnsubscribe(t *testing.T) {
	hub := telemetry.NewHub()
	defer hub.Close()
	s := NewServer(ServerConfig{Gatherer: prometheus.NewRegistry(), Hub: hub})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.events.ActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(SubscribeMessage{Action: "unsubscribe"}))
	sub := onlySubscriber(t, s.events)
	require.Eventually(t, func() bool { return !sub.wants(telemetry.EventPollTimeout) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(SubscribeMessage{Action: "subscribe", EventTypes: []string{"poll.timeout"}}))
	require.Eventually(t, func() bool { return sub.wants(telemetry.EventPollTimeout) }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, sub.wants(telemetry.EventPollAccepted))

	s.events.Shutdown()
	assert.Equal(t, 0, s.events.ActiveConnections())
	assert.Equal(t, 0, hub.SubscriberCount())
}

func onlySubscriber(t *testing.T, s *EventStream) *subscriber {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.subscribers, 1)
	for sub := range s.subscribers {
		return sub
	}
	return nil
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := NewServer(ServerConfig{Addr: "127.0.0.1:0", Gatherer: prometheus.NewRegistry()})
	require.NoError(t, s.Start())
	assert.NotEqual(t, "127.0.0.1:0", s.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	code, _ := get(t, "http://"+s.Addr()+"/healthz")
	assert.Equal(t, http.StatusOK, code)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
