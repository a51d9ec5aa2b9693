package finder

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/odvcencio/crescent/pkg/browser"
	"github.com/odvcencio/crescent/pkg/logging"
	"github.com/odvcencio/crescent/pkg/telemetry"
	"github.com/odvcencio/crescent/pkg/wait"
)

func drain(ch <-chan telemetry.Event) []telemetry.Event {
	var out []telemetry.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestTelemetryEvents(t *testing.T) {
	hub := telemetry.NewHub()
	defer hub.Close()
	events, unsub := hub.Subscribe()
	defer unsub()

	f, clk := newTestFinder(t, WithTelemetry(hub))
	root := &scriptedRoot{clock: clk, steps: []step{{err: browser.ErrStaleElement}, {count: 1}}}

	_, err := f.FindSingle(context.Background(), root, rows, wait.New(time.Second))
	require.NoError(t, err)

	got := drain(events)
	require.Len(t, got, 4)
	assert.Equal(t, telemetry.EventPollStarted, got[0].Type)
	assert.Equal(t, telemetry.EventPollAttempt, got[1].Type)
	assert.Equal(t, telemetry.EventPollAttempt, got[2].Type)
	assert.Equal(t, telemetry.EventPollAccepted, got[3].Type)

	id := got[0].InvocationID
	require.NotEmpty(t, id)
	for _, ev := range got {
		assert.Equal(t, id, ev.InvocationID)
		assert.Equal(t, OpFindSingle, ev.Data["operation"])
		assert.Equal(t, rows.String(), ev.Data["locator"])
	}
	assert.Equal(t, browser.ErrStaleElement.Error(), got[1].Data["retryable"])
	assert.Equal(t, true, got[2].Data["accepted"])
	assert.Equal(t, 2, got[3].Data["polls"])
	assert.Equal(t, int64(1000), got[0].Data["timeout_ms"])
}

func TestTelemetry_TimeoutAndFailure(t *testing.T) {
	hub := telemetry.NewHub()
	defer hub.Close()
	events, unsub := hub.Subscribe()
	defer unsub()

	f, clk := newTestFinder(t, WithTelemetry(hub))

	found, err := f.FindStableSet(context.Background(), &scriptedRoot{clock: clk, steps: counts(1, 2, 3, 4, 5)}, rows, wait.New(time.Second))
	require.NoError(t, err)
	require.Len(t, found, 5)
	got := drain(events)
	last := got[len(got)-1]
	assert.Equal(t, telemetry.EventPollTimeout, last.Type)
	assert.Equal(t, int64(5), last.Data["matches"])

	err = f.AwaitAbsence(context.Background(), &scriptedRoot{clock: clk, steps: []step{{err: browser.ErrConnectionLost}}}, rows, wait.New(time.Second))
	require.ErrorIs(t, err, ErrEvaluationFailed)
	got = drain(events)
	last = got[len(got)-1]
	assert.Equal(t, telemetry.EventPollFailed, last.Type)
	assert.Contains(t, last.Data["error"], "connection lost")
	assert.Equal(t, true, last.Data["connection_lost"])
}

func TestLoggerReceivesLifecycle(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWriterLogger(&buf)
	logger.SetMinLevel(logging.LevelDebug)

	f, clk := newTestFinder(t, WithLogger(logger))
	_, err := f.FindSingle(context.Background(), &scriptedRoot{clock: clk, steps: counts(0)}, rows, wait.New(time.Second))
	require.ErrorIs(t, err, ErrNotFound)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"type":"poll.started"`)
	assert.Contains(t, lines[0], `"level":"debug"`)
	assert.Contains(t, lines[1], `"type":"poll.timeout"`)
	assert.Contains(t, lines[1], `"level":"warn"`)
	assert.Contains(t, lines[1], `"category":"poll"`)
}

func TestTracingSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	f, clk := newTestFinder(t, WithTracer(provider.Tracer("test")))

	_, err := f.FindStableSet(context.Background(), &scriptedRoot{clock: clk, steps: counts(2)}, rows, wait.New(time.Second))
	require.NoError(t, err)
	_, err = f.FindSingle(context.Background(), &scriptedRoot{clock: clk, steps: []step{{err: browser.ErrSessionClosed}}}, rows, wait.New(time.Second))
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "finder.find_stable_set", spans[0].Name())
	attrs := map[string]any{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, rows.String(), attrs[string(AttrLocator)])
	assert.Equal(t, "accepted", attrs[string(AttrOutcome)])
	assert.Equal(t, int64(2), attrs[string(AttrMatches)])
	assert.Equal(t, int64(1000), attrs[string(AttrTimeoutMS)])

	assert.Equal(t, "finder.find_single", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	require.NotEmpty(t, spans[1].Events(), "error recorded on span")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestLogWriteFailureIsRecordedOnSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	f, clk := newTestFinder(t, WithTracer(provider.Tracer("test")), WithLogger(logging.NewWriterLogger(failingWriter{})))

	_, err := f.FindSingle(context.Background(), &scriptedRoot{clock: clk, steps: counts(1)}, rows, wait.New(time.Second))
	require.NoError(t, err, "a broken log sink does not fail the lookup")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	var failed []string
	for _, ev := range spans[0].Events() {
		if ev.Name != "log.write_failed" {
			continue
		}
		for _, kv := range ev.Attributes {
			if kv.Key == "event_type" {
				failed = append(failed, kv.Value.AsString())
			}
		}
	}
	assert.Contains(t, failed, string(telemetry.EventPollAccepted))
}
