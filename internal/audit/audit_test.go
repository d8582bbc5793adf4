package audit

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glinharesb/chevron-bridge/internal/bridge"
	"github.com/glinharesb/chevron-bridge/internal/provider"
)

// Tests use logger.Close() to drain entries instead of time.Sleep,
// ensuring deterministic behavior with the race detector.

func TestLogAndQuery(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(100, &buf)

	logger.Log(Entry{Operation: "GenerateKey", TaskID: "t-1", Status: "OK"})
	logger.Log(Entry{Operation: "SignData", TaskID: "t-2", Status: "OK"})
	logger.Log(Entry{Operation: "GenerateKey", TaskID: "t-3", Status: "ERROR"})

	require.NoError(t, logger.Close())

	entries, err := logger.Query(context.Background(), Filter{Operation: "GenerateKey"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "t-3", entries[0].TaskID, "newest first")

	entries, _ = logger.Query(context.Background(), Filter{Status: "ERROR"})
	assert.Len(t, entries, 1)

	// Safe to read buf now - processLoop has exited.
	assert.True(t, strings.Contains(buf.String(), `"operation":"SignData"`))
}

func TestQueryLimitAndRange(t *testing.T) {
	logger := NewLogger(100, nil)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 10 {
		logger.Log(Entry{Operation: "SignData", Status: "OK", Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}
	require.NoError(t, logger.Close())

	entries, _ := logger.Query(context.Background(), Filter{Limit: 3})
	assert.Len(t, entries, 3)

	entries, _ = logger.Query(context.Background(), Filter{Start: base.Add(2 * time.Minute), End: base.Add(5 * time.Minute)})
	assert.Len(t, entries, 4)
}

func TestSubscribeReceivesEntries(t *testing.T) {
	logger := NewLogger(100, nil)
	defer logger.Close()

	sub := logger.Subscribe()
	defer logger.Unsubscribe(sub)

	logger.Log(Entry{Operation: "SignData", Status: "OK"})

	select {
	case entry := <-sub.C:
		assert.Equal(t, "SignData", entry.Operation)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive entry")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	logger := NewLogger(100, nil)
	defer logger.Close()

	sub := logger.Subscribe()
	logger.Unsubscribe(sub)
	logger.Unsubscribe(sub)

	_, ok := <-sub.C
	assert.False(t, ok, "expected closed channel")
}

func TestCloseClosesSubscribers(t *testing.T) {
	logger := NewLogger(100, nil)
	sub := logger.Subscribe()
	require.NoError(t, logger.Close())

	_, ok := <-sub.C
	assert.False(t, ok)
	logger.Unsubscribe(sub)
}

func TestLogEntryHasIDAndTimestamp(t *testing.T) {
	logger := NewLogger(100, nil)
	logger.Log(Entry{Operation: "UnlockKey", Status: "OK"})
	require.NoError(t, logger.Close())

	entries, _ := logger.Query(context.Background(), Filter{})
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestObserveCompletion(t *testing.T) {
	logger := NewLogger(100, nil)

	logger.Observe(bridge.Completion{
		TaskID:            "task-1",
		Op:                bridge.OpLoadKey,
		Style:             bridge.Async,
		Status:            provider.StatusOK,
		LoadedPrivateKeys: 3,
		Provider:          "/opt/chevron/chevron.so",
		Duration:          time.Millisecond,
		Finished:          time.Now(),
	})
	logger.Observe(bridge.Completion{
		Op:     bridge.OpVerifySignature,
		Style:  bridge.Async,
		Status: provider.StatusTrue,
	})
	logger.Observe(bridge.Completion{
		Op:     bridge.OpGetPublicKey,
		Style:  bridge.Sync,
		Status: provider.StatusError,
		Err:    "key not found",
	})
	require.NoError(t, logger.Close())

	entries, _ := logger.Query(context.Background(), Filter{TaskID: "task-1"})
	require.Len(t, entries, 1)
	assert.Equal(t, "LoadKey", entries[0].Operation)
	assert.Equal(t, "OK", entries[0].Status)
	assert.Equal(t, "3", entries[0].Metadata["loaded_private_keys"])
	assert.Equal(t, "async", entries[0].Metadata["style"])

	entries, _ = logger.Query(context.Background(), Filter{Operation: "VerifyBase64DataSignature"})
	require.Len(t, entries, 1)
	assert.Equal(t, "TRUE", entries[0].Status)

	entries, _ = logger.Query(context.Background(), Filter{Status: "ERROR"})
	require.Len(t, entries, 1)
	assert.Equal(t, "key not found", entries[0].Metadata["error"])
	assert.Equal(t, "sync", entries[0].Metadata["style"])
}

func TestStatusName(t *testing.T) {
	assert.Equal(t, "ERROR", StatusName(provider.StatusError))
	assert.Equal(t, "FALSE", StatusName(provider.StatusFalse))
	assert.Equal(t, "OK", StatusName(provider.StatusOK))
	assert.Equal(t, "STATUS(7)", StatusName(7))
}

func TestSQLiteSink(t *testing.T) {
	ctx := context.Background()
	sink, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)

	logger := NewLogger(100, nil, WithSink(sink))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range 5 {
		logger.Log(Entry{
			Operation: "SignData",
			TaskID:    "t",
			Status:    "OK",
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Duration:  time.Duration(i) * time.Millisecond,
			Metadata:  map[string]string{"i": string(rune('0' + i))},
		})
	}
	logger.Log(Entry{Operation: "UnlockKey", Status: "ERROR", Timestamp: base})

	// Drain the pipeline without closing the sink, then query it.
	close(logger.entries)
	<-logger.done

	entries, err := logger.Query(ctx, Filter{Operation: "SignData"})
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, "4", entries[0].Metadata["i"], "newest first")
	assert.Equal(t, 4*time.Millisecond, entries[0].Duration)
	assert.True(t, entries[0].Timestamp.Equal(base.Add(4*time.Second)))

	entries, err = sink.Query(ctx, Filter{Start: base.Add(time.Second), End: base.Add(3 * time.Second), Limit: 2})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = sink.Query(ctx, Filter{Status: "ERROR"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Metadata)

	require.NoError(t, sink.Close())
}
