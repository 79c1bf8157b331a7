package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sftpdesk/sftpdesk/internal/events"
)

func TestJSONLoggerComponentField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, nil).Component("transfer")

	logger.Info().Str("transfer_id", "t-1").Msg("download finished")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "transfer", entry["component"])
	assert.Equal(t, "t-1", entry["transfer_id"])
	assert.Equal(t, "download finished", entry["message"])
}

func TestWarningsReachEventBus(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	ch := bus.Subscribe(events.EventLog)

	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, bus).Component("session")
	logger.Info().Msg("not forwarded")
	logger.Warn().Msg("host key not verified")

	select {
	case ev := <-ch:
		logEv := ev.(*events.LogEvent)
		assert.Equal(t, events.WarnLevel, logEv.Level)
		assert.Equal(t, "session", logEv.Component)
		assert.Equal(t, "host key not verified", logEv.Message)
	case <-time.After(time.Second):
		t.Fatal("warning was not published")
	}

	select {
	case ev := <-ch:
		t.Fatalf("unexpected extra event %#v", ev)
	default:
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

func TestNopLoggerComponent(t *testing.T) {
	logger := Nop().Component("x")
	logger.Error().Msg("discarded")
	assert.Equal(t, io.Discard, logger.Output())
}
