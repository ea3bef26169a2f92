package metrics_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/engine"
	"tally/internal/ledger"
	"tally/internal/metrics"
	"tally/internal/session"
)

var _ engine.Recorder = (*metrics.Metrics)(nil)

func TestServerExposesRecordedValues(t *testing.T) {
	m := metrics.New()
	m.ChunkProcessed(4096)
	m.ChunkProcessed(100)
	m.RecordsFolded(7)
	m.Progress(42.5)
	m.CheckpointSaved(engine.SaveMilestone)
	m.CheckpointFailed(engine.SaveAuto)
	m.StateChanged(string(engine.StatePaused))

	srv, err := metrics.Listen("127.0.0.1:0", m, nil)
	require.NoError(t, err)
	srv.Serve()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Close(ctx)
	})

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	for _, want := range []string{
		"tally_bytes_read_total 4196",
		"tally_chunks_total 2",
		"tally_records_total 7",
		"tally_progress_percent 42.5",
		`tally_checkpoint_saves_total{kind="milestone"} 1`,
		`tally_checkpoint_failures_total{kind="auto"} 1`,
		`tally_engine_state{state="paused"} 1`,
		`tally_engine_state{state="idle"} 0`,
	} {
		assert.True(t, strings.Contains(text, want), "missing %q", want)
	}
}

func TestStateIsOneHot(t *testing.T) {
	m := metrics.New()
	m.StateChanged("processing")
	m.StateChanged("completed")

	count, err := testutil.GatherAndCount(m.Registry(), "tally_engine_state")
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP tally_engine_state 1 for the current engine state, 0 otherwise.
# TYPE tally_engine_state gauge
tally_engine_state{state="completed"} 1
tally_engine_state{state="idle"} 0
tally_engine_state{state="paused"} 0
tally_engine_state{state="processing"} 0
tally_engine_state{state="stopped"} 0
`), "tally_engine_state"))
}

func TestObserveSessionTracksCurrentBalances(t *testing.T) {
	m := metrics.New()
	m.ObserveSession(session.State{Balances: []ledger.CurrencyBalance{
		{Currency: "USD", Total: decimal.RequireFromString("30.5"), Count: 2},
		{Currency: "EUR", Total: decimal.RequireFromString("4"), Count: 1},
	}})

	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP tally_session_balance_total Accumulated total per currency in the session ledger.
# TYPE tally_session_balance_total gauge
tally_session_balance_total{currency="EUR"} 4
tally_session_balance_total{currency="USD"} 30.5
# HELP tally_session_balance_records Records folded per currency in the session ledger.
# TYPE tally_session_balance_records gauge
tally_session_balance_records{currency="EUR"} 1
tally_session_balance_records{currency="USD"} 2
`), "tally_session_balance_total", "tally_session_balance_records"))

	m.ObserveSession(session.State{})
	count, err := testutil.GatherAndCount(m.Registry(), "tally_session_balance_total")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
