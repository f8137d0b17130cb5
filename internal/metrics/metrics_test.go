package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BetIngested("new")
		m.BetResolved("WIN")
		m.Order("ENTRY", "ok")
		m.ChainCall("betAccepted", "ok")
		m.IngestCycle("ok", time.Second)
		m.Watermark(10)
		m.IngestLive(true)
		m.OpenBets(3)
		m.EventDropped("kafka")
	})
	assert.Nil(t, m.Registry())
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCounters(t *testing.T) {
	m := New()
	m.BetIngested("new")
	m.BetIngested("new")
	m.BetIngested("duplicate")
	m.Watermark(1234)
	m.IngestLive(true)

	body := scrape(t, m)
	assert.Contains(t, body, `betbridge_bets_ingested_total{result="new"} 2`)
	assert.Contains(t, body, `betbridge_bets_ingested_total{result="duplicate"} 1`)
	assert.Contains(t, body, `betbridge_ingest_watermark_block 1234`)
	assert.Contains(t, body, `betbridge_ingest_live 1`)
}

func TestHandler(t *testing.T) {
	m := New()
	m.BetResolved("TIMEOUT")

	body := scrape(t, m)
	assert.Contains(t, body, `betbridge_bets_resolved_total{outcome="TIMEOUT"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
