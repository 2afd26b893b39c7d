package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics()

	m.RecordGate("rejected")
	m.RecordGate("rejected")
	m.RecordOracle("GET", "ok", 10*time.Millisecond)
	m.RecordMailSent()
	m.RecordDraftSent()
	m.RecordMailDeleted("receiver")
	m.RecordStoreInconsistency()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.GateResults.WithLabelValues("rejected")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OracleRequests.WithLabelValues("GET", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MailsSent))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DraftsSent))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MailsDeleted.WithLabelValues("receiver")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StoreInconsistency))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordGate("clear")
		m.RecordOracle("GET", "ok", time.Millisecond)
		m.RecordHTTPRequest("GET", "/", "200", time.Millisecond)
		m.RecordMailSent()
		m.RecordDraftSent()
		m.RecordMailDeleted("sender")
		m.RecordStoreInconsistency()
		m.RecordPanic()
		m.RecordRateLimited()
	})
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RecordMailSent()
	assert.Equal(t, float64(0), testutil.ToFloat64(b.MailsSent))

	w := httptest.NewRecorder()
	a.HTTPHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "webmail_mails_sent_total 1")
}
