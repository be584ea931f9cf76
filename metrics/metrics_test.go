package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// New registers collectors against the default Prometheus registry, which
// panics on duplicate registration, so every recording/serving behavior is
// exercised against a single instance here.
func TestRecordingAndHandler(t *testing.T) {
	m := New()
	m.RecordAttempt(true)
	m.RecordAttempt(false)
	m.RecordSessionOutcome(true, 2)
	m.RecordVerifyDuration("default", 1.5)
	m.RecordPolicyCheck("command", false)
	m.RecordAttestation("create", true)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "patchprove_attempts_total")
}
