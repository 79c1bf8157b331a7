package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
)

func TestRecordTransferLabelsByKind(t *testing.T) {
	before := testutil.ToFloat64(transfersTotal.WithLabelValues("download", "cancelled"))
	RecordTransfer("download", 512, 10*time.Millisecond, apperr.Cancelled("download", "t-1"))
	after := testutil.ToFloat64(transfersTotal.WithLabelValues("download", "cancelled"))
	assert.Equal(t, before+1, after)
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "success", result(nil))
	assert.Equal(t, "auth", result(apperr.New(apperr.KindAuth, "authenticate", "h:22", errors.New("denied"))))
	assert.Equal(t, "task_failure", result(errors.New("boom")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	SetSessionsActive(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "sftpdesk_sessions_active 3"))
}
