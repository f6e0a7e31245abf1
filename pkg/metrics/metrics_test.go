package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// value returns the first sample of the named family whose labels include
// want, or -1 when there is none.
func value(t *testing.T, name string, want map[string]string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			matched := true
			for k, v := range want {
				if labels[k] != v {
					matched = false
				}
			}
			if !matched {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return -1
}

func TestRegisterMetricsIsIdempotent(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()
}

func TestRecordFrame(t *testing.T) {
	RegisterMetrics()
	frames := value(t, "camnode_motion_frames_total", nil)
	detections := value(t, "camnode_motion_detections_total", nil)

	RecordFrame(2, false)
	RecordFrame(9, true)

	if got := value(t, "camnode_motion_frames_total", nil); got != frames+2 {
		t.Fatalf("expected %v frames, got %v", frames+2, got)
	}
	if got := value(t, "camnode_motion_detections_total", nil); got != detections+1 {
		t.Fatalf("expected %v detections, got %v", detections+1, got)
	}
	if got := value(t, "camnode_motion_changed_cells", nil); got != 9 {
		t.Fatalf("expected 9 changed cells, got %v", got)
	}
}

func TestSetProvisioningState(t *testing.T) {
	all := []string{"startup", "connecting", "connected"}

	SetProvisioningState("connecting", all)
	SetProvisioningState("connected", all)

	for state, want := range map[string]float64{"startup": 0, "connecting": 0, "connected": 1} {
		if got := value(t, "camnode_provisioning_state", map[string]string{"state": state}); got != want {
			t.Fatalf("state %s: expected %v, got %v", state, want, got)
		}
	}

	RecordTransition("connecting", "connected")
	if got := value(t, "camnode_provisioning_transitions_total", map[string]string{"from": "connecting", "to": "connected"}); got < 1 {
		t.Fatalf("transition not recorded")
	}
}

func TestRequestMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestMetricsMiddleware())
	r.GET("/motion/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	req := httptest.NewRequest(http.MethodGet, "/motion/7", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	labels := map[string]string{"method": "GET", "path": "/motion/:id", "status": "418"}
	if got := value(t, "camnode_http_requests_total", labels); got != 1 {
		t.Fatalf("expected one request under the route pattern, got %v", got)
	}

	RecordHTTPRequest("GET", "/other", 200, time.Millisecond)
	if got := value(t, "camnode_http_request_duration_seconds", map[string]string{"path": "/other"}); got != 1 {
		t.Fatalf("expected one observation, got %v", got)
	}
}
