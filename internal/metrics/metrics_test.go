package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordPollCreated_IncrementsCounter は投票作成カウンタが増加することを検証する。
func TestRecordPollCreated_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPollCreated()
	c.RecordPollCreated()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "pollup_polls_created_total" {
			found = true
			if len(mf.GetMetric()) != 1 {
				t.Fatalf("expected 1 metric, got %d", len(mf.GetMetric()))
			}
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 2 {
				t.Errorf("polls_created_total = %v, want 2", val)
			}
		}
	}
	if !found {
		t.Error("pollup_polls_created_total metric not found")
	}
}

// TestRecordPollClosed_IncrementsCounter は投票クローズカウンタが増加することを検証する。
func TestRecordPollClosed_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPollClosed()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "pollup_polls_closed_total" {
			found = true
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 1 {
				t.Errorf("polls_closed_total = %v, want 1", val)
			}
		}
	}
	if !found {
		t.Error("pollup_polls_closed_total metric not found")
	}
}

// TestRecordCloseRetry_IncrementsCounter はクローズ再試行カウンタが増加することを検証する。
func TestRecordCloseRetry_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCloseRetry()
	c.RecordCloseRetry()
	c.RecordCloseRetry()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "pollup_close_retry_total" {
			found = true
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 3 {
				t.Errorf("close_retry_total = %v, want 3", val)
			}
		}
	}
	if !found {
		t.Error("pollup_close_retry_total metric not found")
	}
}

// TestRecordVoteRejected_IncrementsCounterWithLabel は拒否票カウンタが理由ラベル付きで増加することを検証する。
func TestRecordVoteRejected_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordVoteRejected("duplicate")
	c.RecordVoteRejected("duplicate")
	c.RecordVoteRejected("poll_closed")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "pollup_votes_rejected_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "duplicate":
					if val != 2 {
						t.Errorf("votes_rejected_total{reason=duplicate} = %v, want 2", val)
					}
				case "poll_closed":
					if val != 1 {
						t.Errorf("votes_rejected_total{reason=poll_closed} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("pollup_votes_rejected_total metric not found")
	}
}

// TestRecordVoteLatency_ObservesHistogram は投票レイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordVoteLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordVoteLatency(100 * time.Millisecond)
	c.RecordVoteLatency(2 * time.Second)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "pollup_vote_latency_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
			}
			// 合計は0.1 + 2.0 = 2.1秒
			if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
				t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("pollup_vote_latency_seconds metric not found")
	}
}

// TestRecordVoteAccepted_IncrementsCounter は受理票カウンタが増加することを検証する。
func TestRecordVoteAccepted_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordVoteAccepted()
	c.RecordVoteAccepted()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "pollup_votes_cast_total" {
			found = true
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 2 {
				t.Errorf("votes_cast_total = %v, want 2", val)
			}
		}
	}
	if !found {
		t.Error("pollup_votes_cast_total metric not found")
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	// いくつかのメトリクスを記録
	c.RecordPollCreated()
	c.RecordPollClosed()
	c.RecordVoteAccepted()
	c.RecordVoteRejected("duplicate")
	c.RecordVoteLatency(500 * time.Millisecond)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	// Prometheus形式のメトリクスが含まれていることを確認
	expectedMetrics := []string{
		"pollup_polls_created_total",
		"pollup_polls_closed_total",
		"pollup_votes_cast_total",
		"pollup_votes_rejected_total",
		"pollup_vote_latency_seconds",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordVoteAccepted()
	c2.RecordVoteAccepted()
	c2.RecordVoteAccepted()

	metrics1, _ := reg1.Gather()
	metrics2, _ := reg2.Gather()

	var val1, val2 float64
	for _, mf := range metrics1 {
		if mf.GetName() == "pollup_votes_cast_total" {
			val1 = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	for _, mf := range metrics2 {
		if mf.GetName() == "pollup_votes_cast_total" {
			val2 = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}

	if val1 != 1 {
		t.Errorf("reg1 votes_cast = %v, want 1", val1)
	}
	if val2 != 2 {
		t.Errorf("reg2 votes_cast = %v, want 2", val2)
	}
}
