package analytics

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardgate/wardgate/pkg/threat"
)

func newTestAnalytics(now time.Time) *Analytics {
	seq := 0
	return New(&Opts{
		MaxEvents:      100,
		RetentionHours: 24,
		TimeProvider:   func() time.Time { return now },
		UUIDProvider: func() string {
			seq++
			return fmt.Sprintf("event-%04d", seq)
		},
	})
}

func event(ts time.Time, level threat.Level, clientID string) Event {
	return Event{
		Type:        EventThreatDetected,
		ThreatLevel: level,
		ClientID:    clientID,
		Path:        "/api/v1/users",
		Method:      "POST",
		UserAgent:   "curl/8.16.0",
		Details:     "pattern match",
		ActionTaken: "block",
		Timestamp:   ts,
	}
}

func TestLogEventAssignsIDAndTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAnalytics(now)

	a.LogEvent(Event{Type: EventBlockedRequest, ClientID: "c1"})

	require.Equal(t, 1, a.EventCount())
	s := a.Summarize(1)
	assert.Equal(t, 1, s.TotalEvents)
	assert.Equal(t, 1, s.ByType[string(EventBlockedRequest)])
}

func TestRingBufferEvictsOldestAtCapacity(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAnalytics(now)

	for i := 0; i < 150; i++ {
		a.LogEvent(event(now.Add(time.Duration(i)*time.Second), threat.Low, fmt.Sprintf("c%d", i)))
	}

	assert.Equal(t, 100, a.EventCount())
	// Oldest 50 evicted; c50 is now the first client present.
	assert.Equal(t, 0, a.AnalyzeClient("c49").TotalEvents)
	assert.Equal(t, 1, a.AnalyzeClient("c50").TotalEvents)
}

func TestSummarizeWindowsAndTopClients(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAnalytics(now)

	// Outside the 1h window.
	a.LogEvent(event(now.Add(-2*time.Hour), threat.Critical, "old"))
	for i := 0; i < 5; i++ {
		a.LogEvent(event(now.Add(-30*time.Minute), threat.Medium, "busy"))
	}
	a.LogEvent(event(now.Add(-20*time.Minute), threat.High, "quiet"))

	s := a.Summarize(1)
	assert.Equal(t, 6, s.TotalEvents)
	assert.Equal(t, 5, s.ByThreatLevel["medium"])
	assert.Equal(t, 1, s.ByThreatLevel["high"])
	assert.Zero(t, s.ByThreatLevel["critical"])
	require.NotEmpty(t, s.TopClients)
	assert.Equal(t, "busy", s.TopClients[0].ClientID)
	assert.Equal(t, 5, s.TopClients[0].Count)
}

func TestTrendBands(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		earlier int // events in the first two-thirds of a 3h window
		recent  int // events in the last hour
		want    string
	}{
		{"no events", 0, 0, "stable"},
		{"flat rate", 6, 3, "stable"},
		{"spike", 4, 10, "increasing"},
		{"only recent", 0, 3, "increasing"},
		{"dying down", 10, 2, "decreasing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalytics(now)
			for i := 0; i < tt.earlier; i++ {
				a.LogEvent(event(now.Add(-2*time.Hour), threat.Low, "c"))
			}
			for i := 0; i < tt.recent; i++ {
				a.LogEvent(event(now.Add(-30*time.Minute), threat.Low, "c"))
			}
			assert.Equal(t, tt.want, a.Summarize(3).Trend)
		})
	}
}

func TestRiskScoreNormalization(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("all critical is 100", func(t *testing.T) {
		a := newTestAnalytics(now)
		for i := 0; i < 4; i++ {
			a.LogEvent(event(now.Add(-time.Duration(i+1)*time.Minute), threat.Critical, "c"))
		}
		assert.Equal(t, 100.0, a.AnalyzeThreats(1).RiskScore)
		assert.Equal(t, "critical", a.AnalyzeThreats(1).OverallLevel)
	})

	t.Run("all low is minimal", func(t *testing.T) {
		a := newTestAnalytics(now)
		for i := 0; i < 4; i++ {
			a.LogEvent(event(now.Add(-time.Duration(i+1)*time.Hour/2), threat.Low, "c"))
		}
		analysis := a.AnalyzeThreats(3)
		assert.InDelta(t, 100.0/15.0, analysis.RiskScore, 0.01)
		assert.Equal(t, "low", analysis.OverallLevel)
	})

	t.Run("empty window is zero", func(t *testing.T) {
		a := newTestAnalytics(now)
		assert.Equal(t, 0.0, a.AnalyzeThreats(1).RiskScore)
	})
}

func TestBurstAnomaly(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAnalytics(now)

	for i := 0; i < 12; i++ {
		a.LogEvent(event(now.Add(-time.Duration(120-i)*time.Second), threat.Medium, "c"))
	}

	analysis := a.AnalyzeThreats(1)
	require.NotEmpty(t, analysis.Anomalies)
	assert.Contains(t, analysis.Anomalies[0], "burst")
}

func TestUserAgentDiversityAnomaly(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAnalytics(now)

	for i := 0; i < 20; i++ {
		e := event(now.Add(-time.Duration(20-i)*time.Minute), threat.Low, fmt.Sprintf("c%d", i))
		e.UserAgent = fmt.Sprintf("scanner-%d/1.0", i)
		a.LogEvent(e)
	}

	analysis := a.AnalyzeThreats(1)
	found := false
	for _, anomaly := range analysis.Anomalies {
		if strings.Contains(anomaly, "user-agent diversity") {
			found = true
		}
	}
	assert.True(t, found, "anomalies: %v", analysis.Anomalies)
}

func TestCleanupReturnsEvictedCount(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAnalytics(now)

	a.LogEvent(event(now.Add(-25*time.Hour), threat.Low, "stale"))
	a.LogEvent(event(now.Add(-26*time.Hour), threat.Low, "stale"))
	a.LogEvent(event(now.Add(-1*time.Hour), threat.Low, "fresh"))

	// Events are stored oldest first for the cutoff search.
	assert.Equal(t, 3, a.EventCount())
	evicted := a.Cleanup()
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 1, a.EventCount())
	assert.Equal(t, 0, a.Cleanup())
}

func TestExportJSON(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAnalytics(now)
	a.LogEvent(event(now.Add(-time.Minute), threat.Critical, "c1"))

	data, err := a.Export(1, "json")
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "critical", decoded[0]["threat_level"])
	assert.Equal(t, "c1", decoded[0]["client_id"])
}

func TestExportCSV(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAnalytics(now)
	a.LogEvent(event(now.Add(-time.Minute), threat.High, "c1"))

	data, err := a.Export(1, "csv")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "threat_level")
	assert.Contains(t, lines[1], "high")
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	a := newTestAnalytics(time.Now())
	_, err := a.Export(1, "xml")
	assert.Error(t, err)
}

func TestAnalyzeClient(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAnalytics(now)

	a.LogEvent(event(now.Add(-50*time.Minute), threat.Medium, "c1"))
	a.LogEvent(event(now.Add(-10*time.Minute), threat.Critical, "c1"))
	a.LogEvent(event(now.Add(-5*time.Minute), threat.Low, "c2"))

	analysis := a.AnalyzeClient("c1")
	assert.Equal(t, 2, analysis.TotalEvents)
	assert.Equal(t, now.Add(-50*time.Minute), analysis.FirstSeen)
	assert.Equal(t, now.Add(-10*time.Minute), analysis.LastSeen)
	assert.Equal(t, 1, analysis.ByThreatLevel["critical"])
	assert.Equal(t, 2, analysis.Agents["unknown"])
	assert.InDelta(t, (3.0+15.0)/30.0*100, analysis.RiskScore, 0.01)
}
