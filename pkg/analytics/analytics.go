package analytics

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avct/uasurfer"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wardgate/wardgate/pkg/threat"
)

const (
	DefaultMaxEvents      = 10000
	DefaultRetentionHours = 24

	burstThreshold   = 10
	burstWindow      = 300 * time.Second
	uaDiversityRatio = 0.8
)

var riskWeights = map[threat.Level]float64{
	threat.Low:      1,
	threat.Medium:   3,
	threat.High:     7,
	threat.Critical: 15,
}

// ClientCount pairs a client identity with its event count.
type ClientCount struct {
	ClientID string `json:"client_id"`
	Count    int    `json:"count"`
}

// Summary is a windowed view over recorded events, computed on demand.
type Summary struct {
	WindowHours   int            `json:"window_hours"`
	TotalEvents   int            `json:"total_events"`
	ByType        map[string]int `json:"by_type"`
	ByThreatLevel map[string]int `json:"by_threat_level"`
	TopClients    []ClientCount  `json:"top_clients"`
	Trend         string         `json:"trend"`
}

// ThreatAnalysis extends Summary with a normalized risk score,
// detected anomalies and operator recommendations.
type ThreatAnalysis struct {
	Summary
	RiskScore       float64  `json:"risk_score"`
	OverallLevel    string   `json:"overall_level"`
	Anomalies       []string `json:"anomalies"`
	Recommendations []string `json:"recommendations"`
}

// IPAnalysis is the per-client drill-down view.
type IPAnalysis struct {
	ClientID      string         `json:"client_id"`
	TotalEvents   int            `json:"total_events"`
	ByType        map[string]int `json:"by_type"`
	ByThreatLevel map[string]int `json:"by_threat_level"`
	Agents        map[string]int `json:"agents"`
	FirstSeen     time.Time      `json:"first_seen"`
	LastSeen      time.Time      `json:"last_seen"`
	RiskScore     float64        `json:"risk_score"`
}

type Opts struct {
	MaxEvents      int
	RetentionHours int
	TimeProvider   func() time.Time
	UUIDProvider   func() string
	Logger         *logrus.Logger
}

// Analytics is the bounded in-memory security event store. Writes are
// strictly observational: a fault inside LogEvent is swallowed and
// counted rather than surfaced to the request path.
type Analytics struct {
	mu sync.RWMutex
	// events is kept in arrival order; timestamps are treated as
	// non-decreasing so windowed reads can binary-search the cutoff.
	events []Event

	maxEvents int
	retention time.Duration

	faults uint64

	timeProvider func() time.Time
	uuidProvider func() string
	logger       *logrus.Logger
}

func New(opts *Opts) *Analytics {
	a := &Analytics{
		maxEvents:    DefaultMaxEvents,
		retention:    DefaultRetentionHours * time.Hour,
		timeProvider: time.Now,
		uuidProvider: uuid.NewString,
	}
	if opts != nil {
		if opts.MaxEvents > 0 {
			a.maxEvents = opts.MaxEvents
		}
		if opts.RetentionHours > 0 {
			a.retention = time.Duration(opts.RetentionHours) * time.Hour
		}
		if opts.TimeProvider != nil {
			a.timeProvider = opts.TimeProvider
		}
		if opts.UUIDProvider != nil {
			a.uuidProvider = opts.UUIDProvider
		}
		a.logger = opts.Logger
	}
	return a
}

// LogEvent appends an event, evicting the oldest entry once the store
// is at capacity. It never panics out to the caller.
func (a *Analytics) LogEvent(event Event) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&a.faults, 1)
			if a.logger != nil {
				a.logger.WithField("panic", fmt.Sprint(r)).Error("analytics write failed")
			}
		}
	}()

	if event.ID == "" {
		event.ID = a.uuidProvider()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = a.timeProvider()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.events) >= a.maxEvents {
		copy(a.events, a.events[1:])
		a.events = a.events[:len(a.events)-1]
	}
	a.events = append(a.events, event)
}

// Faults reports how many LogEvent calls failed internally.
func (a *Analytics) Faults() uint64 {
	return atomic.LoadUint64(&a.faults)
}

// EventCount reports the number of retained events.
func (a *Analytics) EventCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.events)
}

// Summarize computes the windowed aggregate view for the last N hours.
func (a *Analytics) Summarize(hours int) Summary {
	now := a.timeProvider()
	events := a.eventsSince(now.Add(-time.Duration(hours) * time.Hour))
	return a.summarize(events, hours, now)
}

func (a *Analytics) summarize(events []Event, hours int, now time.Time) Summary {
	s := Summary{
		WindowHours:   hours,
		TotalEvents:   len(events),
		ByType:        make(map[string]int),
		ByThreatLevel: make(map[string]int),
		Trend:         trend(events, now, time.Duration(hours)*time.Hour),
	}
	clients := make(map[string]int)
	for _, e := range events {
		s.ByType[string(e.Type)]++
		s.ByThreatLevel[e.ThreatLevel.String()]++
		clients[e.ClientID]++
	}
	for id, n := range clients {
		s.TopClients = append(s.TopClients, ClientCount{ClientID: id, Count: n})
	}
	sort.Slice(s.TopClients, func(i, j int) bool {
		if s.TopClients[i].Count != s.TopClients[j].Count {
			return s.TopClients[i].Count > s.TopClients[j].Count
		}
		return s.TopClients[i].ClientID < s.TopClients[j].ClientID
	})
	if len(s.TopClients) > 10 {
		s.TopClients = s.TopClients[:10]
	}
	return s
}

// AnalyzeThreats layers risk scoring and anomaly detection on top of
// the windowed summary.
func (a *Analytics) AnalyzeThreats(hours int) ThreatAnalysis {
	now := a.timeProvider()
	events := a.eventsSince(now.Add(-time.Duration(hours) * time.Hour))

	analysis := ThreatAnalysis{
		Summary:   a.summarize(events, hours, now),
		RiskScore: riskScore(events),
	}
	analysis.OverallLevel = overallLevel(analysis.RiskScore)
	analysis.Anomalies = detectAnomalies(events)
	analysis.Recommendations = recommend(analysis)
	return analysis
}

// AnalyzeClient drills into a single identity's recorded activity.
func (a *Analytics) AnalyzeClient(clientID string) IPAnalysis {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := IPAnalysis{
		ClientID:      clientID,
		ByType:        make(map[string]int),
		ByThreatLevel: make(map[string]int),
		Agents:        make(map[string]int),
	}
	var own []Event
	for _, e := range a.events {
		if e.ClientID != clientID {
			continue
		}
		own = append(own, e)
		out.ByType[string(e.Type)]++
		out.ByThreatLevel[e.ThreatLevel.String()]++
		out.Agents[agentLabel(e.UserAgent)]++
	}
	out.TotalEvents = len(own)
	if len(own) > 0 {
		out.FirstSeen = own[0].Timestamp
		out.LastSeen = own[len(own)-1].Timestamp
		out.RiskScore = riskScore(own)
	}
	return out
}

// Cleanup evicts events older than the retention cutoff and returns
// how many were removed. Safe to run concurrently with LogEvent.
func (a *Analytics) Cleanup() int {
	cutoff := a.timeProvider().Add(-a.retention)

	a.mu.Lock()
	defer a.mu.Unlock()
	idx := sort.Search(len(a.events), func(i int) bool {
		return !a.events[i].Timestamp.Before(cutoff)
	})
	if idx == 0 {
		return 0
	}
	a.events = append(a.events[:0], a.events[idx:]...)
	return idx
}

// Export renders the events of the last N hours as "json" or "csv".
func (a *Analytics) Export(hours int, format string) ([]byte, error) {
	events := a.eventsSince(a.timeProvider().Add(-time.Duration(hours) * time.Hour))

	switch format {
	case "json", "":
		exported := make([]eventJSON, 0, len(events))
		for _, e := range events {
			exported = append(exported, e.forExport())
		}
		return json.MarshalIndent(exported, "", "  ")
	case "csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write([]string{"id", "timestamp", "event_type", "threat_level", "client_id", "method", "path", "user_agent", "action_taken", "details"}); err != nil {
			return nil, err
		}
		for _, e := range events {
			record := []string{
				e.ID,
				e.Timestamp.Format(time.RFC3339),
				string(e.Type),
				e.ThreatLevel.String(),
				e.ClientID,
				e.Method,
				e.Path,
				e.UserAgent,
				e.ActionTaken,
				e.Details,
			}
			if err := w.Write(record); err != nil {
				return nil, err
			}
		}
		w.Flush()
		return buf.Bytes(), w.Error()
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func (a *Analytics) eventsSince(cutoff time.Time) []Event {
	a.mu.RLock()
	defer a.mu.RUnlock()
	idx := sort.Search(len(a.events), func(i int) bool {
		return !a.events[i].Timestamp.Before(cutoff)
	})
	out := make([]Event, len(a.events)-idx)
	copy(out, a.events[idx:])
	return out
}

// trend compares the event rate of the most recent third of the window
// against the mean of the earlier two-thirds. A ±50% band reads as
// stable.
func trend(events []Event, now time.Time, window time.Duration) string {
	if len(events) == 0 {
		return "stable"
	}
	recentStart := now.Add(-window / 3)
	recent := 0
	for _, e := range events {
		if !e.Timestamp.Before(recentStart) {
			recent++
		}
	}
	earlierMean := float64(len(events)-recent) / 2
	if earlierMean == 0 {
		if recent > 0 {
			return "increasing"
		}
		return "stable"
	}
	ratio := float64(recent) / earlierMean
	switch {
	case ratio > 1.5:
		return "increasing"
	case ratio < 0.5:
		return "decreasing"
	default:
		return "stable"
	}
}

// riskScore normalizes severity-weighted event mass to [0,100].
func riskScore(events []Event) float64 {
	if len(events) == 0 {
		return 0
	}
	total := 0.0
	for _, e := range events {
		total += riskWeights[e.ThreatLevel]
	}
	max := float64(len(events)) * riskWeights[threat.Critical]
	return total / max * 100
}

func overallLevel(score float64) string {
	switch {
	case score >= 80:
		return threat.Critical.String()
	case score >= 60:
		return threat.High.String()
	case score >= 40:
		return threat.Medium.String()
	default:
		return threat.Low.String()
	}
}

func detectAnomalies(events []Event) []string {
	var anomalies []string

	if len(events) > burstThreshold {
		span := events[len(events)-1].Timestamp.Sub(events[len(events)-1-burstThreshold].Timestamp)
		if span < burstWindow {
			anomalies = append(anomalies, "burst: "+strconv.Itoa(burstThreshold+1)+" or more events within "+burstWindow.String())
		}
	}

	if len(events) >= burstThreshold {
		agents := make(map[string]struct{}, len(events))
		for _, e := range events {
			agents[e.UserAgent] = struct{}{}
		}
		if float64(len(agents))/float64(len(events)) > uaDiversityRatio {
			anomalies = append(anomalies, "high user-agent diversity suggests distributed probing")
		}
	}
	return anomalies
}

func recommend(analysis ThreatAnalysis) []string {
	var recs []string
	switch analysis.OverallLevel {
	case threat.Critical.String():
		recs = append(recs, "review permanent block list and consider upstream filtering")
	case threat.High.String():
		recs = append(recs, "tighten rate limits for affected clients")
	}
	if analysis.Trend == "increasing" {
		recs = append(recs, "event rate is rising; check top clients for coordinated activity")
	}
	for _, anomaly := range analysis.Anomalies {
		recs = append(recs, "investigate anomaly: "+anomaly)
	}
	if len(recs) == 0 {
		recs = append(recs, "no action required")
	}
	return recs
}

// agentLabel collapses a raw User-Agent into a coarse family name for
// the per-client agent breakdown.
func agentLabel(rawUA string) string {
	if rawUA == "" {
		return "unknown"
	}
	ua := uasurfer.Parse(rawUA)
	if ua.IsBot() {
		return "bot"
	}
	name := strings.TrimPrefix(ua.Browser.Name.String(), "Browser")
	return strings.ToLower(name)
}
