package monitor

import (
	"sort"
	"time"
)

// Snapshot is the read-side aggregation served to operators. Pure
// derived view; building one mutates nothing.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	Alerts struct {
		Total      int `json:"total"`
		Unresolved int `json:"unresolved"`
		Critical   int `json:"critical"`
		High       int `json:"high"`
	} `json:"alerts"`

	Activity struct {
		EventsLastHour       int `json:"events_last_hour"`
		EventsLastDay        int `json:"events_last_day"`
		UniqueIdentities     int `json:"unique_identities_last_hour"`
		BlockedIdentities    int `json:"blocked_identities"`
		SuspiciousIdentities int `json:"suspicious_identities"`
	} `json:"activity"`

	TopEventTypes []EventTypeCount `json:"top_event_types"`
}

// EventTypeCount ranks one event type by hour-trailing frequency.
type EventTypeCount struct {
	Type  string `json:"event_type"`
	Count int    `json:"count"`
}

// Snapshot aggregates current monitor state. The blocked-set size comes
// from the connection gate, which owns the block records.
func (m *Monitor) Snapshot(blockedIdentities int) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.config.Now()
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	var s Snapshot
	s.Timestamp = now

	s.Alerts.Total = len(m.alerts)
	for _, a := range m.alerts {
		if !a.Resolved {
			s.Alerts.Unresolved++
		}
		switch a.Level {
		case SeverityCritical:
			s.Alerts.Critical++
		case SeverityHigh:
			s.Alerts.High++
		}
	}

	identities := make(map[string]struct{})
	typeCounts := make(map[string]int)
	m.events.each(func(e Event) bool {
		if e.Timestamp.After(dayAgo) {
			s.Activity.EventsLastDay++
		}
		if e.Timestamp.After(hourAgo) {
			s.Activity.EventsLastHour++
			identities[e.Identity] = struct{}{}
			typeCounts[e.Type]++
		}
		return true
	})

	s.Activity.UniqueIdentities = len(identities)
	s.Activity.BlockedIdentities = blockedIdentities
	s.Activity.SuspiciousIdentities = len(m.suspicious)

	s.TopEventTypes = make([]EventTypeCount, 0, len(typeCounts))
	for eventType, count := range typeCounts {
		s.TopEventTypes = append(s.TopEventTypes, EventTypeCount{Type: eventType, Count: count})
	}
	sort.Slice(s.TopEventTypes, func(i, j int) bool {
		if s.TopEventTypes[i].Count != s.TopEventTypes[j].Count {
			return s.TopEventTypes[i].Count > s.TopEventTypes[j].Count
		}
		return s.TopEventTypes[i].Type < s.TopEventTypes[j].Type
	})
	if len(s.TopEventTypes) > 10 {
		s.TopEventTypes = s.TopEventTypes[:10]
	}

	return s
}
