package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"hrguard/guard/monitor"
)

func TestShouldNotify(t *testing.T) {
	n := NewNotifier(Config{Enabled: true})

	// Default minimum is HIGH.
	if n.ShouldNotify(monitor.SeverityMedium) {
		t.Error("MEDIUM should not clear the default HIGH minimum")
	}
	if !n.ShouldNotify(monitor.SeverityHigh) || !n.ShouldNotify(monitor.SeverityCritical) {
		t.Error("HIGH and CRITICAL must clear the default minimum")
	}

	low := NewNotifier(Config{Enabled: true, MinLevel: "LOW"})
	if !low.ShouldNotify(monitor.SeverityLow) {
		t.Error("LOW minimum should pass everything")
	}
}

func TestNotifyDelivers(t *testing.T) {
	var mu sync.Mutex
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = body
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(Config{Enabled: true, URLs: []string{srv.URL}})
	n.Notify(monitor.Alert{
		ID:      "alert_1_1",
		Type:    monitor.AlertBruteForceIP,
		Level:   monitor.SeverityCritical,
		Message: "Brute force attack detected from 10.0.0.5",
	})

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		got := received
		mu.Unlock()
		if got != nil {
			var alert monitor.Alert
			if err := json.Unmarshal(got, &alert); err != nil {
				t.Fatalf("payload is not an alert: %v", err)
			}
			if alert.ID != "alert_1_1" || alert.Level != monitor.SeverityCritical {
				t.Fatalf("unexpected payload: %+v", alert)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("webhook never delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestNotifyFiltersBelowMinimum(t *testing.T) {
	hits := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- struct{}{}
	}))
	defer srv.Close()

	n := NewNotifier(Config{Enabled: true, URLs: []string{srv.URL}})
	n.Notify(monitor.Alert{Level: monitor.SeverityMedium, Type: monitor.AlertHighRequestRate})

	select {
	case <-hits:
		t.Fatal("MEDIUM alert delivered despite HIGH minimum")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDisabledNotifierSendsNothing(t *testing.T) {
	n := NewNotifier(Config{Enabled: false, URLs: []string{"http://127.0.0.1:0"}})
	// Must be a silent no-op.
	n.Notify(monitor.Alert{Level: monitor.SeverityCritical})
}
