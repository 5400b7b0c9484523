package webhook

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"hrguard/guard/monitor"
)

// Config holds webhook notification settings.
type Config struct {
	Enabled       bool     `yaml:"enabled"`
	URLs          []string `yaml:"urls"`
	MinLevel      string   `yaml:"min_level"`   // LOW, MEDIUM, HIGH, CRITICAL (default: HIGH)
	TimeoutSec    int      `yaml:"timeout_sec"` // HTTP timeout (default: 5)
	MaxRetries    int      `yaml:"max_retries"` // retry attempts (default: 2)
	SlackFormat   bool     `yaml:"slack_format"`
	DiscordFormat bool     `yaml:"discord_format"`
	TeamsFormat   bool     `yaml:"teams_format"`
}

// Notifier pushes alerts to configured webhook endpoints. It satisfies
// monitor.Notifier: sends are async and best-effort, failures are
// logged and never propagate.
type Notifier struct {
	config Config
	client *http.Client
}

// NewNotifier creates a webhook notifier.
func NewNotifier(config Config) *Notifier {
	if config.TimeoutSec == 0 {
		config.TimeoutSec = 5
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 2
	}
	if config.MinLevel == "" {
		config.MinLevel = string(monitor.SeverityHigh)
	}

	return &Notifier{
		config: config,
		client: &http.Client{
			Timeout: time.Duration(config.TimeoutSec) * time.Second,
		},
	}
}

var levelRank = map[string]int{
	string(monitor.SeverityLow):      1,
	string(monitor.SeverityMedium):   2,
	string(monitor.SeverityHigh):     3,
	string(monitor.SeverityCritical): 4,
}

// ShouldNotify reports whether an alert level clears the configured
// minimum.
func (n *Notifier) ShouldNotify(level monitor.Severity) bool {
	return levelRank[string(level)] >= levelRank[n.config.MinLevel]
}

// Notify sends the alert to every configured URL. Returns immediately;
// delivery happens in the background.
func (n *Notifier) Notify(alert monitor.Alert) {
	if !n.config.Enabled || !n.ShouldNotify(alert.Level) {
		return
	}
	for _, url := range n.config.URLs {
		go n.send(url, alert)
	}
}

func (n *Notifier) send(url string, alert monitor.Alert) {
	var payload any
	switch {
	case n.config.SlackFormat:
		payload = formatSlack(alert)
	case n.config.DiscordFormat:
		payload = formatDiscord(alert)
	case n.config.TeamsFormat:
		payload = formatTeams(alert)
	default:
		payload = alert
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("webhook: marshal payload: %v", err)
		return
	}

	for attempt := 0; attempt <= n.config.MaxRetries; attempt++ {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			log.Printf("webhook: build request: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "hrguard/1.0")

		resp, err := n.client.Do(req)
		if err != nil {
			if attempt < n.config.MaxRetries {
				time.Sleep(time.Duration(attempt+1) * time.Second)
				continue
			}
			log.Printf("webhook: send notification: %v", err)
			return
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return
		}
		if attempt < n.config.MaxRetries {
			time.Sleep(time.Duration(attempt+1) * time.Second)
		} else {
			log.Printf("webhook: gave up after %d attempts, status %d", n.config.MaxRetries+1, resp.StatusCode)
		}
	}
}

func formatSlack(alert monitor.Alert) map[string]any {
	color := "warning"
	switch alert.Level {
	case monitor.SeverityCritical:
		color = "danger"
	case monitor.SeverityLow:
		color = "good"
	}

	return map[string]any{
		"text": ":rotating_light: *Security Alert*",
		"attachments": []map[string]any{
			{
				"color": color,
				"fields": []map[string]any{
					{"title": "Type", "value": alert.Type, "short": true},
					{"title": "Level", "value": string(alert.Level), "short": true},
					{"title": "Message", "value": alert.Message, "short": false},
				},
				"footer": "hrguard",
				"ts":     alert.Timestamp.Unix(),
			},
		},
	}
}

func formatDiscord(alert monitor.Alert) map[string]any {
	color := 16776960 // yellow
	switch alert.Level {
	case monitor.SeverityCritical:
		color = 16711680 // red
	case monitor.SeverityLow:
		color = 65280 // green
	}

	return map[string]any{
		"embeds": []map[string]any{
			{
				"title":       "Security Alert",
				"description": alert.Message,
				"color":       color,
				"fields": []map[string]any{
					{"name": "Type", "value": alert.Type, "inline": true},
					{"name": "Level", "value": string(alert.Level), "inline": true},
					{"name": "Alert ID", "value": alert.ID, "inline": true},
				},
				"timestamp": alert.Timestamp.Format(time.RFC3339),
			},
		},
	}
}

func formatTeams(alert monitor.Alert) map[string]any {
	themeColor := "FFD93D"
	switch alert.Level {
	case monitor.SeverityCritical, monitor.SeverityHigh:
		themeColor = "FF6B6B"
	case monitor.SeverityLow:
		themeColor = "6BCF7F"
	}

	return map[string]any{
		"@type":      "MessageCard",
		"@context":   "https://schema.org/extensions",
		"summary":    "Security Alert",
		"themeColor": themeColor,
		"title":      "Security Alert",
		"sections": []map[string]any{
			{
				"facts": []map[string]string{
					{"name": "Type", "value": alert.Type},
					{"name": "Level", "value": string(alert.Level)},
					{"name": "Message", "value": alert.Message},
					{"name": "Alert ID", "value": alert.ID},
				},
			},
		},
	}
}
