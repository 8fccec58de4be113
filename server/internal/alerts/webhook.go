package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// payloads maps a webhook type to the body it receives for an alert.
var payloads = map[string]func(*Alert) any{
	"slack": slackPayload,
	"teams": teamsPayload,
	"http":  httpPayload,
}

// deliver posts a to every configured webhook. Failures are logged only.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		build, ok := payloads[wh.Type]
		if !ok {
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}
		url := wh.URL()
		if url == "" {
			continue
		}
		body, err := json.Marshal(build(a))
		if err == nil {
			err = e.post(url, body)
		}
		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName,
				"company", a.Batch.Company, "batch", a.Batch.BatchID, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

// batchEvent is the body posted to generic http webhooks. The batch fields
// sit at the top level.
type batchEvent struct {
	Event      string     `json:"event"`
	Rule       string     `json:"rule"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"firedAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	BatchFacts
}

func eventName(a *Alert) string {
	if a.State == StateResolved {
		return "batch_alert_resolved"
	}
	return "batch_alert_firing"
}

func httpPayload(a *Alert) any {
	return batchEvent{
		Event:      eventName(a),
		Rule:       a.RuleName,
		Severity:   a.Severity,
		Message:    a.Message,
		Value:      a.Value,
		FiredAt:    a.FiredAt,
		ResolvedAt: a.ResolvedAt,
		BatchFacts: a.Batch,
	}
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsSection struct {
	ActivityTitle string      `json:"activityTitle"`
	Facts         []teamsFact `json:"facts"`
}

type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []teamsSection `json:"sections"`

	// Batch repeats the facts in machine-readable form for Power Automate
	// flows that parse the card.
	Batch BatchFacts `json:"batch"`
}

func teamsPayload(a *Alert) any {
	title := fmt.Sprintf("Batch %s (%s): %s", a.Batch.BatchID, a.Batch.Company, a.RuleName)
	color := severityColor(a.Severity)
	if a.State == StateResolved {
		title = "Resolved: " + title
		color = resolvedColor
	}
	return teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: color,
		Summary:    a.RuleName,
		Title:      title,
		Text:       a.Message,
		Sections: []teamsSection{{
			ActivityTitle: severityLabel(a.Severity),
			Facts:         batchFacts(a.Batch, func(name, value string) teamsFact { return teamsFact{name, value} }),
		}},
		Batch: a.Batch,
	}
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

func slackPayload(a *Alert) any {
	text := fmt.Sprintf("*%s* %s", severityLabel(a.Severity), a.Message)
	color := "#" + severityColor(a.Severity)
	if a.State == StateResolved {
		text = fmt.Sprintf("*[RESOLVED]* %s on batch %s (%s)", a.RuleName, a.Batch.BatchID, a.Batch.Company)
		color = "#" + resolvedColor
	}
	return slackMessage{
		Text: text,
		Attachments: []slackAttachment{{
			Color:  color,
			Fields: batchFacts(a.Batch, func(name, value string) slackField { return slackField{name, value, true} }),
		}},
	}
}

// batchFacts renders b as labelled values in display order.
func batchFacts[T any](b BatchFacts, fact func(name, value string) T) []T {
	return []T{
		fact("Company", b.Company),
		fact("Batch", b.BatchID),
		fact("Score", strconv.Itoa(b.Score)),
		fact("Status", b.Status),
		fact("Devices with problems", strconv.FormatFloat(b.ProblemPercentage, 'f', -1, 64)+"%"),
		fact("Total failures", strconv.Itoa(b.TotalFailures)),
	}
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

const resolvedColor = "2EB67D"

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
