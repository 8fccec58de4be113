package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/vizor/fleethealth/pkg/types"
	"github.com/vizor/fleethealth/server/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Company    string     `json:"company"`
	BatchID    string     `json:"batch_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`

	// Batch is the batch as last evaluated: when the alert fired or was
	// refreshed, or when it resolved. Absent batches keep their last state.
	Batch BatchFacts `json:"batch"`
}

// BatchFacts is the subset of a batch report carried by alerts and webhook
// payloads. Field names follow the published report documents.
type BatchFacts struct {
	Company           string  `json:"company"`
	BatchID           string  `json:"batchId"`
	Score             int     `json:"score"`
	Status            string  `json:"status"`
	ProblemPercentage float64 `json:"problemPercentage"`
	TotalFailures     int     `json:"totalFailures"`
}

func factsOf(b types.BatchReport) BatchFacts {
	return BatchFacts{
		Company:           b.Company,
		BatchID:           b.BatchID,
		Score:             b.Score,
		Status:            b.Status,
		ProblemPercentage: b.ProblemPercentage,
		TotalFailures:     b.TotalFailures,
	}
}

// Engine evaluates alert rules against every batch of a report snapshot and
// delivers webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []config.AlertRule
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	active   map[string]*Alert    // key: rule, company, batch
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	now      func() time.Time
	send     func(*Alert)
}

// New creates an Engine from the server alert configuration.
// An Engine with empty rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	e := &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
	e.send = func(a *Alert) { go e.deliver(a) }
	return e
}

func alertKey(rule string, b types.BatchReport) string {
	return rule + "\x00" + b.Company + "\x00" + b.BatchID
}

// Evaluate tests all configured rules against every batch in snap.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Firing alerts whose condition is now false, or whose batch is no longer
// published, are resolved.
func (e *Engine) Evaluate(snap types.Snapshot) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	batches := snap.Batches()
	seen := make(map[string]bool, len(batches)*len(e.rules))

	e.mu.Lock()
	var outbox []*Alert
	for _, rule := range e.rules {
		for _, b := range batches {
			key := alertKey(rule.Name, b)
			seen[key] = true
			fires, value := evalCondition(rule.Condition, b)
			if fires {
				if a := e.fire(key, rule, b, value, now); a != nil {
					outbox = append(outbox, a)
				}
			} else if a := e.resolve(key, &b, now); a != nil {
				outbox = append(outbox, a)
			}
		}
	}
	for key := range e.active {
		if !seen[key] {
			if a := e.resolve(key, nil, now); a != nil {
				outbox = append(outbox, a)
			}
		}
	}
	e.mu.Unlock()

	for _, a := range outbox {
		e.send(a)
	}
}

// fire records a firing alert unless key is still cooling down. Must be
// called with e.mu held.
func (e *Engine) fire(key string, rule config.AlertRule, b types.BatchReport, value float64, now time.Time) *Alert {
	if a, firing := e.active[key]; firing {
		a.Value = value
		a.Batch = factsOf(b)
		return nil
	}
	cooldown := rule.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if last, ok := e.lastFire[key]; ok && now.Sub(last) <= cooldown {
		return nil
	}

	sev := rule.Severity
	if sev == "" {
		sev = "warning"
	}
	a := &Alert{
		ID:       fmt.Sprintf("%s:%s:%s:%d", rule.Name, b.Company, b.BatchID, now.UnixNano()),
		RuleName: rule.Name,
		Company:  b.Company,
		BatchID:  b.BatchID,
		Severity: sev,
		Value:    value,
		Message: fmt.Sprintf("[%s] %s fired on batch %s (%s): %s = %.2f",
			sev, rule.Name, b.BatchID, b.Company, rule.Condition, value),
		FiredAt: now,
		State:   StateFiring,
		Batch:   factsOf(b),
	}
	e.active[key] = a
	e.lastFire[key] = now

	slog.Warn("alert fired",
		"rule", rule.Name,
		"company", b.Company,
		"batch", b.BatchID,
		"value", value,
		"severity", sev,
	)
	cp := *a
	return &cp
}

// resolve moves a firing alert to history, recording b as the recovered
// batch when it is still published. Must be called with e.mu held.
func (e *Engine) resolve(key string, b *types.BatchReport, now time.Time) *Alert {
	a, ok := e.active[key]
	if !ok {
		return nil
	}
	if b != nil {
		a.Batch = factsOf(*b)
	}
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}

	slog.Info("alert resolved",
		"rule", a.RuleName,
		"company", a.Company,
		"batch", a.BatchID,
	)
	cp := *a
	return &cp
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FiredAt.Equal(out[j].FiredAt) {
			return out[i].FiredAt.After(out[j].FiredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Firing returns the number of currently firing alerts.
func (e *Engine) Firing() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}
