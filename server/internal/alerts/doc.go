// Package alerts implements the rule evaluation engine and webhook delivery
// for fleet health alerting. Rules are evaluated against every batch of each
// newly loaded report snapshot; an alert is keyed by rule, company and batch.
// Webhooks are delivered to Teams, Slack, or generic HTTP targets.
package alerts
