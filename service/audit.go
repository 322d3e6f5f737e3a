package service

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// AuditSink receives decision events. Sink failures are caught and logged at
// the orchestrator boundary, never propagated to the caller.
type AuditSink interface {
	EmitDecisionEvent(event map[string]interface{}) error
}

// LogAuditSink writes decision events to the process log.
type LogAuditSink struct{}

// EmitDecisionEvent logs the event's key fields.
func (LogAuditSink) EmitDecisionEvent(event map[string]interface{}) error {
	log.Printf("decision_event request_id=%v case_id=%v decision=%v model_id=%v",
		event["request_id"], event["case_id"], event["decision"], event["model_id"])
	return nil
}

// JSONLAuditSink appends one compact JSON object per event to a file.
type JSONLAuditSink struct {
	Path string
}

// EmitDecisionEvent appends the event to the JSONL file, creating parent
// directories as needed.
func (s JSONLAuditSink) EmitDecisionEvent(event map[string]interface{}) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	file, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit sink: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// NewAuditSink selects a sink by name: "jsonl" requires a path, anything
// else falls back to the log sink.
func NewAuditSink(kind, jsonlPath string) AuditSink {
	if kind == "jsonl" && jsonlPath != "" {
		return JSONLAuditSink{Path: jsonlPath}
	}
	return LogAuditSink{}
}
