package events

import (
	"encoding/json"
	"testing"
)

func TestNewAndDecodeRoundTrip(t *testing.T) {
	env, err := New(SqlCheckRequested, "corr-1", RequestPayload{
		JobID:       "job-1",
		TaskID:      "task-1",
		FileName:    "a.sql",
		SQLFilePath: "jobs/job-1/a.sql",
		Dialect:     "mysql",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if env.EventID == "" || env.EventType != SqlCheckRequested || env.CorrelationID != "corr-1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	var got RequestPayload
	if err := env.Decode(&got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.JobID != "job-1" || got.Dialect != "mysql" {
		t.Fatalf("decoded payload mismatch: %+v", got)
	}
}

func TestUnknownPayloadFieldsSurviveWireRoundTrip(t *testing.T) {
	raw := []byte(`{"event_id":"evt-1","event_type":"SqlCheckRequested","timestamp":"2024-01-01T00:00:00.000000Z","correlation_id":"c","payload":{"job_id":"job-1","future_field":"kept"}}`)

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	reencoded, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var roundTripped map[string]any
	if err := json.Unmarshal(reencoded, &roundTripped); err != nil {
		t.Fatalf("unmarshal roundtrip: %v", err)
	}
	payload := roundTripped["payload"].(map[string]any)
	if payload["future_field"] != "kept" {
		t.Fatalf("expected unknown payload field preserved, got %+v", payload)
	}
}
