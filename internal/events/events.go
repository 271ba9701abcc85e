// sqlcheck is a SQL-quality-analysis orchestration service.
// Copyright (C) 2025  Matthew Burns
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package events defines the canonical envelope carried on the bus and its
// JSON wire encoding. The payload is kept as raw JSON until a consumer
// decodes it into a typed struct, so fields a given consumer does not know
// about survive an encode/decode round trip instead of being dropped.
package events

import (
	"encoding/json"
	"time"

	"sqlcheck/internal/ids"
)

// Type is the stable event-type enum carried in every envelope.
type Type string

const (
	SqlCheckRequested Type = "SqlCheckRequested"
	SqlCheckCompleted Type = "SqlCheckCompleted"
	SqlCheckFailed    Type = "SqlCheckFailed"
	WorkerHeartbeat   Type = "WorkerHeartbeat"
)

// Topic names the two logical bus channels.
type Topic string

const (
	TopicRequests Topic = "sql_check_requests"
	TopicResults  Topic = "sql_check_events"
)

// BatchTriplet identifies a file's position within an archive submission so
// an external aggregator can reconstruct per-archive outcomes.
type BatchTriplet struct {
	BatchID    string `json:"batch_id,omitempty"`
	FileIndex  int    `json:"file_index,omitempty"`
	TotalFiles int    `json:"total_files,omitempty"`
}

// Envelope is the canonical record carried on both bus channels. Payload is
// kept as raw JSON rather than eagerly unmarshaled into a typed struct, so
// that fields a given consumer does not know about survive an encode/decode
// round trip verbatim instead of being dropped.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     Type            `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
}

// New builds an envelope around a typed payload, marshaling it to the
// canonical payload field.
func New(eventType Type, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       ids.New(ids.PrefixEvent),
		EventType:     eventType,
		Timestamp:     ids.Now(),
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

// Decode unmarshals the envelope's payload into out.
func (e Envelope) Decode(out any) error {
	return json.Unmarshal(e.Payload, out)
}

// RequestPayload is the payload of a SqlCheckRequested event.
type RequestPayload struct {
	JobID           string            `json:"job_id"`
	TaskID          string            `json:"task_id"`
	FileName        string            `json:"file_name"`
	SQLFilePath     string            `json:"sql_file_path"`
	Dialect         string            `json:"dialect"`
	Rules           []string          `json:"rules,omitempty"`
	ExcludeRules    []string          `json:"exclude_rules,omitempty"`
	ConfigOverrides map[string]string `json:"config_overrides,omitempty"`
	UserID          string            `json:"user_id,omitempty"`
	ProductName     string            `json:"product_name,omitempty"`
	BatchTriplet
}

// CompletedPayload is the payload of a SqlCheckCompleted event.
type CompletedPayload struct {
	JobID              string         `json:"job_id"`
	TaskID             string         `json:"task_id"`
	FileName           string         `json:"file_name"`
	Result             map[string]any `json:"result"`
	ResultFilePath     string         `json:"result_file_path"`
	ProcessingDuration float64        `json:"processing_duration"`
	WorkerID           string         `json:"worker_id"`
	BatchTriplet
}

// FailedPayload is the payload of a SqlCheckFailed event.
type FailedPayload struct {
	JobID            string      `json:"job_id"`
	TaskID           string      `json:"task_id"`
	FileName         string      `json:"file_name"`
	Error            ErrorDetail `json:"error"`
	WorkerID         string      `json:"worker_id"`
	RetriesExhausted bool        `json:"retries_exhausted,omitempty"`
	BatchTriplet
}

// ErrorDetail is the structured error carried on a SqlCheckFailed payload.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// HeartbeatPayload is the payload of a WorkerHeartbeat event.
type HeartbeatPayload struct {
	WorkerID       string  `json:"worker_id"`
	CurrentTasks   int     `json:"current_tasks"`
	TotalProcessed int64   `json:"total_processed"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	Status         string  `json:"status"`
}

const (
	HeartbeatIdle = "IDLE"
	HeartbeatBusy = "BUSY"
)
