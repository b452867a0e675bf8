// Package sqlrow provides the JSON row encoding shared by the bundled SQL
// persistence adapters (postgres, mysql, sqlite). A commit is stored as
// one row; its events are a single JSON array column rather than a
// per-event table, since the core never inspects event bodies and a
// commit is the unit of atomicity and ordering, not an event.
package sqlrow

import (
	"encoding/json"
	"fmt"

	"github.com/parchment-es/eventstore/es"
)

type eventRow struct {
	Headers map[string]any `json:"headers,omitempty"`
	Body    []byte         `json:"body"`
}

// EncodeEvents marshals a commit's events to a JSON array.
func EncodeEvents(events []es.EventMessage) ([]byte, error) {
	rows := make([]eventRow, len(events))
	for i, e := range events {
		rows[i] = eventRow{Headers: e.Headers, Body: e.Body}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode events: %w", err)
	}
	return data, nil
}

// DecodeEvents unmarshals a commit's events from a JSON array.
func DecodeEvents(data []byte) ([]es.EventMessage, error) {
	var rows []eventRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	events := make([]es.EventMessage, len(rows))
	for i, r := range rows {
		events[i] = es.EventMessage{Headers: r.Headers, Body: r.Body}
	}
	return events, nil
}

// EncodeHeaders marshals commit-level headers to JSON.
func EncodeHeaders(headers map[string]any) ([]byte, error) {
	if headers == nil {
		headers = map[string]any{}
	}
	data, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("encode headers: %w", err)
	}
	return data, nil
}

// DecodeHeaders unmarshals commit-level headers from JSON.
func DecodeHeaders(data []byte) (map[string]any, error) {
	headers := map[string]any{}
	if len(data) == 0 {
		return headers, nil
	}
	if err := json.Unmarshal(data, &headers); err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	return headers, nil
}
