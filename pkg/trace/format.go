package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

const (
	// EventCategory is the "cat" value of every event.
	EventCategory = "test"
	// EventPhaseComplete is the Trace Event Format complete-event phase.
	EventPhaseComplete = "X"
	// EventProcessID is the single synthetic process all lanes belong to.
	EventProcessID = 0
)

// Event is a Trace Event Format complete event. Field order is the wire
// order.
type Event struct {
	Name     string `json:"name"`
	Category string `json:"cat"`
	Phase    string `json:"ph"`
	TS       int64  `json:"ts"`
	Dur      int64  `json:"dur"`
	PID      int    `json:"pid"`
	TID      uint32 `json:"tid"`
}

// NewEvent maps a record to its event. Offsets are truncated to whole
// microseconds.
func NewEvent(r Record) Event {
	return Event{
		Name:     r.Name,
		Category: EventCategory,
		Phase:    EventPhaseComplete,
		TS:       r.Start.Microseconds(),
		Dur:      r.Duration.Microseconds(),
		PID:      EventProcessID,
		TID:      r.Lane,
	}
}

// Events maps records to events, preserving order.
func Events(records []Record) []Event {
	events := make([]Event, 0, len(records))
	for _, r := range records {
		events = append(events, NewEvent(r))
	}

	return events
}

// Marshal serializes records as a compact JSON array without a trailing
// newline. No records yields "[]". Names are written without HTML
// escaping.
func Marshal(records []Record) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(Events(records)); err != nil {
		return nil, fmt.Errorf("marshaling trace events: %w", err)
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// Write serializes records to w.
func Write(w io.Writer, records []Record) error {
	data, err := Marshal(records)
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing trace: %w", err)
	}

	return nil
}
