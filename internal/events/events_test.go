package events

import (
	"testing"
)

func TestNewEvent(t *testing.T) {
	data := map[string]interface{}{
		"session_id": "abc",
	}

	event := NewEvent(EventSessionStarted, 42, data)

	if event == nil {
		t.Fatal("event should not be nil")
	}

	if event.EventType != EventSessionStarted {
		t.Errorf("event type = %v, want %v", event.EventType, EventSessionStarted)
	}

	if event.StationID != 42 {
		t.Errorf("station id = %v, want 42", event.StationID)
	}

	if event.EventID == "" {
		t.Error("event id should not be empty")
	}

	if event.Nonce == "" {
		t.Error("nonce should not be empty")
	}

	if event.Timestamp == 0 {
		t.Error("timestamp should not be zero")
	}
}

func TestSessionEndedDataToMap(t *testing.T) {
	kwh := 12.5
	data := &SessionEndedData{
		SessionID:       "s-1",
		UserID:          7,
		StationID:       42,
		DurationMinutes: 90,
		EnergyKwh:       &kwh,
		EndedAt:         1234567890,
	}

	m := data.ToMap()

	if m["session_id"] != "s-1" {
		t.Errorf("session_id = %v, want s-1", m["session_id"])
	}
	if m["duration_minutes"] != int32(90) {
		t.Errorf("duration_minutes = %v, want 90", m["duration_minutes"])
	}
	if m["energy_kwh"] != 12.5 {
		t.Errorf("energy_kwh = %v, want 12.5", m["energy_kwh"])
	}
}

func TestSessionEndedDataToMapOmitsNilEnergy(t *testing.T) {
	data := &SessionEndedData{SessionID: "s-1"}
	if _, ok := data.ToMap()["energy_kwh"]; ok {
		t.Error("nil energy_kwh should be omitted")
	}
}

func TestAllEventTypes(t *testing.T) {
	eventTypes := []EventType{
		EventSessionStarted,
		EventSessionEnded,
		EventStationReported,
		EventStationVerified,
	}

	for i, et := range eventTypes {
		if et == "" {
			t.Errorf("event type at index %d is empty", i)
		}
	}
}
