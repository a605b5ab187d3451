package sse

import "encoding/json"

// Event is one server-sent event.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// FormatSSE renders the event in text/event-stream framing.
func (e Event) FormatSSE() string {
	data, err := json.Marshal(e.Data)
	if err != nil {
		data, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return "event: " + e.Type + "\ndata: " + string(data) + "\n\n"
}
