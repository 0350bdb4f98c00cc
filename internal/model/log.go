package model

import "maps"

// LogEntry is one event from the service's log, or a locally appended note.
//
// Time is kept as the string the service sent. It is usually a timestamp but
// may be the zero-time sentinel or an unparseable value; parsing is a display
// concern.
type LogEntry struct {
	Time    string         `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields"`
}

// Clone returns a copy of e whose Fields map is not shared with e.
func (e LogEntry) Clone() LogEntry {
	if e.Fields == nil {
		e.Fields = map[string]any{}
		return e
	}
	e.Fields = maps.Clone(e.Fields)
	return e
}
