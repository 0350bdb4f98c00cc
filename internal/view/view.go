// Package view holds display-time transforms of store snapshots.
//
// Nothing here mutates a store; the functions take snapshot data and return
// new rows ready for rendering.
package view

import (
	"cmp"
	"slices"
	"time"

	"github.com/jpalmerr/watchboard/internal/model"
)

// goTimeLayout is the layout of time.Time.String(), which the service uses
// for log timestamps.
const goTimeLayout = "2006-01-02 15:04:05.999999999 -0700 MST"

// LogRow is a log entry prepared for display.
type LogRow struct {
	model.LogEntry

	// At is the parsed time; zero when Unparseable.
	At time.Time `json:"at"`

	// Unparseable marks an entry whose time could not be read. Such rows
	// sort after every parseable row.
	Unparseable bool `json:"unparseable,omitempty"`
}

// ParseLogTime reads a log timestamp in RFC 3339 or time.Time.String()
// form.
func ParseLogTime(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(goTimeLayout, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// SortLogs returns entries newest first. Entries with the same time and all
// unparseable entries keep their arrival order.
func SortLogs(entries []model.LogEntry) []LogRow {
	rows := make([]LogRow, len(entries))
	for i, e := range entries {
		at, ok := ParseLogTime(e.Time)
		rows[i] = LogRow{LogEntry: e, At: at, Unparseable: !ok}
	}

	slices.SortStableFunc(rows, func(a, b LogRow) int {
		switch {
		case a.Unparseable && b.Unparseable:
			return 0
		case a.Unparseable:
			return 1
		case b.Unparseable:
			return -1
		}
		return b.At.Compare(a.At)
	})
	return rows
}

// CheckRow is a check prepared for display.
type CheckRow struct {
	model.Check

	// NeverChecked is true until the service has fetched the page once.
	NeverChecked bool `json:"never_checked"`
}

// CheckRows returns checks with unseen changes first, then by id.
func CheckRows(checks []model.Check) []CheckRow {
	rows := make([]CheckRow, len(checks))
	for i, c := range checks {
		rows[i] = CheckRow{Check: c, NeverChecked: c.NeverChecked()}
	}

	slices.SortFunc(rows, func(a, b CheckRow) int {
		if a.Seen != b.Seen {
			if !a.Seen {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return rows
}

// Unseen counts checks with changes the user has not looked at.
func Unseen(checks []model.Check) int {
	n := 0
	for _, c := range checks {
		if !c.Seen {
			n++
		}
	}
	return n
}
