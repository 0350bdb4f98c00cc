// Package model defines the entities synchronized between Watchboard and the
// monitoring service: checks and log entries.
//
// The JSON field names match the service's wire format. Types in this package
// are plain values; ownership and mutation rules live in the store package.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Check is a watched resource: a URL, a CSS selector evaluated against the
// page, and the schedule the service checks it on.
//
// ID is assigned by the service. A zero ID means the check has not been
// persisted yet and is never addressable.
type Check struct {
	// ID is the service-assigned identifier. Zero means unassigned.
	ID uint64 `json:"id"`

	// URL is the page being watched.
	URL string `json:"url"`

	// Selector is the CSS selector whose text content is fingerprinted.
	Selector string `json:"selector"`

	// Schedule is the cron expression the service checks on.
	Schedule string `json:"schedule"`

	// LastChecked is when the service last completed a check. The service
	// sends the zero time when no check has completed; see [Check.NeverChecked].
	LastChecked time.Time `json:"last_checked"`

	// LastHash is the fingerprint of the selected content. Empty when absent.
	LastHash string `json:"last_hash"`

	// Seen reports whether the latest change has been acknowledged.
	Seen bool `json:"seen"`
}

// NeverChecked reports whether the service has never completed a check.
//
// The decision is made on LastHash rather than LastChecked: the service
// serializes "never" as a syntactically valid zero timestamp.
func (c Check) NeverChecked() bool {
	return c.LastHash == ""
}

// CheckPatch is a partially populated [Check] as received from the service.
//
// Only fields present in the payload are non-nil. Merging compares and
// overwrites exactly those fields.
type CheckPatch struct {
	ID          *uint64    `json:"id,omitempty"`
	URL         *string    `json:"url,omitempty"`
	Selector    *string    `json:"selector,omitempty"`
	Schedule    *string    `json:"schedule,omitempty"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
	LastHash    *string    `json:"last_hash,omitempty"`
	Seen        *bool      `json:"seen,omitempty"`
}

// PatchOf returns a patch carrying every field of c.
func PatchOf(c Check) CheckPatch {
	return CheckPatch{
		ID:          &c.ID,
		URL:         &c.URL,
		Selector:    &c.Selector,
		Schedule:    &c.Schedule,
		LastChecked: &c.LastChecked,
		LastHash:    &c.LastHash,
		Seen:        &c.Seen,
	}
}

// DecodeCheckPatch decodes a JSON object into a [CheckPatch].
//
// The object must carry a non-zero id; an unaddressable patch cannot be
// reconciled against anything.
func DecodeCheckPatch(data []byte) (CheckPatch, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return CheckPatch{}, fmt.Errorf("check payload is empty")
	}
	p, err := DecodePartialCheck(data)
	if err != nil {
		return CheckPatch{}, err
	}
	if p.ID == nil || *p.ID == 0 {
		return CheckPatch{}, fmt.Errorf("check payload has no id")
	}
	return p, nil
}

// DecodePartialCheck decodes a JSON object into a [CheckPatch] without
// requiring an id. Empty input yields an empty patch.
func DecodePartialCheck(data []byte) (CheckPatch, error) {
	var p CheckPatch
	if len(bytes.TrimSpace(data)) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return CheckPatch{}, fmt.Errorf("failed to decode check: %w", err)
	}
	return p, nil
}

// Key returns the patch's check id, or zero if it carries none.
func (p CheckPatch) Key() uint64 {
	if p.ID == nil {
		return 0
	}
	return *p.ID
}

// Apply returns a Check built from the fields present in p, starting from
// the zero Check. Used when the patch introduces a check not yet known.
func (p CheckPatch) Apply() Check {
	c, _ := Merge(Check{}, p)
	return c
}

// Merge overwrites every field of current that is present in p and differs.
//
// It returns the merged check and whether any field changed. The id is never
// rewritten once assigned.
func Merge(current Check, p CheckPatch) (Check, bool) {
	changed := false

	if p.ID != nil && current.ID == 0 && *p.ID != 0 {
		current.ID = *p.ID
		changed = true
	}
	if p.URL != nil && *p.URL != current.URL {
		current.URL = *p.URL
		changed = true
	}
	if p.Selector != nil && *p.Selector != current.Selector {
		current.Selector = *p.Selector
		changed = true
	}
	if p.Schedule != nil && *p.Schedule != current.Schedule {
		current.Schedule = *p.Schedule
		changed = true
	}
	// time.Time carries a location; compare instants, not representations
	if p.LastChecked != nil && !p.LastChecked.Equal(current.LastChecked) {
		current.LastChecked = *p.LastChecked
		changed = true
	}
	if p.LastHash != nil && *p.LastHash != current.LastHash {
		current.LastHash = *p.LastHash
		changed = true
	}
	if p.Seen != nil && *p.Seen != current.Seen {
		current.Seen = *p.Seen
		changed = true
	}

	return current, changed
}
