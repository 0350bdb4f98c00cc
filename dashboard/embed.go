// Package dashboard provides the embedded web UI assets for Watchboard.
//
// The page is a thin shell: it renders the snapshots the mirror server
// streams over Server-Sent Events and calls the mirror's action endpoints.
// It holds no state of its own.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Dashboard page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
