// Package models defines the rows shared by the manifest, the HTTP API and the MCP tools.
package models

import "time"

// Fragment is a rendered artifact known to the fragment cache.
type Fragment struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Artifact   string    `json:"artifact"`
	Checksum   string    `json:"checksum"`
	Zoom       float64   `json:"zoom"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// Label is a resolved cross-reference: namespace is "fig", "equ" or "bib".
type Label struct {
	Namespace string `json:"namespace"`
	Label     string `json:"label"`
	Display   string `json:"display"`
	Chapter   string `json:"chapter,omitempty"`
}

// FileMeta describes a file under a storage root.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
