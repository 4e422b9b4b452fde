package model

import (
	"encoding/json"
	"time"
)

// HAR represents the root of an HTTP Archive document.
//
// W3C Spec: https://w3c.github.io/web-performance/specs/HAR/Overview.html
type HAR struct {
	Log Log `json:"log"`
}

// NewHAR creates a new HTTP Archive document with the provided Creator Name.
func NewHAR(creatorName, version string) *HAR {
	if version == "" {
		version = time.Now().Format("20060102150405")
	}

	return &HAR{
		Log: Log{
			Version: "1.2",
			Creator: Creator{
				Name:    creatorName,
				Version: version,
			},
			Entries: []json.RawMessage{},
		},
	}
}

// Log represents a set of pages. Page loads measured by the harness carry no
// request level detail, so Entries is always empty.
type Log struct {
	Version string  `json:"version"`
	Creator Creator `json:"creator"`

	// Browser that produced the page timings.
	Browser *Creator `json:"browser,omitempty"`

	Pages   []Page            `json:"pages,omitempty"`
	Entries []json.RawMessage `json:"entries"`

	Comment string `json:"comment,omitempty"`
}

// Creator describes the source of the log.
type Creator struct {
	// Name of the creator source.
	Name string `json:"name"`

	// Version of the creator source.
	Version string `json:"version"`

	// Comment can be added by the user
	Comment string `json:"comment,omitempty"`
}

// Page is a single page load.
type Page struct {
	// Start of the page load (ISO 8601)
	Start string `json:"startedDateTime"`

	// ID used to reference this page grouping
	ID string `json:"id"`

	// Title of the page
	Title string `json:"title"`

	// PageTimings contains detailing timing info about the page load
	PageTimings PageTiming `json:"pageTimings"`

	// Comment can be added by the user
	Comment string `json:"comment,omitempty"`
}

// PageTiming contains DOM-related page timing information.
type PageTiming struct {
	// OnContentLoad is milliseconds since Start for page content to be loaded.
	OnContentLoad float64 `json:"onContentLoad,omitempty"`

	// OnLoad is milliseconds since Start until the accepted completion signal.
	OnLoad float64 `json:"onLoad,omitempty"`

	// Comment can be added by the user
	Comment string `json:"comment,omitempty"`
}
