// Package enhance defines the external image-enhancement collaborator and
// the providers that implement it.
package enhance

import "context"

// Request describes one enhancement invocation.
type Request struct {
	WorkID       string
	SourceURL    string
	Preset       string // e.g. "sky_replace", "declutter", "hdr_merge"
	Instructions string
}

// Result is what a provider hands back on success.
type Result struct {
	OutputURL string `json:"output_url"`
	Format    string `json:"format,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// Enhancer is implemented by external enhancement providers. Calls may take
// tens of seconds; providers must honor ctx cancellation and return a
// classified error rather than swallowing failures.
type Enhancer interface {
	Enhance(ctx context.Context, req Request) (*Result, error)
}
