// SPDX-License-Identifier: MIT
//
// Package plugin holds the registry of visualization plugins and the
// contract they implement.
//
// Exactly one registered plugin (or none) is active at a time. Frames are
// delivered to it from the audio callback through Registry.Dispatch, while
// registration and activation happen on a control goroutine such as the
// terminal UI. The dispatch path never waits for the control path; the
// control path waits for in-flight dispatches instead.
package plugin

import "vizpipe/internal/analysis"

// Plugin is a visualization renderer.
type Plugin interface {
	// Render consumes one analysis frame. It runs on the audio callback and
	// must return quickly without blocking; frame slices are only valid until
	// it returns.
	Render(frame analysis.Frame)

	// Configure applies a plugin-defined setting. The registry does not
	// interpret key or value. It may be called concurrently with Render.
	Configure(key string, value any)
}

// Lifecycle is implemented by plugins that want to know when they become
// active or inactive. Both hooks run on the control path and never overlap
// a Render call on the same plugin.
type Lifecycle interface {
	Activated()
	Deactivated()
}

// Viewer is implemented by plugins that draw into the terminal UI.
type Viewer interface {
	View(width, height int) string
}

// Descriptor identifies a registered plugin.
type Descriptor struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"displayName" yaml:"display_name"`
}
