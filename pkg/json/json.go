// SPDX-License-Identifier: MIT
package json

import jsoniter "github.com/json-iterator/go"

var (
	// JSON is the jsoniter configuration used throughout the codebase.
	JSON = jsoniter.ConfigCompatibleWithStandardLibrary

	// Marshal is a shorthand for JSON.Marshal
	Marshal = JSON.Marshal

	// MarshalIndent is a shorthand for JSON.MarshalIndent
	MarshalIndent = JSON.MarshalIndent

	// Unmarshal is a shorthand for JSON.Unmarshal
	Unmarshal = JSON.Unmarshal

	// NewEncoder is a shorthand for JSON.NewEncoder
	NewEncoder = JSON.NewEncoder
)
