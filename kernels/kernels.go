// Package kernels embeds the device programs shipped with the binary.
package kernels

import _ "embed"

// Keccak256 is the selector search kernel. The host prepends the
// per-iteration #define block before compiling it.
//
//go:embed keccak256.cl
var Keccak256 string
