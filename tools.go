//go:build tools
// +build tools

// Package tools declares tool dependencies for this module.
//
// These imports are not used at runtime. They keep mockgen, invoked via
// `go generate`, tracked as an explicit module dependency.
package postbox

import (
	_ "go.uber.org/mock/mockgen"
)
