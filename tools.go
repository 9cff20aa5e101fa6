//go:build tools

// Tool dependencies invoked through go generate (mockgen), tracked here so
// go.mod keeps them.
package main

import (
	_ "go.uber.org/mock/mockgen"
)
