//go:build tools
// +build tools

// Package tools pins the generators invoked by go:generate (mockgen)
// so go.mod and go.sum stay in sync on a fresh checkout.
package mini_chat

import (
	_ "go.uber.org/mock/mockgen"
)
