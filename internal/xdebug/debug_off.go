//go:build !debug

// Package xdebug provides assertions that compile to no-ops in release
// builds and panic in builds tagged "debug".
package xdebug

func ON() bool { return false }

func Assert(_ bool, _ ...any)            {}
func Assertf(_ bool, _ string, _ ...any) {}
func AssertNoErr(_ error)                {}
