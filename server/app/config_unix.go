//go:build !windows
// +build !windows

package app

const (
	defaultStateDir         = "/var/lib/depchain"
	defaultAPIServerAddress = "0.0.0.0:3000"
)
