//go:build windows
// +build windows

package app

const (
	defaultStateDir         = "C:\\ProgramData\\depchain"
	defaultAPIServerAddress = "127.0.0.1:3000"
)
