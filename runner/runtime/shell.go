package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

type OS string

const (
	OSWindows OS = "windows"
	OSLinux   OS = "linux"
	OSMacOS   OS = "macos"
	OSUnknown OS = "unknown"
)

func GetHostOS() OS {
	switch runtime.GOOS {
	case "windows":
		return OSWindows
	case "darwin":
		return OSMacOS
	case "linux":
		return OSLinux
	default:
		return OSUnknown
	}
}

// ShellOrDefault returns shell if set, otherwise the default shell of the platform.
func ShellOrDefault(platform OS, shell *string) string {
	if shell != nil && *shell != "" {
		return *shell
	}
	if platform == OSWindows {
		return "C:\\Windows\\System32\\cmd.exe"
	}
	return "/bin/sh"
}

// WriteScript writes commands to an executable script called name in dir, one command per line.
// POSIX scripts stop at the first failing command.
func WriteScript(platform OS, dir string, name string, commands []string) (string, error) {
	var lines []string
	if platform == OSWindows {
		// Windows cmd.exe requires scripts to end in ".bat", or they won't be executed
		name += ".bat"
		lines = append(lines, "@echo off")
		for _, command := range commands {
			lines = append(lines, command, "if %errorlevel% neq 0 exit /b %errorlevel%")
		}
	} else {
		lines = append(lines, "set -e")
		lines = append(lines, commands...)
	}
	path := filepath.Join(dir, name)
	err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0755)
	if err != nil {
		return "", fmt.Errorf("error writing script: %w", err)
	}
	return path, nil
}
