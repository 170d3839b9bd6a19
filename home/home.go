// ABOUTME: Storage and path provider: guild home, runs dir, and support root.
// ABOUTME: Also supplies the sanitized environment base for child processes.
package home

import (
	"os"
	"path/filepath"
	"strings"
)

// sensitiveSuffixes are environment variable name suffixes never passed to
// operation processes.
var sensitiveSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// Dir returns the guild home directory: $GUILD_HOME if set, otherwise
// ~/.guild.
func Dir() string {
	if dir := os.Getenv("GUILD_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".guild"
	}
	return filepath.Join(home, ".guild")
}

// RunsDir returns the root directory under which run directories are
// allocated.
func RunsDir() string {
	return filepath.Join(Dir(), "runs")
}

// IndexPath returns the location of the sqlite run index.
func IndexPath() string {
	return filepath.Join(Dir(), "index.db")
}

// SupportRoot returns the installation root holding the tool's bundled
// runtime-support files: the directory containing the running binary.
// Returns "" if the executable path cannot be resolved.
func SupportRoot() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(exe)
}

// SafeEnv returns a sanitized copy of the ambient process environment:
// the tool's own GUILD_* variables and credential-suffixed names are
// excluded.
func SafeEnv() map[string]string {
	env := make(map[string]string)
	for _, entry := range os.Environ() {
		name, val, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(name, "GUILD_") || isSensitiveVar(name) {
			continue
		}
		env[name] = val
	}
	return env
}

func isSensitiveVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}
