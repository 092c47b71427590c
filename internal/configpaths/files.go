// Package configpaths resolves configuration file candidates for gadgetsim,
// the demo CLI that drives the X360 and custom HID class drivers.
package configpaths

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// DefaultConfigDir returns the platform-specific configuration directory for gadgetsim.
func DefaultConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if appdata := os.Getenv("AppData"); appdata != "" {
			return filepath.Join(appdata, "gadgetsim"), nil
		}
		return "", errors.New("AppData not set")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "gadgetsim"), nil
		}
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, ".config", "gadgetsim"), nil
		}
		return "", errors.New("HOME not set")
	}
}

// DefaultConfigPath returns the default config file path for the given format.
func DefaultConfigPath(format string) (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	ext := "json"
	switch format {
	case "yaml", "yml":
		ext = "yaml"
	case "toml":
		ext = "toml"
	}
	return filepath.Join(dir, "gadgetsim."+ext), nil
}

// EnsureDir ensures the directory for a given file path exists.
func EnsureDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return os.MkdirAll(dir, 0o755)
}

// ConfigCandidatePaths builds candidate paths for config files per format.
// If userPath is provided, it is prioritized and routed to the matching
// loader by extension.
func ConfigCandidatePaths(userPath string) (jsonPaths, yamlPaths, tomlPaths []string) {
	add := func(slice *[]string, p string) { *slice = append(*slice, p) }

	if userPath != "" {
		switch filepath.Ext(userPath) {
		case ".json":
			add(&jsonPaths, userPath)
		case ".yaml", ".yml":
			add(&yamlPaths, userPath)
		case ".toml":
			add(&tomlPaths, userPath)
		default:
			add(&jsonPaths, userPath)
		}
	}

	wd, _ := os.Getwd()
	add(&jsonPaths, filepath.Join(wd, "gadgetsim.json"))
	add(&yamlPaths, filepath.Join(wd, "gadgetsim.yaml"))
	add(&yamlPaths, filepath.Join(wd, "gadgetsim.yml"))
	add(&tomlPaths, filepath.Join(wd, "gadgetsim.toml"))

	if dir, err := DefaultConfigDir(); err == nil {
		add(&jsonPaths, filepath.Join(dir, "gadgetsim.json"))
		add(&yamlPaths, filepath.Join(dir, "gadgetsim.yaml"))
		add(&yamlPaths, filepath.Join(dir, "gadgetsim.yml"))
		add(&tomlPaths, filepath.Join(dir, "gadgetsim.toml"))
	}

	if runtime.GOOS != "windows" {
		add(&jsonPaths, filepath.Join("/etc/gadgetsim", "gadgetsim.json"))
		add(&yamlPaths, filepath.Join("/etc/gadgetsim", "gadgetsim.yaml"))
		add(&yamlPaths, filepath.Join("/etc/gadgetsim", "gadgetsim.yml"))
		add(&tomlPaths, filepath.Join("/etc/gadgetsim", "gadgetsim.toml"))
	}

	return
}
