// Package brand provides centralized naming constants for selab.
//
// The identity is loaded from brand.json at compile time via go:embed so the
// binary, config search paths and journal location all agree on one name.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Vendor           string `json:"vendor"`
	Description      string `json:"description"`
	Tagline          string `json:"tagline"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	DefaultStateDir  string `json:"defaultStateDir"`
	BinaryName       string `json:"binaryName"`
	ConfigFileName   string `json:"configFileName"`
	HistoryFileName  string `json:"historyFileName"`
	AuditFileName    string `json:"auditFileName"`
	License          string `json:"license"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Description = b.Description
	Tagline = b.Tagline
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	DefaultStateDir = b.DefaultStateDir
	BinaryName = b.BinaryName
	ConfigFileName = b.ConfigFileName
	HistoryFileName = b.HistoryFileName
	AuditFileName = b.AuditFileName
}

var (
	Name             string
	LowerName        string
	Description      string
	Tagline          string
	ConfigEnvPrefix  string
	DefaultConfigDir string
	DefaultStateDir  string
	BinaryName       string
	ConfigFileName   string
	HistoryFileName  string
	AuditFileName    string

	// Version is set at build time via -ldflags
	Version   = "dev"
	GitCommit = "unknown"
)

// Get returns the full Brand struct
func Get() Brand {
	return b
}

// UserConfigDir returns the per-user directory selab keeps its files in.
// Priority: SELAB_CONFIG_DIR > os.UserConfigDir()/selab.
// The second return value is false when no per-user config directory exists,
// in which case callers fall back to a dotfile in the home directory.
func UserConfigDir() (string, bool) {
	if dir := os.Getenv(ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir, true
	}
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return "", false
	}
	return filepath.Join(base, LowerName), true
}

// HomeDotfile returns ~/.selab_<name>, or a relative dotfile when even the
// home directory cannot be determined.
func HomeDotfile(name string) string {
	dot := "." + LowerName + "_" + name
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return dot
	}
	return filepath.Join(home, dot)
}

// UserFile resolves a file that lives in the per-user config directory,
// falling back to a home dotfile.
func UserFile(name string) string {
	if dir, ok := UserConfigDir(); ok {
		return filepath.Join(dir, name)
	}
	return HomeDotfile(name)
}

// ConfigSearchPath lists config file candidates in priority order.
func ConfigSearchPath() []string {
	var paths []string
	if dir, ok := UserConfigDir(); ok {
		paths = append(paths, filepath.Join(dir, ConfigFileName))
	}
	paths = append(paths, filepath.Join(DefaultConfigDir, ConfigFileName))
	return paths
}
