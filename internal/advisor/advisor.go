// Package advisor holds operator guidance keyed by boolean name or AVC
// denial, loaded from a tips file or built-in defaults.
package advisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"

	"grimm.is/selab/internal/logging"
	"grimm.is/selab/internal/policy"
)

// Advice is one tip.
type Advice struct {
	Key         string `json:"key" yaml:"key"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Risk        string `json:"risk" yaml:"risk"`
	Suggestion  string `json:"suggestion" yaml:"suggestion"`
}

// Advisor is a read-only knowledge base.
type Advisor struct {
	tips map[string]Advice
}

// New loads path when it is set and readable, and falls back to the
// built-in tips otherwise.
func New(path string, logger *logging.Logger) *Advisor {
	if logger == nil {
		logger = logging.WithComponent("advisor")
	}
	if path != "" {
		a, err := LoadFile(path)
		if err == nil {
			logger.Debug("tips loaded", "path", path, "count", len(a.tips))
			return a
		}
		logger.Warn("tips file unusable, using built-in tips", "path", path, "error", err)
	}
	return Defaults()
}

// LoadFile reads a YAML (.yaml/.yml) or JSON tips list.
func LoadFile(path string) (*Advisor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tips: %w", err)
	}

	var tips []Advice
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &tips)
	default:
		err = json.Unmarshal(data, &tips)
	}
	if err != nil {
		return nil, fmt.Errorf("parse tips %s: %w", path, err)
	}

	a := &Advisor{tips: make(map[string]Advice, len(tips))}
	for _, t := range tips {
		if t.Key == "" {
			continue
		}
		a.tips[t.Key] = t
	}
	return a, nil
}

// Defaults returns the built-in tips.
func Defaults() *Advisor {
	a := &Advisor{tips: make(map[string]Advice)}
	for _, t := range []Advice{
		{
			Key:         "httpd_can_network_connect",
			Title:       "Allow the web server to open outbound connections",
			Description: "Needed when the site calls external APIs or other servers.",
			Risk:        "Medium",
			Suggestion:  "Enable only if the site really makes outbound requests.",
		},
		{
			Key:         "ftpd_anon_write",
			Title:       "Anonymous FTP uploads",
			Description: "Lets anonymous users upload files to the server.",
			Risk:        "High",
			Suggestion:  "Keep it off unless you are sure. This is a common attack vector.",
		},
		{
			Key:         "httpd_read_user_content",
			Title:       "Web server access to home directories",
			Description: "Lets Apache or Nginx read files under /home/<user>/public_html.",
			Risk:        "Medium",
			Suggestion:  "Enable if you host user sites.",
		},
	} {
		a.tips[t.Key] = t
	}
	return a
}

// Get returns the tip for key.
func (a *Advisor) Get(key string) (Advice, bool) {
	t, ok := a.tips[key]
	return t, ok
}

// Keys lists every known key, sorted.
func (a *Advisor) Keys() []string {
	keys := make([]string, 0, len(a.tips))
	for k := range a.tips {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AlertKey is the lookup key for a denial: "avc:<source type>:<permission>".
func AlertKey(alert policy.AVCAlert) string {
	return "avc:" + alert.SourceType() + ":" + alert.Permission
}

// ForAlert returns the tip for a denial, trying the specific key, then
// the source type alone. Without a match it describes the denial from
// its severity.
func (a *Advisor) ForAlert(alert policy.AVCAlert) Advice {
	if t, ok := a.tips[AlertKey(alert)]; ok {
		return t
	}
	if t, ok := a.tips["avc:"+alert.SourceType()]; ok {
		return t
	}

	suggestion := "Check whether the access is expected before generating a local module."
	if alert.Severity == policy.SeverityHigh {
		suggestion = "Do not allow this blindly. Investigate the process first."
	}
	return Advice{
		Key:   AlertKey(alert),
		Title: fmt.Sprintf("%s denied %s on %s", alert.Comm, alert.Permission, alert.TargetClass),
		Description: fmt.Sprintf("Domain %s tried to %s a %s labelled %s.",
			alert.SourceType(), alert.Permission, alert.TargetClass, alert.TargetType()),
		Risk:       string(alert.Severity),
		Suggestion: suggestion,
	}
}
