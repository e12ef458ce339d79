package advisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/selab/internal/logging"
	"grimm.is/selab/internal/policy"
)

func TestDefaults(t *testing.T) {
	a := Defaults()
	assert.Equal(t, []string{"ftpd_anon_write", "httpd_can_network_connect", "httpd_read_user_content"}, a.Keys())

	tip, ok := a.Get("ftpd_anon_write")
	require.True(t, ok)
	assert.Equal(t, "High", tip.Risk)

	_, ok = a.Get("missing")
	assert.False(t, ok)
}

func TestLoadFile_YAMLAndJSON(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "tips.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
- key: sample_boolean
  title: Sample
  risk: Low
  suggestion: Leave it.
- key: avc:httpd_t:execute
  title: httpd executing
  risk: High
`), 0o600))

	a, err := LoadFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"avc:httpd_t:execute", "sample_boolean"}, a.Keys())

	jsonPath := filepath.Join(dir, "tips.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"key":"x","title":"X"},{"title":"no key"}]`), 0o600))
	a, err = LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, a.Keys())
}

func TestNew_FallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "tips.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))

	assert.Equal(t, Defaults().Keys(), New(bad, logging.Discard()).Keys())
	assert.Equal(t, Defaults().Keys(), New(filepath.Join(dir, "missing.yaml"), logging.Discard()).Keys())
	assert.Equal(t, Defaults().Keys(), New("", logging.Discard()).Keys())
}

func TestForAlert(t *testing.T) {
	alert := policy.AVCAlert{
		SourceContext: "system_u:system_r:httpd_t:s0",
		TargetContext: "system_u:object_r:shell_exec_t:s0",
		TargetClass:   "file",
		Permission:    "execute",
		Comm:          "httpd",
		Severity:      policy.SeverityHigh,
	}

	generic := Defaults().ForAlert(alert)
	assert.Equal(t, "avc:httpd_t:execute", generic.Key)
	assert.Equal(t, "High", generic.Risk)
	assert.Contains(t, generic.Description, "shell_exec_t")
	assert.Contains(t, generic.Suggestion, "Investigate")

	a := &Advisor{tips: map[string]Advice{
		"avc:httpd_t": {Key: "avc:httpd_t", Title: "any httpd denial"},
	}}
	assert.Equal(t, "any httpd denial", a.ForAlert(alert).Title)

	a.tips["avc:httpd_t:execute"] = Advice{Key: "avc:httpd_t:execute", Title: "specific"}
	assert.Equal(t, "specific", a.ForAlert(alert).Title)
}
