// Package config loads application configuration from YAML, git config and CLI overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chmouel/gitpanel/internal/theme"
	"gopkg.in/yaml.v3"
)

// DefaultDiffExtensions lists the file extensions opened in diff views.
var DefaultDiffExtensions = []string{
	".py", ".go", ".js", ".jsx", ".ts", ".tsx", ".json", ".md", ".txt",
	".yaml", ".yml", ".toml", ".ini", ".cfg", ".sh", ".c", ".h", ".cpp",
	".hpp", ".java", ".rs", ".rb", ".css", ".scss", ".html", ".xml", ".sql",
	".ipynb", ".r", ".jl", ".lua", ".kt", ".swift", ".cs", ".php", ".pl",
}

// AppConfig defines the global gitpanel configuration options.
type AppConfig struct {
	BackendURL           string
	ServeAddr            string
	SimpleStaging        bool     // Discard restores tracked files to HEAD regardless of staging
	DoubleClickDiff      bool     // Activating a file opens its diff instead of the file
	DiffExtensions       []string // Extensions eligible for diff views
	CredentialRetryLimit int      // Rejected authenticated attempts before giving up; 0 is unlimited
	AutoRefresh          bool     // Watch the working tree and refresh on change
	RequestTimeout       time.Duration
	DebugLog             string
	Theme                string
	ShowIcons            bool
}

// DefaultConfig returns the default configuration values.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		BackendURL:           "http://127.0.0.1:8765",
		ServeAddr:            "127.0.0.1:8765",
		SimpleStaging:        false,
		DoubleClickDiff:      false,
		DiffExtensions:       append([]string{}, DefaultDiffExtensions...),
		CredentialRetryLimit: 0,
		AutoRefresh:          true,
		RequestTimeout:       30 * time.Second,
		Theme:                theme.DraculaName,
		ShowIcons:            true,
	}
}

func normalizeList(value any) []string {
	if value == nil {
		return []string{}
	}

	switch v := value.(type) {
	case string:
		return strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n'
		})
	case []any:
		items := []string{}
		for _, item := range v {
			if item == nil {
				continue
			}
			text := strings.TrimSpace(fmt.Sprintf("%v", item))
			if text != "" {
				items = append(items, text)
			}
		}
		return items
	}
	return []string{}
}

func normalizeExtensions(values []string) []string {
	seen := make(map[string]bool, len(values))
	exts := make([]string, 0, len(values))
	for _, v := range values {
		ext := strings.ToLower(strings.TrimSpace(v))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if seen[ext] {
			continue
		}
		seen[ext] = true
		exts = append(exts, ext)
	}
	return exts
}

func coerceBool(value any, defaultVal bool) bool {
	if value == nil {
		return defaultVal
	}

	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case string:
		text := strings.ToLower(strings.TrimSpace(v))
		switch text {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return defaultVal
}

func coerceInt(value any, defaultVal int) int {
	if value == nil {
		return defaultVal
	}

	switch v := value.(type) {
	case bool:
		return defaultVal
	case int:
		return v
	case string:
		text := strings.TrimSpace(v)
		if text == "" {
			return defaultVal
		}
		if i, err := strconv.Atoi(text); err == nil {
			return i
		}
	}
	return defaultVal
}

func stringValue(data map[string]any, key string) (string, bool) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return "", false
	}
	text := strings.TrimSpace(fmt.Sprintf("%v", raw))
	return text, text != ""
}

// applyConfig overlays the keys present in data onto cfg.
func applyConfig(cfg *AppConfig, data map[string]any) {
	if v, ok := stringValue(data, "backend_url"); ok {
		cfg.BackendURL = strings.TrimRight(v, "/")
	}
	if v, ok := stringValue(data, "serve_addr"); ok {
		cfg.ServeAddr = v
	}
	if v, ok := stringValue(data, "debug_log"); ok {
		cfg.DebugLog = v
	}
	if v, ok := stringValue(data, "theme"); ok {
		if normalized := NormalizeThemeName(v); normalized != "" {
			cfg.Theme = normalized
		}
	}

	if _, ok := data["simple_staging"]; ok {
		cfg.SimpleStaging = coerceBool(data["simple_staging"], cfg.SimpleStaging)
	}
	if _, ok := data["double_click_diff"]; ok {
		cfg.DoubleClickDiff = coerceBool(data["double_click_diff"], cfg.DoubleClickDiff)
	}
	if _, ok := data["auto_refresh"]; ok {
		cfg.AutoRefresh = coerceBool(data["auto_refresh"], cfg.AutoRefresh)
	}
	if _, ok := data["show_icons"]; ok {
		cfg.ShowIcons = coerceBool(data["show_icons"], cfg.ShowIcons)
	}

	if _, ok := data["credential_retry_limit"]; ok {
		if limit := coerceInt(data["credential_retry_limit"], cfg.CredentialRetryLimit); limit >= 0 {
			cfg.CredentialRetryLimit = limit
		}
	}
	if _, ok := data["request_timeout"]; ok {
		if secs := coerceInt(data["request_timeout"], -1); secs > 0 {
			cfg.RequestTimeout = time.Duration(secs) * time.Second
		}
	}

	if raw, ok := data["diff_extensions"]; ok {
		if exts := normalizeExtensions(normalizeList(raw)); len(exts) > 0 {
			cfg.DiffExtensions = exts
		}
	}
}

func parseConfig(data map[string]any) *AppConfig {
	cfg := DefaultConfig()
	applyConfig(cfg, data)
	return cfg
}

func getConfigDir() string {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}

// LoadConfig reads the YAML configuration and layers git config values from
// the global scope and, when repoPath is a repository, the local scope.
func LoadConfig(configPath, repoPath string) (*AppConfig, error) {
	configBase := filepath.Clean(filepath.Join(getConfigDir(), "gitpanel"))

	var paths []string
	if configPath != "" {
		expanded, err := expandPath(configPath)
		if err != nil {
			return DefaultConfig(), err
		}
		absPath, err := filepath.Abs(expanded)
		if err != nil {
			return DefaultConfig(), err
		}
		paths = []string{absPath}
	} else {
		paths = []string{
			filepath.Join(configBase, "config.yaml"),
			filepath.Join(configBase, "config.yml"),
		}
	}

	cfg := DefaultConfig()
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if configPath != "" {
				return cfg, fmt.Errorf("config file %s does not exist", path)
			}
			continue
		}

		// #nosec G304 -- path is either the XDG config location or passed explicitly by the user
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read %s: %w", path, err)
		}

		var yamlData map[string]any
		if err := yaml.Unmarshal(data, &yamlData); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		applyConfig(cfg, yamlData)
		break
	}

	if globalCfg, err := loadGitConfig(true, ""); err == nil {
		applyConfig(cfg, globalCfg)
	}
	if repoPath = determineRepoPath(repoPath); repoPath != "" {
		if localCfg, err := loadGitConfig(false, repoPath); err == nil {
			applyConfig(cfg, localCfg)
		}
	}

	return cfg, nil
}

// ApplyCLIOverrides applies --config=gp.key=value overrides, which take
// precedence over every other source.
func (c *AppConfig) ApplyCLIOverrides(overrides []string) error {
	data, err := parseCLIConfigOverrides(overrides)
	if err != nil {
		return err
	}
	applyConfig(c, data)
	return nil
}

// ExpandPath expands ~ and environment variables in path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return os.ExpandEnv(path), nil
}

// NormalizeThemeName maps user input to a known theme name, or "".
func NormalizeThemeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, known := range theme.AvailableThemes() {
		if name == known {
			return known
		}
	}
	return ""
}
