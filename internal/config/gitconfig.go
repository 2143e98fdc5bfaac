package config

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// gitConfigMock allows tests to mock git config output.
var gitConfigMock func(args []string, repoPath string) (string, error)

// runGitConfig executes git config command and returns raw output.
func runGitConfig(args []string, repoPath string) (string, error) {
	if gitConfigMock != nil {
		return gitConfigMock(args, repoPath)
	}

	cmd := exec.Command("git", args...)
	if repoPath != "" {
		cmd.Dir = repoPath
	}

	output, err := cmd.Output()
	if err != nil {
		// git config returns exit code 1 when key not found (not an error)
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", err
	}
	return string(output), nil
}

// parseGitConfigOutput parses git config output into multi-value map.
// Input format: "gp.backend_url http://127.0.0.1:8765\ngp.simple_staging true\n"
func parseGitConfigOutput(output string) map[string][]string {
	configMap := make(map[string][]string)
	if output == "" {
		return configMap
	}

	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}

		// git lowercases the key and keeps underscores as written.
		key := strings.TrimPrefix(parts[0], "gp.")
		configMap[key] = append(configMap[key], parts[1])
	}

	return configMap
}

// convertGitConfig converts to the map shape consumed by applyConfig.
func convertGitConfig(gitCfg map[string][]string) map[string]any {
	result := make(map[string]any)

	for key, values := range gitCfg {
		if len(values) == 0 {
			continue
		}
		if len(values) > 1 {
			anySlice := make([]any, len(values))
			for i, v := range values {
				anySlice[i] = v
			}
			result[key] = anySlice
			continue
		}
		result[key] = values[0]
	}

	return result
}

// loadGitConfig reads gp.* values from the global or local git config.
func loadGitConfig(globalOnly bool, repoPath string) (map[string]any, error) {
	args := []string{"config", "--get-regexp", "^gp\\."}
	if globalOnly {
		args = append(args, "--global")
	} else {
		args = append(args, "--local")
	}

	output, err := runGitConfig(args, repoPath)
	if err != nil {
		return nil, err
	}
	return convertGitConfig(parseGitConfigOutput(output)), nil
}

// isInGitRepo checks if path is in a git repository.
func isInGitRepo(path string) bool {
	if path == "" {
		return false
	}
	if gitConfigMock != nil {
		_, err := gitConfigMock([]string{"rev-parse", "--git-dir"}, path)
		return err == nil
	}
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = path
	return cmd.Run() == nil
}

// determineRepoPath returns repo path for local git config lookup.
func determineRepoPath(dir string) string {
	if dir != "" && isInGitRepo(dir) {
		return dir
	}
	if dir == "" {
		if wd, err := os.Getwd(); err == nil && isInGitRepo(wd) {
			return wd
		}
	}
	return ""
}

// parseCLIConfigOverrides parses --config=gp.key=value format.
func parseCLIConfigOverrides(overrides []string) (map[string]any, error) {
	result := make(map[string]any)
	keyCount := make(map[string]int)

	for _, override := range overrides {
		parts := strings.SplitN(override, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config override: %q, expected format: gp.key=value (note: use = not space)", override)
		}

		fullKey := parts[0]
		value := parts[1]

		if !strings.HasPrefix(fullKey, "gp.") {
			return nil, fmt.Errorf("config override key must start with 'gp.': %q", fullKey)
		}

		key := strings.TrimPrefix(fullKey, "gp.")
		if key == "" {
			return nil, fmt.Errorf("empty config key in override: %q", override)
		}

		keyCount[key]++
		switch keyCount[key] {
		case 1:
			result[key] = value
		case 2:
			result[key] = []any{result[key].(string), value}
		default:
			result[key] = append(result[key].([]any), value)
		}
	}

	return result, nil
}
