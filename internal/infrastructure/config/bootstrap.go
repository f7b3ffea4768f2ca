package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// AppName is the canonical application name.
const AppName = "zenus"

// HomeDir returns the user's zenus configuration home: ~/.zenus
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+AppName)
}

// Bootstrap ensures ~/.zenus and its persistent-state subtree exist (spec §6
// "Persistent state layout (under <state_root>)"). Safe to call multiple
// times — only creates missing items, never overwrites user edits.
func Bootstrap(logger *zap.Logger, stateRoot string) error {
	root := HomeDir()
	if stateRoot == "" {
		stateRoot = filepath.Join(root, "state")
	}

	dirs := []string{
		root,
		stateRoot,
		filepath.Join(stateRoot, "backups"),
		filepath.Join(stateRoot, "cache"),
		filepath.Join(stateRoot, "workflows"),
		filepath.Join(stateRoot, "prompts"),
		filepath.Join(stateRoot, "prompts", "variants"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(root, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if werr := os.WriteFile(configPath, []byte(defaultConfigYAML), 0o644); werr != nil {
			logger.Warn("failed to write default config.yaml", zap.String("path", configPath), zap.Error(werr))
		} else {
			logger.Info("zenus bootstrap: wrote default config", zap.String("path", configPath))
		}
	}

	logger.Debug("zenus home directory ready", zap.String("home", root), zap.String("state_root", stateRoot))
	return nil
}

const defaultConfigYAML = `# zenus configuration
# Auto-generated on first launch — feel free to edit.

state_root: ""   # defaults to ~/.zenus/state

llm:
  provider: local
  model: ""
  max_tokens: 4096

router:
  force_model: ""   # local | cheap | mid | top, empty = auto-route

feedback:
  sample_rate: 0.10
  prompts_enabled: true

cache:
  ttl_seconds: 3600
  max_entries: 500

executor:
  max_workers: 4
  step_deadline_seconds: 300

iterative:
  batch_size: 12
  max_total: 50

sandbox:
  allowed_roots: []
  read_only_roots: []
  allowed_bins: ["git", "npm", "pip", "docker", "systemctl"]
  enable_network: false

log:
  level: info
  format: json
`
