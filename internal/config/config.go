package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models grantflow.yml.
type Config struct {
	Deployment struct {
		ID string `yaml:"id"`
	} `yaml:"deployment"`
	Review struct {
		ReviewersPerProposal int `yaml:"reviewers_per_proposal"`
		DeadlineDays         int `yaml:"deadline_days"`
	} `yaml:"review"`
	Revision struct {
		MaxCount int `yaml:"max_count"`
	} `yaml:"revision"`
	Termins []TerminConfig `yaml:"termins"`
	Screening struct {
		Checklist map[string]ChecklistItem `yaml:"checklist"`
	} `yaml:"screening"`
	Auth struct {
		JWTSecret            string `yaml:"jwt_secret"`
		AllowAnonymous       bool   `yaml:"allow_anonymous"`
		AllowLegacyActorHead bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type TerminConfig struct {
	Termin int `yaml:"termin"`
	Share  int `yaml:"share"`
}

type ChecklistItem struct {
	Description string `yaml:"description"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run gf init first", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Deployment.ID == "" {
		return fmt.Errorf("config.deployment.id is required")
	}
	if c.Review.ReviewersPerProposal < 1 {
		return fmt.Errorf("config.review.reviewers_per_proposal must be at least 1")
	}
	if c.Review.DeadlineDays < 1 {
		return fmt.Errorf("config.review.deadline_days must be at least 1")
	}
	if c.Revision.MaxCount < 0 {
		return fmt.Errorf("config.revision.max_count must not be negative")
	}
	if len(c.Termins) == 0 {
		return fmt.Errorf("config.termins is required")
	}
	total := 0
	seen := map[int]bool{}
	for i, t := range c.Termins {
		if t.Termin != i+1 {
			return fmt.Errorf("config.termins must be numbered consecutively from 1, got %d at position %d", t.Termin, i+1)
		}
		if t.Share <= 0 {
			return fmt.Errorf("termin %d share must be positive", t.Termin)
		}
		if seen[t.Termin] {
			return fmt.Errorf("termin %d defined twice", t.Termin)
		}
		seen[t.Termin] = true
		total += t.Share
	}
	if total != 100 {
		return fmt.Errorf("termin shares must sum to 100, got %d", total)
	}
	for key, item := range c.Screening.Checklist {
		if key == "" {
			return fmt.Errorf("config.screening.checklist contains empty key")
		}
		if item.Description == "" {
			return fmt.Errorf("checklist item %s has empty description", key)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d has negative timeout", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "grantflow.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(deploymentID string) string {
	return fmt.Sprintf(defaultTemplate, deploymentID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a deployment.
func Default(deploymentID string) *Config {
	var cfg Config
	cfg.Deployment.ID = deploymentID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, deploymentID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `deployment:
  id: %s

review:
  reviewers_per_proposal: 2
  deadline_days: 7

revision:
  max_count: 2

termins:
  - termin: 1
    share: 50
  - termin: 2
    share: 25
  - termin: 3
    share: 25

screening:
  checklist:
    writing_technique:
      description: "Proposal follows the required writing and formatting guidelines"
    component_completeness:
      description: "All mandatory proposal components are present"

auth:
  allow_anonymous: false
  allow_legacy_actor_header: false
`
