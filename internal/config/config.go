package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"pulseboard/internal/domain"
)

// Config models pulseboard.yml.
type Config struct {
	Project struct {
		Name string `yaml:"name"`
	} `yaml:"project"`
	Scoring struct {
		// Points awarded at creation time per priority tier.
		Points map[string]int `yaml:"points"`
		// TeamAward makes completion of a team-assigned task without a
		// member assignee award every roster member. Off by default to
		// match the dashboard's behavior, where such tasks award nobody.
		TeamAward bool `yaml:"team_award"`
	} `yaml:"scoring"`
	Stats StatsSeed `yaml:"stats"`
}

// StatsSeed seeds the read-only UserStats snapshot. The core exposes it
// verbatim; streak/level/badge update rules live outside this system.
type StatsSeed struct {
	TotalPoints       int      `yaml:"total_points"`
	CurrentStreak     int      `yaml:"current_streak"`
	LongestStreak     int      `yaml:"longest_streak"`
	TasksCompleted    int      `yaml:"tasks_completed"`
	OnTimeRate        int      `yaml:"on_time_rate"`
	Level             int      `yaml:"level"`
	PointsToNextLevel int      `yaml:"points_to_next_level"`
	Badges            []string `yaml:"badges"`
}

// PointsFor returns the point value for a priority tier.
func (c *Config) PointsFor(priority string) int {
	return c.Scoring.Points[priority]
}

// UserStats builds the singleton stats snapshot from the seed.
func (c *Config) UserStats() domain.UserStats {
	return domain.UserStats{
		TotalPoints:       c.Stats.TotalPoints,
		CurrentStreak:     c.Stats.CurrentStreak,
		LongestStreak:     c.Stats.LongestStreak,
		TasksCompleted:    c.Stats.TasksCompleted,
		OnTimeRate:        c.Stats.OnTimeRate,
		Level:             c.Stats.Level,
		PointsToNextLevel: c.Stats.PointsToNextLevel,
		Badges:            append([]string(nil), c.Stats.Badges...),
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.Name == "" {
		return fmt.Errorf("config.project.name is required")
	}
	if c.Scoring.Points == nil {
		return fmt.Errorf("config.scoring.points is required")
	}
	for _, tier := range []string{domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh} {
		v, ok := c.Scoring.Points[tier]
		if !ok {
			return fmt.Errorf("config.scoring.points.%s is required", tier)
		}
		if v <= 0 {
			return fmt.Errorf("config.scoring.points.%s must be positive", tier)
		}
	}
	for tier := range c.Scoring.Points {
		switch tier {
		case domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh:
		default:
			return fmt.Errorf("config.scoring.points has unknown tier %s", tier)
		}
	}
	if c.Stats.OnTimeRate < 0 || c.Stats.OnTimeRate > 100 {
		return fmt.Errorf("config.stats.on_time_rate must be a percentage")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "pulseboard.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a project name.
func Default(projectName string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, projectName))).Decode(&cfg)
	cfg.Project.Name = projectName
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectName string) string {
	return fmt.Sprintf(defaultTemplate, projectName)
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

const defaultTemplate = `project:
  name: %s

scoring:
  points:
    low: 10
    medium: 15
    high: 25
  team_award: false

stats:
  total_points: 0
  current_streak: 0
  longest_streak: 0
  tasks_completed: 0
  on_time_rate: 100
  level: 1
  points_to_next_level: 100
  badges: []
`
