package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"requestline/internal/resolver"
	"requestline/internal/workflow"
)

// Config models requestline.yml.
type Config struct {
	Service struct {
		ID string `yaml:"id"`
	} `yaml:"service"`
	Numbers struct {
		Policy string `yaml:"policy"` // sequential or random
	} `yaml:"numbers"`
	Sweep struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"sweep"`
	Auth struct {
		JWTSecret        string `yaml:"jwt_secret"`
		AllowActorHeader bool   `yaml:"allow_actor_header"`
	} `yaml:"auth"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Types    []TypeConfig    `yaml:"types"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// TypeConfig declares a custom request type. Registered after the builtin
// generic type; set force to replace an existing registration.
type TypeConfig struct {
	ID           string                  `yaml:"id"`
	Name         string                  `yaml:"name"`
	Force        bool                    `yaml:"force"`
	Statuses     []StatusConfig          `yaml:"statuses"`
	Actions      map[string]ActionConfig `yaml:"actions"`
	Creator      SlotConfig              `yaml:"creator"`
	Receiver     SlotConfig              `yaml:"receiver"`
	Topic        SlotConfig              `yaml:"topic"`
	NeedsContext map[string]any          `yaml:"needs_context"`
	Payload      map[string]FieldConfig  `yaml:"payload"`
}

type StatusConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // open, closed or undefined
}

type ActionConfig struct {
	FromUnset bool     `yaml:"from_unset"`
	From      []string `yaml:"from"`
	To        string   `yaml:"to"`
	Event     string   `yaml:"event"`
	Guard     string   `yaml:"guard"` // "", "creator" or "system"
}

type SlotConfig struct {
	Optional bool     `yaml:"optional"`
	Kinds    []string `yaml:"kinds"`
}

type FieldConfig struct {
	Type     string `yaml:"type"`
	Required bool   `yaml:"required"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with rl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
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

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Numbers.Policy {
	case "", "sequential", "random":
	default:
		return fmt.Errorf("numbers.policy must be sequential or random")
	}
	if c.Sweep.IntervalSeconds < 0 {
		return fmt.Errorf("sweep.interval_seconds must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
	}
	for _, t := range c.Types {
		if t.ID == "" {
			return fmt.Errorf("types entry missing id")
		}
		if len(t.Statuses) == 0 {
			return fmt.Errorf("type %s declares no statuses", t.ID)
		}
		for _, s := range t.Statuses {
			switch workflow.StatusKind(s.Kind) {
			case workflow.Open, workflow.Closed, workflow.Undefined:
			default:
				return fmt.Errorf("type %s status %s has unknown kind %s", t.ID, s.Name, s.Kind)
			}
		}
		for name, a := range t.Actions {
			if a.To == "" {
				return fmt.Errorf("type %s action %s has no target status", t.ID, name)
			}
			switch a.Guard {
			case "", "creator", "system":
			default:
				return fmt.Errorf("type %s action %s has unknown guard %s", t.ID, name, a.Guard)
			}
		}
	}
	return nil
}

// NumberPolicy returns the effective request-number policy.
func (c *Config) NumberPolicy() string {
	if c == nil || c.Numbers.Policy == "" {
		return "sequential"
	}
	return c.Numbers.Policy
}

// BuildTypes converts declared type configs into workflow descriptors. Guard
// names bind to the builtin guards against the provided resolver chain.
func (c *Config) BuildTypes(resolvers *resolver.Registry) ([]*workflow.RequestType, error) {
	var out []*workflow.RequestType
	for _, tc := range c.Types {
		statuses := make([]workflow.Status, 0, len(tc.Statuses))
		for _, s := range tc.Statuses {
			statuses = append(statuses, workflow.Status{Name: s.Name, Kind: workflow.StatusKind(s.Kind)})
		}
		actions := make(map[string]workflow.Action, len(tc.Actions))
		for name, ac := range tc.Actions {
			a := workflow.Action{
				FromUnset: ac.FromUnset,
				From:      ac.From,
				To:        ac.To,
				EventType: ac.Event,
			}
			switch ac.Guard {
			case "creator":
				a.Guard = workflow.CreatorGuard(resolvers)
			case "system":
				a.Guard = workflow.SystemGuard()
			}
			actions[name] = a
		}
		fields := make(map[string]workflow.FieldSpec, len(tc.Payload))
		for name, fc := range tc.Payload {
			fields[name] = workflow.FieldSpec{Type: fc.Type, Required: fc.Required}
		}
		t := &workflow.RequestType{
			ID:                      tc.ID,
			Name:                    tc.Name,
			Statuses:                statuses,
			Actions:                 actions,
			CreatorCanBeNone:        tc.Creator.Optional,
			ReceiverCanBeNone:       tc.Receiver.Optional,
			TopicCanBeNone:          tc.Topic.Optional,
			AllowedCreatorRefKinds:  tc.Creator.Kinds,
			AllowedReceiverRefKinds: tc.Receiver.Kinds,
			AllowedTopicRefKinds:    tc.Topic.Kinds,
			NeedsContext:            tc.NeedsContext,
			PayloadFields:           fields,
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("type %s: %w", tc.ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "requestline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(serviceID string) string {
	return fmt.Sprintf(defaultTemplate, serviceID)
}

// Default returns the default Config struct.
func Default(serviceID string) *Config {
	var cfg Config
	cfg.Service.ID = serviceID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, serviceID))).Decode(&cfg)
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

const defaultTemplate = `service:
  id: %s

numbers:
  policy: sequential

sweep:
  interval_seconds: 60

auth:
  allow_actor_header: true

types:
  - id: record-access
    name: access
    statuses:
      - {name: created, kind: undefined}
      - {name: submitted, kind: open}
      - {name: accepted, kind: closed}
      - {name: declined, kind: closed}
      - {name: cancelled, kind: closed}
      - {name: expired, kind: closed}
      - {name: deleted, kind: undefined}
    actions:
      create: {from_unset: true, to: created, event: request.create}
      submit: {from_unset: true, from: [created], to: submitted, event: request.submit}
      delete: {from: [created], to: deleted, event: request.delete}
      accept: {from: [submitted], to: accepted, event: request.accept}
      decline: {from: [submitted], to: declined, event: request.decline}
      cancel: {from: [submitted], to: cancelled, event: request.cancel, guard: creator}
      expire: {from: [submitted], to: expired, event: request.expire, guard: system}
    creator:
      kinds: [user]
    receiver:
      kinds: [user, group]
    topic:
      kinds: [record]
    payload:
      comment: {type: string}
`
