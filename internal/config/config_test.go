package config_test

import (
	"strings"
	"testing"

	"requestline/internal/config"
	"requestline/internal/resolver"
)

const customYAML = `service:
  id: test
types:
  - id: record-review
    name: review
    statuses:
      - {name: created, kind: undefined}
      - {name: submitted, kind: open}
      - {name: approved, kind: closed}
      - {name: rejected, kind: closed}
    actions:
      create: {from_unset: true, to: created, event: request.create}
      submit: {from_unset: true, from: [created], to: submitted, event: request.submit}
      approve: {from: [submitted], to: approved, event: request.approve}
      reject: {from: [submitted], to: rejected, event: request.reject}
      cancel: {from: [submitted], to: rejected, guard: creator}
    creator:
      kinds: [user]
    receiver:
      kinds: [group]
    topic:
      optional: true
      kinds: [record]
    payload:
      reason: {type: string, required: true}
`

func TestFromYAMLBuildsCustomType(t *testing.T) {
	cfg, err := config.FromYAML([]byte(customYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	types, err := cfg.BuildTypes(resolver.NewRegistry())
	if err != nil {
		t.Fatalf("build types: %v", err)
	}
	if len(types) != 1 {
		t.Fatalf("expected one type, got %d", len(types))
	}
	rt := types[0]
	if rt.ID != "record-review" || rt.Name != "review" {
		t.Fatalf("type identity: %s %s", rt.ID, rt.Name)
	}
	if len(rt.Statuses) != 4 || len(rt.Actions) != 5 {
		t.Fatalf("statuses=%d actions=%d", len(rt.Statuses), len(rt.Actions))
	}
	if rt.Actions["cancel"].Guard == nil {
		t.Fatal("creator guard not bound")
	}
	if rt.Actions["approve"].Guard != nil {
		t.Fatal("approve should carry no guard")
	}
	if !rt.TopicCanBeNone || rt.CreatorCanBeNone {
		t.Fatal("slot optionality mismatch")
	}
	spec, ok := rt.PayloadFields["reason"]
	if !ok || !spec.Required || spec.Type != "string" {
		t.Fatalf("payload spec mismatch: %+v", spec)
	}
}

func TestBuildTypesRejectsUnknownTransitionTarget(t *testing.T) {
	yaml := strings.Replace(customYAML, "to: approved", "to: nowhere", 1)
	cfg, err := config.FromYAML([]byte(yaml))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := cfg.BuildTypes(resolver.NewRegistry()); err == nil {
		t.Fatal("expected unknown target status to fail type build")
	}
}

func TestValidateRejectsUnknownStatusKind(t *testing.T) {
	yaml := strings.Replace(customYAML, "kind: open", "kind: ajar", 1)
	if _, err := config.FromYAML([]byte(yaml)); err == nil {
		t.Fatal("expected unknown status kind to fail validation")
	}
}

func TestValidateRejectsUnknownGuard(t *testing.T) {
	yaml := strings.Replace(customYAML, "guard: creator", "guard: wizard", 1)
	if _, err := config.FromYAML([]byte(yaml)); err == nil {
		t.Fatal("expected unknown guard to fail validation")
	}
}

func TestValidateRejectsBadNumberPolicy(t *testing.T) {
	yaml := customYAML + "numbers:\n  policy: fancy\n"
	if _, err := config.FromYAML([]byte(yaml)); err == nil {
		t.Fatal("expected bad numbers.policy to fail validation")
	}
}

func TestNumberPolicyDefault(t *testing.T) {
	var cfg *config.Config
	if got := cfg.NumberPolicy(); got != "sequential" {
		t.Fatalf("nil config policy: %s", got)
	}
	cfg = &config.Config{}
	if got := cfg.NumberPolicy(); got != "sequential" {
		t.Fatalf("empty policy: %s", got)
	}
	cfg.Numbers.Policy = "random"
	if got := cfg.NumberPolicy(); got != "random" {
		t.Fatalf("random policy: %s", got)
	}
}

func TestDefaultTemplateParses(t *testing.T) {
	cfg := config.Default("requestline")
	if cfg.Service.ID != "requestline" {
		t.Fatalf("service id: %s", cfg.Service.ID)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	types, err := cfg.BuildTypes(resolver.NewRegistry())
	if err != nil {
		t.Fatalf("build default types: %v", err)
	}
	if len(types) != 1 || types[0].ID != "record-access" {
		t.Fatalf("expected the record-access type, got %v", types)
	}
}
