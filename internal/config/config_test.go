package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lookupbot/internal/domain"
)

// --- Validate ---

func validConfig() *Config {
	cfg := Defaults()
	cfg.Telegram.OwnerID = 12345
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_MissingOwner(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for ownerId=0")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestValidate_InvalidLimits(t *testing.T) {
	for _, mutate := range []func(*Config){
		func(c *Config) { c.Limits.LookupTimeoutSeconds = 0 },
		func(c *Config) { c.Limits.InlineMaxLen = 0 },
		func(c *Config) { c.Limits.RedactedMaxLen = -1 },
		func(c *Config) { c.Limits.CacheTTLSeconds = 0 },
	} {
		cfg := validConfig()
		mutate(cfg)
		if err := Validate(cfg); err == nil {
			t.Fatal("expected error for non-positive limit")
		}
	}
}

func TestValidate_InvalidHealthPort(t *testing.T) {
	cfg := validConfig()
	cfg.Health.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}

	cfg.Health.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled health endpoint should skip port validation: %v", err)
	}
}

func TestValidate_GateChannelWithoutID(t *testing.T) {
	cfg := validConfig()
	cfg.Gate.Channels = []ForceJoinChannel{{Name: "Updates", Link: "https://t.me/updates"}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for gate channel with id=0")
	}
}

// --- env var expansion ---

func TestExpandEnvVars_Set(t *testing.T) {
	t.Setenv("LOOKUPBOT_TEST_TOKEN", "abc123")
	got := ExpandEnvVars(`{"token": "${LOOKUPBOT_TEST_TOKEN}"}`)
	if got != `{"token": "abc123"}` {
		t.Fatalf("unexpected expansion: %s", got)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("LOOKUPBOT_TEST_UNSET")
	got := ExpandEnvVars("${LOOKUPBOT_TEST_UNSET:-fallback}")
	if got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestExpandEnvVars_UnsetWithoutDefault(t *testing.T) {
	os.Unsetenv("LOOKUPBOT_TEST_UNSET")
	in := "${LOOKUPBOT_TEST_UNSET}"
	if got := ExpandEnvVars(in); got != in {
		t.Fatalf("expected original string preserved, got %q", got)
	}
}

// --- Load / Save round trip ---

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := validConfig()
	cfg.Branding.Developer = "@tester"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Branding.Developer != "@tester" {
		t.Fatalf("developer not round-tripped: %q", loaded.Branding.Developer)
	}
	if loaded.Limits.InlineMaxLen != 4096 {
		t.Fatalf("limits not round-tripped: %d", loaded.Limits.InlineMaxLen)
	}
}

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("LOOKUPBOT_TEST_TOKEN", "tok-xyz")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	raw := `{"telegram": {"token": "${LOOKUPBOT_TEST_TOKEN}", "ownerId": 7}}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Telegram.Token != "tok-xyz" {
		t.Fatalf("token not substituted: %q", cfg.Telegram.Token)
	}
}

// --- registry ---

func sampleSpecs() []domain.CommandSpec {
	return []domain.CommandSpec{
		{Name: "ip", Endpoint: "https://x.invalid/ip?q={}", Param: "IP", Desc: "IP info", AuditChannel: -100},
		{Name: "gst", Endpoint: "https://x.invalid/gst/{}", Param: "GST", Desc: "GST info", AuditChannel: -101},
	}
}

func TestNewRegistry_Valid(t *testing.T) {
	reg, err := NewRegistry(sampleSpecs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 commands, got %d", reg.Len())
	}
}

func TestNewRegistry_CaseInsensitiveGet(t *testing.T) {
	reg, err := NewRegistry(sampleSpecs())
	if err != nil {
		t.Fatal(err)
	}
	spec, ok := reg.Get("IP")
	if !ok {
		t.Fatal("expected lookup by upper-case name to succeed")
	}
	if spec.Name != "ip" {
		t.Fatalf("expected normalized name, got %q", spec.Name)
	}
}

func TestNewRegistry_DuplicateName(t *testing.T) {
	specs := sampleSpecs()
	specs[1].Name = "IP" // duplicate after normalization
	if _, err := NewRegistry(specs); err == nil {
		t.Fatal("expected error for duplicate name")
	}
}

func TestNewRegistry_SlotCount(t *testing.T) {
	specs := sampleSpecs()
	specs[0].Endpoint = "https://x.invalid/ip" // no slot
	if _, err := NewRegistry(specs); err == nil {
		t.Fatal("expected error for endpoint without slot")
	}

	specs = sampleSpecs()
	specs[0].Endpoint = "https://x.invalid/{}/{}" // two slots
	if _, err := NewRegistry(specs); err == nil {
		t.Fatal("expected error for endpoint with two slots")
	}
}

func TestNewRegistry_MissingAuditChannel(t *testing.T) {
	specs := sampleSpecs()
	specs[0].AuditChannel = 0
	if _, err := NewRegistry(specs); err == nil {
		t.Fatal("expected error for missing audit channel")
	}
}

func TestLoadRegistry_SampleYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commands.yaml")
	if err := os.WriteFile(path, []byte(SampleRegistryYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("sample registry failed to load: %v", err)
	}
	if reg.Len() != 4 {
		t.Fatalf("expected 4 sample commands, got %d", reg.Len())
	}

	spec, ok := reg.Get("tg2num")
	if !ok {
		t.Fatal("tg2num missing from sample registry")
	}
	if len(spec.DropFields) != 3 {
		t.Fatalf("expected 3 drop_fields for tg2num, got %v", spec.DropFields)
	}
}

func TestRegistry_AllPreservesOrder(t *testing.T) {
	reg, err := NewRegistry(sampleSpecs())
	if err != nil {
		t.Fatal(err)
	}
	all := reg.All()
	if all[0].Name != "ip" || all[1].Name != "gst" {
		t.Fatalf("file order not preserved: %v", all)
	}
}

// --- accessor ---

func TestGetByPath(t *testing.T) {
	cfg := validConfig()
	val, err := GetByPath(cfg, "limits.inlineMaxLen")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	// JSON round-trip yields float64 for numbers
	if val.(float64) != 4096 {
		t.Fatalf("unexpected value: %v", val)
	}
}

func TestSetByPath(t *testing.T) {
	cfg := validConfig()
	if err := SetByPath(cfg, "general.groupOnly", "true"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if !cfg.General.GroupOnly {
		t.Fatal("groupOnly not updated")
	}
}

func TestSanitize_MasksToken(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Token = "123456:secret-token-value"
	out := Sanitize(cfg)
	if out.Telegram.Token == cfg.Telegram.Token {
		t.Fatal("token not masked")
	}
	if strings.Contains(out.Telegram.Token, "secret") {
		t.Fatalf("masked token leaks secret: %q", out.Telegram.Token)
	}
	// Original untouched
	if cfg.Telegram.Token != "123456:secret-token-value" {
		t.Fatal("sanitize mutated the original config")
	}
}
