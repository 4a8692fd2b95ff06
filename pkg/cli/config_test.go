package cli

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"1234", "****"},
		{"12345678", "********"},
		{"123456789", "1234*6789"},
		{"Bearer abcdef123456", "Bear***********3456"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := MaskSecret(tt.key); got != tt.want {
				t.Errorf("MaskSecret(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestLoadConfigWithPath_NewConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "convrelay", "config.yaml")

	cfg, err := LoadConfigWithPath("convrelay", configPath)
	if err != nil {
		t.Fatalf("LoadConfigWithPath error: %v", err)
	}
	if cfg.AppName != "convrelay" {
		t.Errorf("AppName = %q, want %q", cfg.AppName, "convrelay")
	}
	if cfg.Contexts == nil {
		t.Error("Contexts should be initialized")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file should be created")
	}
}

func TestConfig_RoundTrip(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := LoadConfigWithPath("convrelay", configPath)
	if err != nil {
		t.Fatalf("LoadConfigWithPath error: %v", err)
	}
	want := &Context{
		Endpoint:      "wss://relay.example.com/ws/audio",
		AudioDevice:   "USB",
		BlockSize:     2048,
		Resampler:     "soxr",
		AllowInsecure: true,
		Keepalive:     15,
		Timeout:       5,
		RecordDir:     "/tmp/rec",
		Headers:       map[string]string{"Authorization": "Bearer x"},
	}
	if err := cfg.AddContext("prod", want); err != nil {
		t.Fatalf("AddContext error: %v", err)
	}
	if err := cfg.UseContext("prod"); err != nil {
		t.Fatalf("UseContext error: %v", err)
	}

	loaded, err := LoadConfigWithPath("convrelay", configPath)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if loaded.CurrentContext != "prod" {
		t.Errorf("CurrentContext = %q, want prod", loaded.CurrentContext)
	}
	got, err := loaded.ResolveContext("")
	if err != nil {
		t.Fatalf("ResolveContext error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("context = %+v, want %+v", got, want)
	}
}

func TestConfig_DeleteContext(t *testing.T) {
	cfg, err := LoadConfigWithPath("convrelay", filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigWithPath error: %v", err)
	}

	cfg.AddContext("ctx1", &Context{Endpoint: "ws://a"})
	cfg.AddContext("ctx2", &Context{Endpoint: "ws://b"})
	cfg.UseContext("ctx1")

	if err := cfg.DeleteContext("ctx2"); err != nil {
		t.Fatalf("DeleteContext error: %v", err)
	}
	if _, ok := cfg.Contexts["ctx2"]; ok {
		t.Error("Context should be deleted")
	}

	if err := cfg.DeleteContext("ctx1"); err != nil {
		t.Fatalf("DeleteContext error: %v", err)
	}
	if cfg.CurrentContext != "" {
		t.Errorf("CurrentContext should be cleared, got %q", cfg.CurrentContext)
	}

	if err := cfg.DeleteContext("nonexistent"); err == nil {
		t.Error("DeleteContext should fail for a missing context")
	}
}

func TestConfig_ResolveContext(t *testing.T) {
	cfg, err := LoadConfigWithPath("convrelay", filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigWithPath error: %v", err)
	}

	// No context at all resolves to an empty one.
	ctx, err := cfg.ResolveContext("")
	if err != nil || ctx == nil || ctx.Endpoint != "" {
		t.Errorf("ResolveContext(\"\") = %+v, %v", ctx, err)
	}

	if _, err := cfg.ResolveContext("missing"); err == nil {
		t.Error("ResolveContext should fail for a missing context")
	}

	cfg.AddContext("b", &Context{})
	cfg.AddContext("a", &Context{})
	if got := cfg.ListContexts(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("ListContexts() = %v", got)
	}
}

func TestContext_Durations(t *testing.T) {
	ctx := &Context{Keepalive: 30, Timeout: 4}
	if got := ctx.KeepaliveInterval(); got != 30*time.Second {
		t.Errorf("KeepaliveInterval() = %v", got)
	}
	if got := ctx.HandshakeTimeout(); got != 4*time.Second {
		t.Errorf("HandshakeTimeout() = %v", got)
	}
}

func TestContext_Headers(t *testing.T) {
	ctx := &Context{}
	if ctx.Header() != nil {
		t.Error("Header() should be nil without headers")
	}

	for _, pair := range []string{"Authorization: Bearer secret-token", "x-trace=abc"} {
		if err := ctx.SetHeader(pair); err != nil {
			t.Fatalf("SetHeader(%q): %v", pair, err)
		}
	}
	if err := ctx.SetHeader("novalue"); err == nil {
		t.Error("SetHeader accepted a pair without separator")
	}

	h := ctx.Header()
	if got := h.Get("Authorization"); got != "Bearer secret-token" {
		t.Errorf("Authorization = %q", got)
	}
	if got := h.Get("X-Trace"); got != "abc" {
		t.Errorf("X-Trace = %q", got)
	}

	masked := ctx.Masked()
	if masked.Headers["Authorization"] == "Bearer secret-token" {
		t.Error("Masked() kept the header value")
	}
	if ctx.Headers["Authorization"] != "Bearer secret-token" {
		t.Error("Masked() modified the original")
	}
}
