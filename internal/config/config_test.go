package config

import (
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TRANSPORT_URL", "wss://gateway.example.com/ws")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/whatsapp")
	t.Setenv("SEARCH_API_URL", "https://search.example.com/api/search")
	t.Setenv("SEARCH_API_KEY", "test-key")
	t.Setenv("SEARCH_QUERY", "diario oficial")
	t.Setenv("TRIGGER_PHRASES", "oi,menu")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", cfg.APIPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.GateTTLMinutes != 30 {
		t.Errorf("GateTTLMinutes = %d, want 30", cfg.GateTTLMinutes)
	}
	if cfg.DeliveryMaxAttempts != 3 {
		t.Errorf("DeliveryMaxAttempts = %d, want 3", cfg.DeliveryMaxAttempts)
	}
	if cfg.BatchMaxSize != 50 {
		t.Errorf("BatchMaxSize = %d, want 50", cfg.BatchMaxSize)
	}
	if cfg.SendDelayMinSeconds != 25 || cfg.SendDelayMaxSeconds != 30 {
		t.Errorf("send delay bounds = [%d,%d], want [25,30]", cfg.SendDelayMinSeconds, cfg.SendDelayMaxSeconds)
	}
	if cfg.CredentialsDir != "./session" {
		t.Errorf("CredentialsDir = %s, want ./session", cfg.CredentialsDir)
	}
	if cfg.RedisURL != "" {
		t.Errorf("RedisURL = %q, want empty", cfg.RedisURL)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GATE_TTL_MINUTES", "45")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", cfg.APIPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.GateTTLMinutes != 45 {
		t.Errorf("GateTTLMinutes = %d, want 45", cfg.GateTTLMinutes)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %s, want redis://localhost:6379/0", cfg.RedisURL)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("TRANSPORT_URL", "wss://gateway.example.com/ws")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/whatsapp")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required variables")
	}
}

func TestLoad_EmptyTriggerPhrases(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRIGGER_PHRASES", " , ,")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for blank trigger phrases")
	}
}

func TestLoad_InvalidSendDelayBounds(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SEND_DELAY_MIN_SECONDS", "30")
	t.Setenv("SEND_DELAY_MAX_SECONDS", "25")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for inverted send delay bounds")
	}
}

func TestTriggersSplitting(t *testing.T) {
	cfg := Config{TriggerPhrases: "Oi, menu ,,atendimento"}

	got := cfg.Triggers()
	want := []string{"Oi", "menu", "atendimento"}
	if len(got) != len(want) {
		t.Fatalf("Triggers() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Triggers()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
