package infra

import (
	"testing"
	"time"

	"listinglens/internal/domain"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.MaxConcurrent != 3 {
		t.Fatalf("MaxConcurrent = %d, want 3", cfg.MaxConcurrent)
	}
	if cfg.MaxQueueSize != 50 {
		t.Fatalf("MaxQueueSize = %d, want 50", cfg.MaxQueueSize)
	}
	if cfg.ProcessingTimeout != 2*time.Minute {
		t.Fatalf("ProcessingTimeout = %s, want 2m", cfg.ProcessingTimeout)
	}
	if cfg.EnhanceProvider != "synthetic" {
		t.Fatalf("EnhanceProvider = %q, want synthetic", cfg.EnhanceProvider)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}
}

func TestLoadConfigRejectsBadQueueSettings(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("QUEUE_MAX_CONCURRENT", "0")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for zero QUEUE_MAX_CONCURRENT")
	}
}

func TestPriorityBoostOrdersTiers(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("QUEUE_BOOST_ENTERPRISE", "99")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	boost := cfg.PriorityBoost()
	if boost[domain.TierFree] != 0 {
		t.Fatalf("free boost = %d, want 0", boost[domain.TierFree])
	}
	if boost[domain.TierEnterprise] != 99 {
		t.Fatalf("enterprise boost = %d, want 99", boost[domain.TierEnterprise])
	}
	if !(boost[domain.TierFree] < boost[domain.TierStarter] &&
		boost[domain.TierStarter] < boost[domain.TierProfessional]) {
		t.Fatalf("default boosts out of order: %#v", boost)
	}
}
