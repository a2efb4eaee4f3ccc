package config

import (
	"strings"
	"testing"
)

func TestValidateTieredBadSchemeIsFatal(t *testing.T) {
	cfg := Default()
	cfg.ClassifierBaseURL = "ftp://example.com"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("invalid URL scheme should be fatal")
	}
}

func TestValidateTieredBadPortIsFatal(t *testing.T) {
	cfg := Default()
	cfg.SensorPort = 0
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("out of range port should be fatal")
	}
}

func TestValidateTieredQualityClampingIsWarning(t *testing.T) {
	cfg := Default()
	cfg.CaptureQuality = 500
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped quality should be warning, not fatal: %v", result.Fatals)
	}
	if cfg.CaptureQuality != 100 {
		t.Fatalf("CaptureQuality = %d, want 100 (clamped)", cfg.CaptureQuality)
	}
}

func TestValidateTieredSettleDelayClamping(t *testing.T) {
	cfg := Default()
	cfg.SettleDelayMS = 10
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped settle delay should be warning: %v", result.Fatals)
	}
	if cfg.SettleDelayMS != 200 {
		t.Fatalf("SettleDelayMS = %d, want 200", cfg.SettleDelayMS)
	}
}

func TestValidateTieredBatchSizeClamping(t *testing.T) {
	cfg := Default()
	cfg.UploadBatchSize = 99
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("clamped batch size should not be fatal")
	}
	if cfg.UploadBatchSize != 10 {
		t.Fatalf("UploadBatchSize = %d, want 10", cfg.UploadBatchSize)
	}
}

func TestValidateTieredUnknownLogLevelIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	found := false
	for _, err := range result.Warnings {
		if strings.Contains(err.Error(), "log_level") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected warning about log level")
	}
}

func TestHasFatalsEmpty(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := Default()
	cfg.ClassifierBaseURL = "ftp://bad"
	cfg.CaptureQuality = 500
	result := cfg.ValidateTiered()

	all := result.AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2", len(all))
	}
}

func TestValidConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("default config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("default config has warnings: %v", result.Warnings)
	}
}
