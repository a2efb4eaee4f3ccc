package config

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"warning": true,
	"error": true,
}

// ValidationResult separates errors that must abort startup (Fatals) from
// ones that were auto-corrected and merely deserve a log line (Warnings).
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings, for callers that just want
// everything that was wrong.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

// ValidateTiered checks cfg for invalid values. Out-of-range numeric
// settings are clamped in place and reported as warnings; structurally
// invalid settings (bad URL scheme, control characters) are fatal since
// there is no safe default to substitute.
func (c *Config) ValidateTiered() ValidationResult {
	var result ValidationResult

	if c.ClassifierBaseURL != "" {
		u, err := url.Parse(c.ClassifierBaseURL)
		if err != nil {
			result.Fatals = append(result.Fatals, fmt.Errorf("classifier_base_url %q is not a valid URL: %w", c.ClassifierBaseURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			result.Fatals = append(result.Fatals, fmt.Errorf("classifier_base_url scheme must be http or https, got %q", u.Scheme))
		}
	}

	if c.SensorHost != "" {
		for _, r := range c.SensorHost {
			if unicode.IsControl(r) {
				result.Fatals = append(result.Fatals, fmt.Errorf("sensor_host contains control characters"))
				break
			}
		}
	}

	if c.SensorPort < 1 || c.SensorPort > 65535 {
		result.Fatals = append(result.Fatals, fmt.Errorf("sensor_port %d is out of range 1-65535", c.SensorPort))
	}

	if c.CaptureQuality < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("capture_quality %d is below minimum 1, clamping", c.CaptureQuality))
		c.CaptureQuality = 1
	} else if c.CaptureQuality > 100 {
		result.Warnings = append(result.Warnings, fmt.Errorf("capture_quality %d exceeds maximum 100, clamping", c.CaptureQuality))
		c.CaptureQuality = 100
	}

	if c.SettleDelayMS < 200 {
		result.Warnings = append(result.Warnings, fmt.Errorf("settle_delay_ms %d is below minimum 200, clamping", c.SettleDelayMS))
		c.SettleDelayMS = 200
	} else if c.SettleDelayMS > 800 {
		result.Warnings = append(result.Warnings, fmt.Errorf("settle_delay_ms %d exceeds maximum 800, clamping", c.SettleDelayMS))
		c.SettleDelayMS = 800
	}

	if c.CaptureIntervalMS < 100 {
		result.Warnings = append(result.Warnings, fmt.Errorf("capture_interval_ms %d is below minimum 100, clamping", c.CaptureIntervalMS))
		c.CaptureIntervalMS = 100
	}

	if c.DetectionThrottleMS < c.CaptureIntervalMS {
		result.Warnings = append(result.Warnings, fmt.Errorf("detection_throttle_ms %d is below capture_interval_ms %d, clamping", c.DetectionThrottleMS, c.CaptureIntervalMS))
		c.DetectionThrottleMS = c.CaptureIntervalMS
	}

	if c.VerdictCacheTTLSeconds < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("verdict_cache_ttl_seconds %d is below minimum 1, clamping", c.VerdictCacheTTLSeconds))
		c.VerdictCacheTTLSeconds = 1
	}

	if c.UploadBatchSize < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("upload_batch_size %d is below minimum 1, clamping", c.UploadBatchSize))
		c.UploadBatchSize = 1
	} else if c.UploadBatchSize > 10 {
		result.Warnings = append(result.Warnings, fmt.Errorf("upload_batch_size %d exceeds maximum 10, clamping", c.UploadBatchSize))
		c.UploadBatchSize = 10
	}

	if c.UploadDebounceMS < 0 {
		result.Warnings = append(result.Warnings, fmt.Errorf("upload_debounce_ms %d is negative, clamping to 0", c.UploadDebounceMS))
		c.UploadDebounceMS = 0
	} else if c.UploadDebounceMS > 150 {
		result.Warnings = append(result.Warnings, fmt.Errorf("upload_debounce_ms %d exceeds maximum 150, clamping", c.UploadDebounceMS))
		c.UploadDebounceMS = 150
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	return result
}
