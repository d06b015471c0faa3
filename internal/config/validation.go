package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron"
)

// ValidateTimeout validates timeout duration
func ValidateTimeout(timeout time.Duration, name string) error {
	if timeout <= 0 {
		return fmt.Errorf("%s timeout must be positive", name)
	}
	if timeout > 24*time.Hour {
		return fmt.Errorf("%s timeout too large (max 24 hours)", name)
	}
	return nil
}

// ValidateConcurrency validates concurrency setting
func ValidateConcurrency(concurrency int, name string) error {
	if concurrency <= 0 {
		return fmt.Errorf("%s concurrency must be positive", name)
	}
	if concurrency > 100 {
		return fmt.Errorf("%s concurrency too high (max 100)", name)
	}
	return nil
}

// ValidateAPIKey validates API key presence and, when strict, its format.
// Strict mode is off for OpenAI-compatible gateways that issue their own keys.
func ValidateAPIKey(apiKey string, keyType string, strict bool) error {
	if apiKey == "" {
		return fmt.Errorf("%s API key is required", keyType)
	}
	if !strict {
		return nil
	}

	switch keyType {
	case "OpenAI":
		if !strings.HasPrefix(apiKey, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format: must start with 'sk-'")
		}
		if len(apiKey) < 20 {
			return fmt.Errorf("invalid OpenAI API key format: too short")
		}
	case "Deepgram":
		if len(apiKey) < 32 {
			return fmt.Errorf("invalid Deepgram API key format: too short")
		}
	}

	return nil
}

// ValidateURL validates URL format
func ValidateURL(url string, name string) error {
	if url == "" {
		return fmt.Errorf("%s URL is required", name)
	}

	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("%s URL must start with http:// or https://", name)
	}

	return nil
}

// ValidatePort validates port number
func ValidatePort(port int, name string) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s port %d out of range (1-65535)", name, port)
	}
	return nil
}

// ValidateSchedule checks a cron spec or @every descriptor.
func ValidateSchedule(spec string, name string) error {
	if spec == "" {
		return fmt.Errorf("%s schedule is required", name)
	}
	if _, err := cron.Parse(spec); err != nil {
		return fmt.Errorf("%s schedule %q invalid: %w", name, spec, err)
	}
	return nil
}

// ValidateOneOf checks value against the allowed set.
func ValidateOneOf(value, name string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s %q must be one of: %s", name, value, strings.Join(allowed, ", "))
}
