package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration read from strings like "30s" in YAML and
// environment variables.
type Duration time.Duration

// UnmarshalText parses a Go duration string. Negative values are rejected.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

const redactedSecret = "[REDACTED]"

// Secret holds a credential such as the GitHub token. Every formatting and
// marshaling path prints a placeholder; Value returns the real string.
type Secret string

func (s Secret) mask() string {
	if s == "" {
		return ""
	}
	return redactedSecret
}

func (s Secret) String() string { return s.mask() }

func (s Secret) GoString() string { return "Secret(" + redactedSecret + ")" }

// Value returns the secret itself.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether the secret is non-empty.
func (s Secret) IsSet() bool { return s != "" }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.mask()) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(s.mask()), nil }

// UnmarshalText accepts the raw value from YAML or the environment.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}

// UnmarshalJSON rejects the placeholder so a marshaled config cannot be
// reloaded with "[REDACTED]" as the real token.
func (s *Secret) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == redactedSecret {
		return fmt.Errorf("secret value is a redacted placeholder")
	}
	*s = Secret(raw)
	return nil
}
