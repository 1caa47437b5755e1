package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that unmarshals from human-readable strings
// ("30s", "5m") in YAML, JSON, and env vars. Negative values are rejected.
type Duration time.Duration

// Duration returns the wrapped time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Secret holds a credential such as an API key. Every marshaling and
// formatting path emits a placeholder instead of the value; only Value()
// reveals it.
type Secret string

// Value returns the raw secret.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether a non-empty value was configured.
func (s Secret) IsSet() bool {
	return s != ""
}

func (s Secret) String() string {
	return s.placeholder()
}

func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.placeholder())
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.placeholder()), nil
}

func (s Secret) MarshalYAML() (interface{}, error) {
	return s.placeholder(), nil
}

// placeholder preserves emptiness so unset secrets round-trip as "".
func (s Secret) placeholder() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}

func (s *Secret) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Secret(raw)
	return nil
}

func (s *Secret) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*s = Secret(raw)
	return nil
}
