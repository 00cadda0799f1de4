package config

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ScheduleKind tells how vault.schedule was written.
type ScheduleKind int

const (
	// ScheduleDisabled means the key is absent or set to false.
	ScheduleDisabled ScheduleKind = iota

	// ScheduleDefault means the key is set to true.
	ScheduleDefault

	// ScheduleCustom means the key is a mapping with explicit timings.
	ScheduleCustom
)

// String returns the string representation of the kind.
func (k ScheduleKind) String() string {
	switch k {
	case ScheduleDisabled:
		return "disabled"
	case ScheduleDefault:
		return "default"
	case ScheduleCustom:
		return "custom"
	default:
		return fmt.Sprintf("ScheduleKind(%d)", int(k))
	}
}

// ScheduleConfig is vault.schedule. It is written either as a boolean or as a
// mapping:
//
//	schedule: true
//
//	schedule:
//	  frequency: 30m
//	  timeout: 5m
//	  initialDelay: 10s
//
//	schedule:
//	  cron: "0 * * * *"
//	  timeout: 10m
type ScheduleConfig struct {
	Kind ScheduleKind `yaml:"-" json:"-"`

	Frequency    Duration `yaml:"frequency,omitempty" json:"frequency,omitempty"`
	Cron         string   `yaml:"cron,omitempty" json:"cron,omitempty"`
	Timeout      Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	InitialDelay Duration `yaml:"initialDelay,omitempty" json:"initialDelay,omitempty"`
}

// customSchedule has the same fields without the decode hooks.
type customSchedule struct {
	Frequency    Duration `yaml:"frequency" json:"frequency"`
	Cron         string   `yaml:"cron" json:"cron"`
	Timeout      Duration `yaml:"timeout" json:"timeout"`
	InitialDelay Duration `yaml:"initialDelay" json:"initialDelay"`
}

func (s *ScheduleConfig) setCustom(c customSchedule) {
	*s = ScheduleConfig{
		Kind:         ScheduleCustom,
		Frequency:    c.Frequency,
		Cron:         c.Cron,
		Timeout:      c.Timeout,
		InitialDelay: c.InitialDelay,
	}
}

func (s *ScheduleConfig) setFlag(enabled bool) {
	*s = ScheduleConfig{Kind: ScheduleDisabled}
	if enabled {
		s.Kind = ScheduleDefault
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *ScheduleConfig) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			s.setFlag(false)
			return nil
		}
		var enabled bool
		if err := value.Decode(&enabled); err != nil {
			return fmt.Errorf("line %d: schedule must be a boolean or a mapping: %w", value.Line, err)
		}
		s.setFlag(enabled)
		return nil
	case yaml.MappingNode:
		var c customSchedule
		if err := value.Decode(&c); err != nil {
			return err
		}
		s.setCustom(c)
		return nil
	default:
		return fmt.Errorf("line %d: schedule must be a boolean or a mapping", value.Line)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (s ScheduleConfig) MarshalYAML() (interface{}, error) {
	switch s.Kind {
	case ScheduleCustom:
		return customSchedule{
			Frequency:    s.Frequency,
			Cron:         s.Cron,
			Timeout:      s.Timeout,
			InitialDelay: s.InitialDelay,
		}, nil
	case ScheduleDefault:
		return true, nil
	default:
		return false, nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ScheduleConfig) UnmarshalJSON(b []byte) error {
	var enabled bool
	if err := json.Unmarshal(b, &enabled); err == nil {
		s.setFlag(enabled)
		return nil
	}
	if string(b) == "null" {
		s.setFlag(false)
		return nil
	}

	var c customSchedule
	if err := json.Unmarshal(b, &c); err != nil {
		return fmt.Errorf("schedule must be a boolean or an object: %w", err)
	}
	s.setCustom(c)
	return nil
}

// Enabled reports whether a renewal schedule was requested.
func (s ScheduleConfig) Enabled() bool {
	return s.Kind != ScheduleDisabled
}
