package config

import (
	"time"
)

type TrackingConfig struct {
	// Driver-side watch parameters.
	HighAccuracy    bool          `yaml:"high_accuracy"`
	MaxStaleness    time.Duration `yaml:"max_staleness"`
	PositionTimeout time.Duration `yaml:"position_timeout"`
}

type EmergencyConfig struct {
	CountdownTicks  int           `yaml:"countdown_ticks"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	LocationTimeout time.Duration `yaml:"location_timeout"`
	Contacts        []string      `yaml:"contacts"`
}

type SafetyConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type RidesConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

func loadTrackingConfig() *TrackingConfig {
	return &TrackingConfig{
		HighAccuracy:    getEnvAsBool("TRACKING_HIGH_ACCURACY", true),
		MaxStaleness:    getEnvAsDuration("TRACKING_MAX_STALENESS", 5*time.Second),
		PositionTimeout: getEnvAsDuration("TRACKING_POSITION_TIMEOUT", 10*time.Second),
	}
}

func loadEmergencyConfig() *EmergencyConfig {
	return &EmergencyConfig{
		CountdownTicks:  getEnvAsInt("EMERGENCY_COUNTDOWN_TICKS", 10),
		TickInterval:    getEnvAsDuration("EMERGENCY_TICK_INTERVAL", time.Second),
		LocationTimeout: getEnvAsDuration("EMERGENCY_LOCATION_TIMEOUT", 5*time.Second),
		Contacts:        getEnvAsSlice("EMERGENCY_CONTACTS", []string{}),
	}
}

func loadSafetyConfig() *SafetyConfig {
	return &SafetyConfig{
		BaseURL: getEnv("SAFETY_BASE_URL", "http://localhost:9090"),
		Timeout: getEnvAsDuration("SAFETY_HTTP_TIMEOUT", 10*time.Second),
	}
}

func loadRidesConfig() *RidesConfig {
	return &RidesConfig{
		BaseURL: getEnv("RIDES_BASE_URL", "http://localhost:9091"),
		Timeout: getEnvAsDuration("RIDES_HTTP_TIMEOUT", 10*time.Second),
	}
}
