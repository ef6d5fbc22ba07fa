package config

import "time"

type MapsConfig struct {
	GoogleMaps *GoogleMapsConfig `yaml:"google_maps"`
	Timeout    time.Duration     `yaml:"timeout"`
}

type GoogleMapsConfig struct {
	APIKey string `yaml:"api_key"`
}

func loadMapsConfig() *MapsConfig {
	return &MapsConfig{
		GoogleMaps: &GoogleMapsConfig{
			APIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
		},
		Timeout: getEnvAsDuration("MAPS_HTTP_TIMEOUT", 5*time.Second),
	}
}
