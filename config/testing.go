package config

import (
	"github.com/creasty/defaults"
)

const testConfig = `
Store:
    Type: sqlite
    AuthenticationMechanism: null
    SocketTimeout: 2h
    TLS:
        Enable: false
        VerifyCertificate: false
        CAFile: null
LogConfig:
    LogLevel: 3
    LogPath: null
    LogToFile: false
    LogToDB: false
Ingest:
    Format: auto
    Threads: 2
    ChunkSize: 3
    SettleDelay: 1ms
    SampleInterval: 1ms
    StabilitySamples: 2
    IdleInterval: 1ms
`

// LoadTestingConfig loads the hard coded testing config pointed at
// the given store
func LoadTestingConfig(storeType, connectionString string) (*Config, error) {
	config := &Config{}

	// Initialize table config to the default values
	if err := defaults.Set(&config.T); err != nil {
		return nil, err
	}

	// Initialize static config to the default values
	if err := defaults.Set(&config.S); err != nil {
		return nil, err
	}

	// Deserialize the yaml file contents into the static config
	if err := parseStaticConfig([]byte(testConfig), &config.S); err != nil {
		return nil, err
	}

	config.S.Store.Type = storeType
	config.S.Store.ConnectionString = connectionString
	config.S.Version = "v0.0.0+testing"
	config.S.ExactVersion = "v0.0.0+testing"

	// Use the static config to initialize the running config
	if err := initRunningConfig(&config.S, &config.R); err != nil {
		return nil, err
	}

	return config, nil
}
