package config

import (
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Store types understood by the record package
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMongoDB  = "mongodb"
)

type (
	//StaticCfg is the container for other static config sections
	StaticCfg struct {
		Store        StoreStaticCfg  `yaml:"Store"`
		Log          LogStaticCfg    `yaml:"LogConfig"`
		Ingest       IngestStaticCfg `yaml:"Ingest"`
		HTTP         HTTPStaticCfg   `yaml:"HTTP"`
		Version      string          `yaml:"-"`
		ExactVersion string          `yaml:"-"`
	}

	//StoreStaticCfg contains the means for connecting to the backing store
	StoreStaticCfg struct {
		Type             string        `yaml:"Type" default:"sqlite"`
		ConnectionString string        `yaml:"ConnectionString"`
		Database         string        `yaml:"Database" default:"pdns"`
		AuthMechanism    string        `yaml:"AuthenticationMechanism"`
		SocketTimeout    time.Duration `yaml:"SocketTimeout" default:"2h"`
		TLS              TLSStaticCfg  `yaml:"TLS"`
	}

	//TLSStaticCfg contains the means for connecting to MongoDB over TLS
	TLSStaticCfg struct {
		Enabled           bool   `yaml:"Enable"`
		VerifyCertificate bool   `yaml:"VerifyCertificate"`
		CAFile            string `yaml:"CAFile"`
	}

	//LogStaticCfg contains the configuration for logging
	LogStaticCfg struct {
		LogLevel  int    `yaml:"LogLevel" default:"2"`
		LogPath   string `yaml:"LogPath" default:"/var/lib/rita-pdns/logs"`
		LogToFile bool   `yaml:"LogToFile"`
		LogToDB   bool   `yaml:"LogToDB"`
	}

	//IngestStaticCfg controls how log files are parsed and written
	IngestStaticCfg struct {
		Format           string        `yaml:"Format" default:"auto"`
		Threads          int           `yaml:"Threads" default:"1"`
		ChunkSize        int           `yaml:"ChunkSize" default:"10000"`
		MaxValueLength   int           `yaml:"MaxValueLength" default:"1000"`
		SettleDelay      time.Duration `yaml:"SettleDelay" default:"100ms"`
		SampleInterval   time.Duration `yaml:"SampleInterval" default:"1s"`
		StabilitySamples int           `yaml:"StabilitySamples" default:"5"`
		IdleInterval     time.Duration `yaml:"IdleInterval" default:"5s"`
	}

	//HTTPStaticCfg controls the search API listener
	HTTPStaticCfg struct {
		Listen string `yaml:"Listen" default:":8081"`
	}
)

// parseStaticConfig deserializes the yaml contents over the given config
func parseStaticConfig(cfgFile []byte, config *StaticCfg) error {
	if err := yaml.Unmarshal(cfgFile, config); err != nil {
		return errors.Wrap(err, "failed to read config")
	}

	// expand env variables, config is a pointer
	// so we have to call elem on the reflect value
	expandConfig(reflect.ValueOf(config).Elem())

	config.Store.Type = strings.ToLower(strings.TrimSpace(config.Store.Type))
	if config.Log.LogPath != "" {
		config.Log.LogPath = filepath.Clean(config.Log.LogPath)
	}
	return nil
}

// validateStaticConfig rejects configurations the ingest pipeline cannot run with
func validateStaticConfig(config *StaticCfg) error {
	if config.Store.ConnectionString == "" {
		return ErrNoConnectionString
	}

	switch config.Store.Type {
	case StoreSQLite, StorePostgres, StoreMongoDB:
	default:
		return errors.Errorf("unknown store type %q", config.Store.Type)
	}

	if config.Ingest.Threads < 1 {
		return errors.Errorf("Ingest.Threads must be at least 1, got %d", config.Ingest.Threads)
	}
	if config.Ingest.ChunkSize < 1 {
		return errors.Errorf("Ingest.ChunkSize must be at least 1, got %d", config.Ingest.ChunkSize)
	}
	if config.Ingest.StabilitySamples < 1 {
		return errors.Errorf("Ingest.StabilitySamples must be at least 1, got %d", config.Ingest.StabilitySamples)
	}
	return nil
}
