package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"strconv"

	"github.com/creasty/defaults"
	"github.com/pkg/errors"
)

//Version is filled at compile time with the git version of rita-pdns
var Version = "v0.0.0-dev"

//ExactVersion is filled at compile time with the git version of rita-pdns
//including the commit hash
var ExactVersion = "undefined"

// Environment variables recognized by the loader. They take precedence over
// the values found in the config file.
const (
	EnvConnectionString = "BRO_PDNS_DB"
	EnvThreads          = "BRO_PDNS_THREADS"
	EnvStoreType        = "BRO_PDNS_STORE"
)

//ErrNoConnectionString is returned when neither the config file nor
//the environment name a store to connect to
var ErrNoConnectionString = errors.New("no store connection string configured (set Store.ConnectionString or " + EnvConnectionString + ")")

type (
	//Config holds the configuration for the running system
	Config struct {
		R RunningCfg
		S StaticCfg
		T TableCfg
	}
)

// GetConfig retrieves a configuration in order of precedence: the
// path given on the command line, the user's config file, then the system
// config file. If no file can be found the defaults and environment are used.
func GetConfig(cfgPath string) (*Config, error) {
	if cfgPath != "" {
		return LoadConfig(cfgPath)
	}

	var candidates []string
	usr, err := user.Current()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not get user info: %s\n", err.Error())
	} else {
		candidates = append(candidates, filepath.Join(usr.HomeDir, ".rita-pdns", "config.yaml"))
	}
	candidates = append(candidates, "/etc/rita-pdns/config.yaml")

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return LoadConfig(candidate)
		}
	}

	return loadConfig(nil)
}

// LoadConfig attempts to parse the config file at the given path
func LoadConfig(cfgPath string) (*Config, error) {
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read config file %s", cfgPath)
	}
	return loadConfig(data)
}

func loadConfig(data []byte) (*Config, error) {
	config := &Config{}

	if err := defaults.Set(&config.T); err != nil {
		return nil, err
	}

	if err := defaults.Set(&config.S); err != nil {
		return nil, err
	}

	if data != nil {
		if err := parseStaticConfig(data, &config.S); err != nil {
			return nil, err
		}
	}

	if err := applyEnvironment(&config.S); err != nil {
		return nil, err
	}

	config.S.Version = Version
	config.S.ExactVersion = ExactVersion

	if err := validateStaticConfig(&config.S); err != nil {
		return nil, err
	}

	if err := initRunningConfig(&config.S, &config.R); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvironment overrides the static config with BRO_PDNS_* variables
func applyEnvironment(config *StaticCfg) error {
	if conn, ok := os.LookupEnv(EnvConnectionString); ok && conn != "" {
		config.Store.ConnectionString = conn
	}

	if store, ok := os.LookupEnv(EnvStoreType); ok && store != "" {
		config.Store.Type = store
	}

	if threads, ok := os.LookupEnv(EnvThreads); ok && threads != "" {
		n, err := strconv.Atoi(threads)
		if err != nil {
			return errors.Wrapf(err, "invalid %s value %q", EnvThreads, threads)
		}
		config.Ingest.Threads = n
	}
	return nil
}

// expandConfig expands environment variables in config strings
func expandConfig(reflected reflect.Value) {
	for i := 0; i < reflected.NumField(); i++ {
		f := reflected.Field(i)
		// process sub configs
		if f.Kind() == reflect.Struct {
			expandConfig(f)
		} else if f.Kind() == reflect.String {
			f.SetString(os.ExpandEnv(f.String()))
		} else if f.Kind() == reflect.Slice && f.Type().Elem().Kind() == reflect.String {
			strs := f.Interface().([]string)
			for i, str := range strs {
				strs[i] = os.ExpandEnv(str)
			}
			f.Set(reflect.ValueOf(strs))
		}
	}
}
