package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/activecm/mgosec"
	"github.com/blang/semver"
	"github.com/pkg/errors"
)

type (
	//RunningCfg holds configuration options that are parsed at run time
	RunningCfg struct {
		Store   StoreRunningCfg
		Version semver.Version
	}

	//StoreRunningCfg holds parsed information for connecting to the store
	StoreRunningCfg struct {
		AuthMechanismParsed mgosec.AuthMechanism
		TLS                 struct {
			TLSConfig *tls.Config
		}
	}
)

// initRunningConfig uses data in the static config initialize
// the passed in running config
func initRunningConfig(static *StaticCfg, running *RunningCfg) error {
	var err error

	//parse the tls configuration
	if static.Store.TLS.Enabled {
		tlsConf := &tls.Config{}
		if !static.Store.TLS.VerifyCertificate {
			tlsConf.InsecureSkipVerify = true
		}
		if len(static.Store.TLS.CAFile) > 0 {
			pem, err := os.ReadFile(static.Store.TLS.CAFile)
			if err != nil {
				return errors.Wrapf(err, "could not read CA file %s", static.Store.TLS.CAFile)
			}
			tlsConf.RootCAs = x509.NewCertPool()
			tlsConf.RootCAs.AppendCertsFromPEM(pem)
		}
		running.Store.TLS.TLSConfig = tlsConf
	}

	//parse out the mongo authentication mechanism
	running.Store.AuthMechanismParsed = mgosec.None
	if static.Store.AuthMechanism != "" {
		authMechanism, err := mgosec.ParseAuthMechanism(
			static.Store.AuthMechanism,
		)
		if err != nil {
			authMechanism = mgosec.None
			fmt.Fprintln(os.Stderr, "[!] Could not parse MongoDB authentication mechanism")
		}
		running.Store.AuthMechanismParsed = authMechanism
	}

	running.Version, err = semver.ParseTolerant(static.Version)
	if err != nil {
		return errors.Wrapf(err, "invalid version %q", static.Version)
	}
	return nil
}
