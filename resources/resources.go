package resources

import (
	"fmt"
	"os"

	"github.com/activecm/rita-pdns/config"
	"github.com/activecm/rita-pdns/database"
	"github.com/activecm/rita-pdns/pkg/metrics"
	"github.com/activecm/rita-pdns/pkg/record"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type (
	// Resources provides a data structure for passing system Resources
	Resources struct {
		Config  *config.Config
		Log     *log.Logger
		Store   record.Repository
		Metrics *metrics.Metrics
	}
)

// InitResources grabs the configuration file and intitializes the configuration data
// returning a *Resources object which has all of the necessary configuration information
func InitResources(userConfig string) *Resources {
	conf, err := config.GetConfig(userConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to config: %s\n", err.Error())
		os.Exit(-1)
	}

	res, err := NewResources(conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to store: %s\n", err.Error())
		os.Exit(-1)
	}
	return res
}

// NewResources connects to the configured store and prepares it for use
func NewResources(conf *config.Config) (*Resources, error) {
	// Fire up the logging system
	logger := initLogger(&conf.S.Log)

	if conf.S.Log.LogToFile {
		if err := addFileLogger(logger, conf.S.Log.LogPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to set up file logging: %s\n", err.Error())
		}
	}

	store, err := openStore(conf, logger)
	if err != nil {
		return nil, err
	}

	if err := store.CreateIndexes(); err != nil {
		store.Close()
		return nil, errors.Wrap(err, "could not prepare store")
	}

	//bundle up the system resources
	return &Resources{
		Config:  conf,
		Log:     logger,
		Store:   store,
		Metrics: metrics.NewMetrics(),
	}, nil
}

// openStore selects the record.Repository implementation for Store.Type
func openStore(conf *config.Config, logger *log.Logger) (record.Repository, error) {
	switch conf.S.Store.Type {
	case config.StoreMongoDB:
		db, err := database.NewDB(conf, logger)
		if err != nil {
			return nil, err
		}

		//Begin logging to the store
		if conf.S.Log.LogToDB {
			if err := addMongoLogger(logger, db.Session, db.GetSelectedDB(), conf.T.Log.LogTable); err != nil {
				logger.WithFields(log.Fields{
					"error": err.Error(),
				}).Error("Could not log to MongoDB")
			}
		}
		return record.NewMongoRepository(db, conf.T.DNS.DNSTable, conf.T.DNS.FileTable, conf.T.DNS.TxnTable, logger), nil

	case config.StoreSQLite, config.StorePostgres:
		db, err := database.NewSQLDB(conf, logger)
		if err != nil {
			return nil, err
		}
		return record.NewSQLRepository(db, conf.T.DNS.DNSTable, conf.T.DNS.FileTable, logger), nil
	}
	return nil, errors.Errorf("unknown store type %q", conf.S.Store.Type)
}

// Close releases the store connection
func (r *Resources) Close() error {
	return r.Store.Close()
}
