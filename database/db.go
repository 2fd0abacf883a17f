package database

import (
	"fmt"

	"github.com/activecm/mgosec"
	"github.com/activecm/rita-pdns/config"
	"github.com/blang/semver"
	"github.com/globalsign/mgo"
	log "github.com/sirupsen/logrus"
)

//MinMongoDBVersion is the lower, inclusive bound on the
//versions of MongoDB compatible with rita-pdns
var MinMongoDBVersion = semver.Version{
	Major: 3,
	Minor: 6,
	Patch: 0,
}

// DB is the workhorse container for messing with MongoDB
type DB struct {
	Session  *mgo.Session
	log      *log.Logger
	selected string
}

//NewDB constructs a new DB struct
func NewDB(conf *config.Config, log *log.Logger) (*DB, error) {
	// Jump into the requested database
	session, err := connectToMongoDB(conf, log)
	if err != nil {
		return nil, err
	}
	session.SetSocketTimeout(conf.S.Store.SocketTimeout)
	session.SetSyncTimeout(conf.S.Store.SocketTimeout)
	session.SetCursorTimeout(0)

	return &DB{
		Session:  session,
		log:      log,
		selected: conf.S.Store.Database,
	}, nil
}

//connectToMongoDB connects to MongoDB possibly with authentication and TLS
func connectToMongoDB(conf *config.Config, logger *log.Logger) (*mgo.Session, error) {
	connString := conf.S.Store.ConnectionString
	authMechanism := conf.R.Store.AuthMechanismParsed
	tlsConfig := conf.R.Store.TLS.TLSConfig

	var sess *mgo.Session
	var err error
	if conf.S.Store.TLS.Enabled {
		sess, err = mgosec.Dial(connString, authMechanism, tlsConfig)
	} else {
		sess, err = mgosec.DialInsecure(connString, authMechanism)
	}
	if err != nil {
		return sess, err
	}

	buildInfo, err := sess.BuildInfo()
	if err != nil {
		sess.Close()
		return nil, err
	}

	semVersion, err := semver.ParseTolerant(buildInfo.Version)
	if err != nil {
		sess.Close()
		return nil, err
	}

	if semVersion.LT(MinMongoDBVersion) {
		sess.Close()
		return nil, fmt.Errorf(
			"unsupported version of MongoDB. %s older than %s",
			semVersion.String(),
			MinMongoDBVersion.String(),
		)
	}

	logger.WithFields(log.Fields{
		"version":  semVersion.String(),
		"database": conf.S.Store.Database,
	}).Debug("Connected to MongoDB")

	return sess, nil
}

//GetSelectedDB retrieves the database holding the passive dns collections
func (d *DB) GetSelectedDB() string {
	return d.selected
}

//CollectionExists returns true if collection exists in the currently
//selected database
func (d *DB) CollectionExists(table string) bool {
	ssn := d.Session.Copy()
	defer ssn.Close()
	coll, err := ssn.DB(d.selected).CollectionNames()
	if err != nil {
		d.log.WithFields(log.Fields{
			"error": err.Error(),
		}).Error("Failed collection name lookup")
		return false
	}
	for _, name := range coll {
		if name == table {
			return true
		}
	}
	return false
}

//CreateCollection creates a new collection in the currently selected
//database with the required indexes
func (d *DB) CreateCollection(name string, indexes []mgo.Index) error {
	// Make a copy of the current session
	session := d.Session.Copy()
	defer session.Close()

	d.log.Debug("Building collection: ", name)

	// Create new collection by referencing to it, no need to call Create
	err := session.DB(d.selected).C(name).Create(
		&mgo.CollectionInfo{},
	)

	// Make sure it actually got created
	if err != nil {
		return err
	}

	collection := session.DB(d.selected).C(name)
	for _, index := range indexes {
		err := collection.EnsureIndex(index)
		if err != nil {
			return err
		}
	}
	return nil
}

//Close releases the underlying session
func (d *DB) Close() {
	d.Session.Close()
}
