package storage

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/vulcanapp/vulcan/common"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConnectParams MongoDB connection parameter
type MongoConnectParams struct {
	// ConnectionURI connect to MongoDB with URI
	ConnectionURI string `validate:"required,uri"`
	// DBName the database holding the application collections
	DBName string `validate:"required"`
	// ConnectTimeout max time to wait for connection
	ConnectTimeout time.Duration
}

// MongoClient MongoDB document store core
type MongoClient struct {
	common.Component
	client *mongo.Client
	db     *mongo.Database
}

// DB fetch the application database handle
func (m MongoClient) DB() *mongo.Database {
	return m.db
}

// Ping check the MongoDB cluster is reachable
func (m MongoClient) Ping(ctxt context.Context) error {
	return m.client.Ping(ctxt, readpref.Primary())
}

// Close close a MongoDB client
func (m MongoClient) Close(ctxt context.Context) {
	if err := m.client.Disconnect(ctxt); err != nil {
		log.WithError(err).WithFields(m.LogTags).Errorf("Mongo disconnect failed")
	}
	log.WithFields(m.LogTags).Infof("Close Mongo client")
}

// GetMongoClient define a new MongoDB document store core
func GetMongoClient(ctxt context.Context, param MongoConnectParams) (MongoClient, error) {
	logTags := log.Fields{
		"module":    "storage",
		"component": "mongo-backend",
		"instance":  param.DBName,
	}
	connectCtxt, cancel := context.WithTimeout(ctxt, param.ConnectTimeout)
	defer cancel()
	client, err := mongo.Connect(connectCtxt, options.Client().ApplyURI(param.ConnectionURI))
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf("Mongo client connect failed")
		return MongoClient{}, err
	}
	if err := client.Ping(connectCtxt, readpref.Primary()); err != nil {
		log.WithError(err).WithFields(logTags).Errorf("Mongo cluster unreachable")
		return MongoClient{}, err
	}
	log.WithFields(logTags).Info("Created Mongo client")
	return MongoClient{
		Component: common.Component{LogTags: logTags},
		client:    client,
		db:        client.Database(param.DBName),
	}, nil
}
