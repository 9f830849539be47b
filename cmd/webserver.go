// Copyright 2024-2025 The vulcan Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/vulcanapp/vulcan/apis"
	"github.com/vulcanapp/vulcan/auth"
	"github.com/vulcanapp/vulcan/bridge"
	"github.com/vulcanapp/vulcan/broker"
	"github.com/vulcanapp/vulcan/common"
	"github.com/vulcanapp/vulcan/core"
	"github.com/vulcanapp/vulcan/gateway"
	"github.com/vulcanapp/vulcan/notify"
	"github.com/vulcanapp/vulcan/storage"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Topics the webserver creates at startup
var webserverTopics = []string{"request_topic", "response_topic", bridge.FanoutTopic}

// RunWebserver run the diary web server
func RunWebserver(
	runTimeContext context.Context,
	config common.SystemConfig,
	signingSecret string,
	instance string,
	kafkaClient core.KafkaClient,
	wg *sync.WaitGroup,
) error {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "webserver",
		"instance":  instance,
	}

	// -------------------------------------------------------------------
	// Broker side: topics, producer, fan-out listener

	topicAdmin, err := broker.GetTopicAdmin(kafkaClient, instance)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define topic admin")
		return err
	}
	for _, topic := range webserverTopics {
		param := broker.TopicParam{Name: topic, Partitions: 1, Replication: 1}
		if err := topicAdmin.CreateTopic(runTimeContext, param, true); err != nil {
			log.WithError(err).WithFields(logTags).Errorf("Unable to create topic %s", topic)
			return err
		}
	}

	producer, err := broker.GetPublisher(
		kafkaClient, instance, time.Second*time.Duration(config.Kafka.AckTimeout),
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define producer")
		return err
	}
	defer func() {
		if err := producer.Close(); err != nil {
			log.WithError(err).WithFields(logTags).Error("Producer close failure")
		}
	}()

	hub, err := gateway.GetHub(instance)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define realtime hub")
		return err
	}

	fanoutConsumer, err := broker.DefineConsumer(
		runTimeContext,
		config.Kafka.BootstrapServers,
		fmt.Sprintf("%s-fanout", instance),
		time.Second*time.Duration(config.Kafka.PollIdleTimeout),
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define fan-out consumer")
		return err
	}
	listener, err := bridge.DefineListener(bridge.FanoutTopic, fanoutConsumer, hub.Broadcast)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define fan-out listener")
		return err
	}
	if err := listener.Start(wg); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start fan-out listener")
		return err
	}
	defer func() {
		if err := listener.Stop(); err != nil {
			log.WithError(err).WithFields(logTags).Error("Listener stop failure")
		}
	}()

	// -------------------------------------------------------------------
	// Storage and session management

	mongoClient, err := storage.GetMongoClient(runTimeContext, storage.MongoConnectParams{
		ConnectionURI:  config.Mongo.ConnectionURI,
		DBName:         config.Mongo.DBName,
		ConnectTimeout: time.Second * time.Duration(config.Mongo.ConnectTimeout),
	})
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to connect with MongoDB")
		return err
	}
	defer mongoClient.Close(runTimeContext)

	userStore, err := storage.GetUserStore(runTimeContext, mongoClient)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define user store")
		return err
	}
	diaryStore, err := storage.GetDiaryStore(runTimeContext, mongoClient)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define diary store")
		return err
	}

	issuer, err := auth.GetTokenIssuer(
		signingSecret,
		time.Hour*time.Duration(config.Auth.AccessTTL),
		time.Hour*time.Duration(config.Auth.RefreshTTL),
		instance,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define token issuer")
		return err
	}
	gate, err := auth.GetSessionGate(config.Auth.Domain, issuer)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define session gate")
		return err
	}

	notifier := notify.GetClient(
		config.Notifier.Endpoint, time.Second*time.Duration(config.Notifier.RequestTimeout),
	)

	// -------------------------------------------------------------------
	// REST handlers

	requestLogging := config.Webserver.HTTPSetting.Logging
	authHandler, err := apis.GetAPIRestAuthHandler(issuer, gate, userStore, requestLogging)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define auth HTTP handler")
		return err
	}
	userHandler, err := apis.GetAPIRestUserHandler(gate, userStore, notifier, requestLogging)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define user HTTP handler")
		return err
	}
	diaryHandler, err := apis.GetAPIRestDiaryHandler(gate, diaryStore, producer, requestLogging)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define diary HTTP handler")
		return err
	}
	realtimeHandler, err := apis.GetAPIRestRealtimeHandler(hub)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define realtime HTTP handler")
		return err
	}
	healthHandler, err := apis.GetAPIRestHealthHandler([]apis.ReadinessProbe{
		func(ctxt context.Context) error {
			_, err := kafkaClient.Conn().Controller()
			return err
		},
		func(ctxt context.Context) error {
			return mongoClient.Ping(ctxt)
		},
	})
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define health HTTP handler")
		return err
	}

	// -------------------------------------------------------------------
	// Start the HTTP server

	router := mux.NewRouter()
	mainRouter := apis.RegisterPathPrefix(
		router, config.Webserver.Endpoints.PathPrefix, nil,
	)
	v1Router := apis.RegisterPathPrefix(mainRouter, "/api/v1", nil)

	// Session management
	authRouter := apis.RegisterPathPrefix(v1Router, "/authen", nil)
	_ = apis.RegisterPathPrefix(authRouter, "/login", map[string]http.HandlerFunc{
		"post": authHandler.LoginHandler(),
	})
	_ = apis.RegisterPathPrefix(authRouter, "/refresh", map[string]http.HandlerFunc{
		"post": authHandler.RefreshHandler(),
	})
	_ = apis.RegisterPathPrefix(authRouter, "/verify", map[string]http.HandlerFunc{
		"post": authHandler.VerifyHandler(),
	})
	_ = apis.RegisterPathPrefix(authRouter, "/logout", map[string]http.HandlerFunc{
		"post": authHandler.LogoutHandler(),
	})

	// Account management
	_ = apis.RegisterPathPrefix(v1Router, "/user", map[string]http.HandlerFunc{
		"post":   userHandler.RegisterHandler(),
		"patch":  userHandler.UpdateUserHandler(),
		"delete": userHandler.DeleteUserHandler(),
	})
	_ = apis.RegisterPathPrefix(v1Router, "/user/{userID}", map[string]http.HandlerFunc{
		"get": userHandler.GetUserHandler(),
	})
	_ = apis.RegisterPathPrefix(v1Router, "/users", map[string]http.HandlerFunc{
		"get": userHandler.GetUsersHandler(),
	})
	_ = apis.RegisterPathPrefix(v1Router, "/current_user", map[string]http.HandlerFunc{
		"post": userHandler.CurrentUserHandler(),
	})

	// Diary management
	diaryRouter := apis.RegisterPathPrefix(v1Router, "/diary", map[string]http.HandlerFunc{
		"post": diaryHandler.CreateDiaryHandler(),
	})
	_ = apis.RegisterPathPrefix(diaryRouter, "/id/{diaryID}", map[string]http.HandlerFunc{
		"post":   diaryHandler.GetDiaryHandler(),
		"put":    diaryHandler.UpdateDiaryHandler(),
		"delete": diaryHandler.DeleteDiaryHandler(),
	})
	_ = apis.RegisterPathPrefix(diaryRouter, "/my_private", map[string]http.HandlerFunc{
		"post": diaryHandler.MyPrivateDiariesHandler(),
	})
	_ = apis.RegisterPathPrefix(diaryRouter, "/my_published", map[string]http.HandlerFunc{
		"post": diaryHandler.MyPublishedDiariesHandler(),
	})
	_ = apis.RegisterPathPrefix(diaryRouter, "/publics/{team}", map[string]http.HandlerFunc{
		"post": diaryHandler.PublicDiariesHandler(),
	})

	// Realtime event stream
	_ = apis.RegisterPathPrefix(mainRouter, "/ws", map[string]http.HandlerFunc{
		"get": realtimeHandler.ServeHandler(),
	})

	// Health check
	_ = apis.RegisterPathPrefix(v1Router, "/ping", map[string]http.HandlerFunc{
		"get": healthHandler.PingHandler(),
	})
	_ = apis.RegisterPathPrefix(v1Router, "/alive", map[string]http.HandlerFunc{
		"get": healthHandler.AliveHandler(),
	})
	_ = apis.RegisterPathPrefix(v1Router, "/ready", map[string]http.HandlerFunc{
		"get": healthHandler.ReadyHandler(),
	})

	// Add logging
	router.Use(func(next http.Handler) http.Handler {
		return handlers.CombinedLoggingHandler(healthHandler, next)
	})

	serverConfig := config.Webserver.HTTPSetting.Server
	serverListen := fmt.Sprintf("%s:%d", serverConfig.ListenOn, serverConfig.Port)
	httpSrv := &http.Server{
		Addr:         serverListen,
		ReadTimeout:  time.Second * time.Duration(serverConfig.ReadTimeout),
		WriteTimeout: time.Second * time.Duration(serverConfig.WriteTimeout),
		IdleTimeout:  time.Second * time.Duration(serverConfig.IdleTimeout),
		Handler:      h2c.NewHandler(router, &http2.Server{}),
	}

	// Start the server
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP Server Failure")
		}
	}()

	log.WithFields(logTags).Infof("Started HTTP server on http://%s", serverListen)

	// ============================================================================

	<-runTimeContext.Done()

	// Stop the HTTP server
	{
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Failure during HTTP shutdown")
		}
	}

	return nil
}
