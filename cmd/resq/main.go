package main

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/resq-app/resq-backend/internal/alerts"
	"github.com/resq-app/resq-backend/internal/auth"
	"github.com/resq-app/resq-backend/internal/dispatch"
	"github.com/resq-app/resq-backend/internal/falldetect"
	"github.com/resq-app/resq-backend/internal/firebase"
	"github.com/resq-app/resq-backend/internal/functions/nearestaed"
	"github.com/resq-app/resq-backend/internal/functions/pushsubscription"
	"github.com/resq-app/resq-backend/internal/functions/raiseemergency"
	"github.com/resq-app/resq-backend/internal/functions/sensorsamples"
	"github.com/resq-app/resq-backend/internal/geo"
	"github.com/resq-app/resq-backend/internal/ingest"
	"github.com/resq-app/resq-backend/internal/logging"
	"github.com/resq-app/resq-backend/internal/messaging"
	"github.com/resq-app/resq-backend/internal/pubsub"
	"github.com/resq-app/resq-backend/internal/realtimedb"
	"github.com/resq-app/resq-backend/internal/redis"
	"github.com/resq-app/resq-backend/internal/secrets"
	"github.com/resq-app/resq-backend/internal/store"
	"github.com/resq-app/resq-backend/internal/subscriptions"
	"github.com/resq-app/resq-backend/internal/utils"
	server "github.com/resq-app/resq-backend/pkg/httpserver"
	"github.com/sethvargo/go-signalcontext"
)

func main() {
	ctx, done := signalcontext.OnInterrupt()
	defer done()

	config, err := utils.LoadConfig(ctx)
	if err != nil {
		logging.FromContext(ctx).Fatalf("utils.LoadConfig: %v", err)
	}

	logger, err := logging.NewLogger(config.Server.LogLevel)
	if err != nil {
		logging.FromContext(ctx).Fatalf("logging.NewLogger: %v", err)
	}
	ctx = logging.WithLogger(ctx, logger)

	if err := run(ctx, config); err != nil {
		logger.Fatal(err)
	}
}

func run(ctx context.Context, config *utils.Config) error {
	logger := logging.FromContext(ctx).Named("resq.run")

	var app *firebase.App
	var fs *firestore.Client
	if config.Firebase.FirebaseEnabled() {
		var err error
		if app, err = firebase.NewApp(ctx, config.Firebase); err != nil {
			return err
		}
		if fs, err = app.Firestore(ctx); err != nil {
			return err
		}
		defer fs.Close()
	}

	subs, err := openStore(ctx, config.Store, fs)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer subs.Close()

	relay, publicKey, err := newRelay(ctx, config, app)
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}

	auther, err := newAuther(ctx, config.Server, app)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	dispatcher := dispatch.New(subs, relay, dispatch.Options{
		Concurrency: config.Relay.Concurrency,
		Timeout:     config.Relay.Timeout,
	})

	index := geo.NewIndex(geo.FileSource{Path: config.Geo.DatasetPath})
	go index.Load(ctx)
	resolver := geo.NewResolver(index, config.Geo.DefaultK)

	deps := alerts.Deps{Dispatcher: dispatcher, Nearest: resolver, Prune: subs}

	if config.Alert.RedisAddr != "" {
		dedupe, err := redis.Connect(ctx, config.Alert.RedisAddr, config.Alert.RedisDB, config.Alert.DedupeTTL)
		if err != nil {
			return err
		}
		defer dedupe.Close()
		deps.Dedupe = dedupe
	}

	if fs != nil {
		deps.Log = alerts.NewFirestoreLog(store.New(fs))
	}

	if app != nil && config.Alert.CountersEnabled {
		dbClient, err := app.Database(ctx)
		if err != nil {
			return err
		}
		deps.Counters = realtimedb.NewAlertCounters(realtimedb.New(dbClient))
	}

	service := alerts.NewService(deps, alerts.Config{Icon: config.Alert.Icon, Badge: config.Alert.Badge})

	var raiser alerts.FallRaiser = alerts.DirectRaiser{Service: service}

	if config.Alert.PubSubEnabled {
		if !config.Firebase.FirebaseEnabled() {
			return fmt.Errorf("Pub/Sub needs PROJECT_ID")
		}
		ps, err := pubsub.NewClient(ctx, config.Firebase.ProjectID)
		if err != nil {
			return err
		}
		defer ps.Close()

		raiser = alerts.PubSubRaiser{Publisher: ps, Topic: config.Alert.PubSubTopic}

		go func() {
			if err := ps.Receive(ctx, config.Alert.PubSubSubscriber, service.Aftermath); err != nil {
				logger.Errorf("Receiving of %v stopped: %v", config.Alert.PubSubSubscriber, err)
			}
		}()
	}

	hub := ingest.NewHub(ctx, ingest.Config{
		Fall: falldetect.Config{
			FreefallG:   config.Fall.FreefallG,
			ImpactG:     config.Fall.ImpactG,
			Timeout:     config.Fall.Timeout,
			SettledLow:  config.Fall.SettledLow,
			SettledHigh: config.Fall.SettledHigh,
		},
		BufferSize:  config.Ingest.BufferSize,
		IdleTimeout: config.Ingest.IdleTimeout,
	}, alerts.OnFall(raiser))
	go hub.Run(ctx)
	defer hub.Close()

	if config.Ingest.MQTTBroker != "" {
		sub, err := ingest.NewSubscriber(ctx, ingest.MQTTOptions{
			Broker:   config.Ingest.MQTTBroker,
			ClientID: config.Ingest.MQTTClientID,
			Topic:    config.Ingest.MQTTTopic,
		}, hub)
		if err != nil {
			return err
		}
		defer sub.Close()
	}

	handler, err := server.NewHandler(ctx, server.Routes{
		Auther:        auther,
		Push:          pushsubscription.New(subs, publicKey),
		NearestAed:    nearestaed.Handler(resolver),
		Emergency:     raiseemergency.Handler(service),
		SensorSamples: sensorsamples.Handler(hub),
	})
	if err != nil {
		return fmt.Errorf("server.NewHandler: %w", err)
	}

	srv, err := server.NewServer(ctx, &server.Config{Port: config.Server.Port})
	if err != nil {
		return fmt.Errorf("server.NewServer: %w", err)
	}
	logger.Infof("listening on :%s", srv.Port())

	return srv.ServeHTTPHandler(ctx, handler)
}

func openStore(ctx context.Context, config utils.StoreConfig, fs *firestore.Client) (subscriptions.Store, error) {
	switch config.Driver {
	case "sqlite":
		return subscriptions.OpenSQLite(ctx, config.SQLitePath)
	case "postgres":
		return subscriptions.OpenPostgres(ctx, subscriptions.PostgresOptions{
			Addr:             config.PostgresAddr,
			User:             config.PostgresUser,
			Password:         config.PostgresPassword,
			Database:         config.PostgresDatabase,
			CloudSQLInstance: config.CloudSQLInstance,
		})
	case "firestore":
		if fs == nil {
			return nil, fmt.Errorf("firestore store needs PROJECT_ID")
		}
		return subscriptions.NewFirestore(store.New(fs)), nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", config.Driver)
	}
}

func newRelay(ctx context.Context, config *utils.Config, app *firebase.App) (messaging.Relay, string, error) {
	logger := logging.FromContext(ctx).Named("resq.newRelay")

	switch config.Relay.Driver {
	case "webpush":
		var manager secrets.Manager
		if config.Relay.VAPIDPrivateKey == "" && config.Relay.VAPIDPrivateKeySecret != "" {
			client, err := secrets.NewClient(ctx, config.Firebase.ProjectID)
			if err != nil {
				return nil, "", err
			}
			defer client.Close()
			manager = client
		}

		publicKey, privateKey, err := vapidKeys(ctx, config.Relay, manager)
		if err != nil {
			return nil, "", err
		}

		relay := messaging.NewWebPush(ctx, messaging.WebPushOptions{
			PublicKey:  publicKey,
			PrivateKey: privateKey,
			Subscriber: config.Relay.Subscriber,
			TTL:        config.Relay.TTL,
		})
		return relay, relay.PublicKey(), nil

	case "fcm":
		if app == nil {
			return nil, "", fmt.Errorf("fcm relay needs PROJECT_ID")
		}
		client, err := app.Messaging(ctx)
		if err != nil {
			return nil, "", err
		}
		logger.Debugf("Delivering through FCM")
		return messaging.NewFCM(messaging.NewClient(client)), config.Relay.VAPIDPublicKey, nil

	default:
		return nil, "", fmt.Errorf("unknown RELAY_DRIVER %q", config.Relay.Driver)
	}
}

// vapidKeys resolves the VAPID key pair: the private key comes from env or Secret Manager. Without any
// configured key an ephemeral pair is generated, subscriptions do not survive a restart then.
func vapidKeys(ctx context.Context, config utils.RelayConfig, manager secrets.Manager) (publicKey, privateKey string, err error) {
	logger := logging.FromContext(ctx).Named("resq.vapidKeys")

	publicKey, privateKey = config.VAPIDPublicKey, config.VAPIDPrivateKey

	if privateKey == "" && config.VAPIDPrivateKeySecret != "" {
		if manager == nil {
			return "", "", fmt.Errorf("no secret manager for %v", config.VAPIDPrivateKeySecret)
		}
		raw, err := manager.Get(ctx, config.VAPIDPrivateKeySecret)
		if err != nil {
			return "", "", err
		}
		privateKey = strings.TrimSpace(string(raw))
	}

	switch {
	case publicKey != "" && privateKey != "":
		return publicKey, privateKey, nil
	case publicKey == "" && privateKey == "":
		logger.Warnf("No VAPID keys configured, generating ephemeral ones")
		privateKey, publicKey, err = messaging.GenerateVAPIDKeys()
		return publicKey, privateKey, err
	default:
		return "", "", fmt.Errorf("both VAPID_PUBLIC_KEY and the private key must be set")
	}
}

func newAuther(ctx context.Context, config utils.ServerConfig, app *firebase.App) (auth.Auther, error) {
	switch config.AuthMode {
	case "firebase":
		if app == nil {
			return nil, fmt.Errorf("firebase auth needs PROJECT_ID")
		}
		client, err := app.Auth(ctx)
		if err != nil {
			return nil, err
		}
		return auth.NewClient(client), nil
	case "jwt":
		return auth.NewJWT(config.JWTSecret, config.JWTIssuer)
	default:
		return nil, fmt.Errorf("unknown AUTH_MODE %q", config.AuthMode)
	}
}
