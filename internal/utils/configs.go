package utils

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/resq-app/resq-backend/internal/logging"
	"github.com/sethvargo/go-envconfig"
)

//ServerConfig Configuration of the HTTP API.
type ServerConfig struct {
	Port      string `env:"PORT,default=8080"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	AuthMode  string `env:"AUTH_MODE,default=jwt"`
	JWTSecret string `env:"AUTH_JWT_SECRET"`
	JWTIssuer string `env:"AUTH_JWT_ISSUER,default=resq"`
}

//FirebaseConfig Configuration of the Firebase/GCP project. ProjectID NOOP disables every Firebase client.
type FirebaseConfig struct {
	ProjectID   string `env:"PROJECT_ID,default=NOOP"`
	DatabaseURL string `env:"FIREBASE_URL"`
}

//StoreConfig Configuration of the subscription store.
type StoreConfig struct {
	Driver           string `env:"STORE_DRIVER,default=sqlite"`
	SQLitePath       string `env:"STORE_SQLITE_PATH,default=data/resq.db"`
	PostgresAddr     string `env:"STORE_POSTGRES_ADDR,default=localhost:5432"`
	PostgresUser     string `env:"STORE_POSTGRES_USER,default=resq"`
	PostgresPassword string `env:"STORE_POSTGRES_PASSWORD"`
	PostgresDatabase string `env:"STORE_POSTGRES_DATABASE,default=resq"`
	CloudSQLInstance string `env:"STORE_CLOUDSQL_INSTANCE"`
}

//RelayConfig Configuration of push delivery.
type RelayConfig struct {
	Driver                string        `env:"RELAY_DRIVER,default=webpush"`
	VAPIDPublicKey        string        `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey       string        `env:"VAPID_PRIVATE_KEY"`
	VAPIDPrivateKeySecret string        `env:"VAPID_PRIVATE_KEY_SECRET"`
	Subscriber            string        `env:"VAPID_SUBSCRIBER,default=ops@resq.example"`
	TTL                   int           `env:"RELAY_TTL_SECONDS,default=3600"`
	Timeout               time.Duration `env:"RELAY_TIMEOUT,default=10s"`
	Concurrency           int           `env:"RELAY_CONCURRENCY,default=8"`
}

//FallConfig Thresholds of the fall detector.
type FallConfig struct {
	FreefallG   float64       `env:"FALL_FREEFALL_G,default=0.5"`
	ImpactG     float64       `env:"FALL_IMPACT_G,default=3.5"`
	Timeout     time.Duration `env:"FALL_TIMEOUT,default=1s"`
	SettledLow  float64       `env:"FALL_SETTLED_LOW"`
	SettledHigh float64       `env:"FALL_SETTLED_HIGH"`
}

//GeoConfig Configuration of the AED dataset.
type GeoConfig struct {
	DatasetPath string `env:"AED_DATASET_PATH,default=assets/AEDlocation.geojson"`
	DefaultK    int    `env:"AED_DEFAULT_K,default=5"`
}

//IngestConfig Configuration of sensor ingestion.
type IngestConfig struct {
	MQTTBroker   string        `env:"MQTT_BROKER"`
	MQTTClientID string        `env:"MQTT_CLIENT_ID,default=resq-backend"`
	MQTTTopic    string        `env:"MQTT_TOPIC,default=resq/device/+/+/accel"`
	BufferSize   int           `env:"INGEST_BUFFER_SIZE,default=256"`
	IdleTimeout  time.Duration `env:"INGEST_IDLE_TIMEOUT,default=5m"`
}

//AlertConfig Configuration of alert composition and the event bus.
type AlertConfig struct {
	Icon             string        `env:"ALERT_ICON,default=/vite.svg"`
	Badge            string        `env:"ALERT_BADGE,default=/vite.svg"`
	PubSubEnabled    bool          `env:"ALERT_PUBSUB_ENABLED,default=false"`
	PubSubTopic      string        `env:"ALERT_TOPIC,default=fall-detected"`
	PubSubSubscriber string        `env:"ALERT_SUBSCRIPTION,default=fall-detected-aftermath"`
	RedisAddr        string        `env:"ALERT_REDIS_ADDR"`
	RedisDB          int           `env:"ALERT_REDIS_DB,default=0"`
	DedupeTTL        time.Duration `env:"ALERT_DEDUPE_TTL,default=10m"`
	CountersEnabled  bool          `env:"ALERT_COUNTERS_ENABLED,default=false"`
}

//Config All configuration of the service.
type Config struct {
	Server   ServerConfig
	Firebase FirebaseConfig
	Store    StoreConfig
	Relay    RelayConfig
	Fall     FallConfig
	Geo      GeoConfig
	Ingest   IngestConfig
	Alert    AlertConfig
}

//LoadConfig Loads all configuration from env (and an optional .env file).
func LoadConfig(ctx context.Context) (*Config, error) {
	logger := logging.FromContext(ctx).Named("utils.LoadConfig")

	if err := godotenv.Load(); err != nil {
		logger.Debugf("No .env file loaded: %v", err)
	}

	var config Config

	parts := []interface{}{
		&config.Server,
		&config.Firebase,
		&config.Store,
		&config.Relay,
		&config.Fall,
		&config.Geo,
		&config.Ingest,
		&config.Alert,
	}

	for _, part := range parts {
		if err := envconfig.Process(ctx, part); err != nil {
			logger.Debugf("Could not load %T: %v", part, err)
			return nil, err
		}
	}

	return &config, nil
}

//FirebaseEnabled Whether any Firebase client may be created.
func (c *FirebaseConfig) FirebaseEnabled() bool {
	return c.ProjectID != "" && c.ProjectID != "NOOP"
}
