// Command typeshieldd runs the secure-code challenge service: it
// receives IAM webhooks, escrows OTPs behind typed-biometric challenges
// and serves the challenge API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/typeshield/typeshield"
	"github.com/typeshield/typeshield/biometric"
	"github.com/typeshield/typeshield/bridge"
	"github.com/typeshield/typeshield/metrics/export/prometheus"
	"github.com/typeshield/typeshield/sms"
	"github.com/typeshield/typeshield/store"
	"github.com/typeshield/typeshield/web"
)

func main() {
	_ = godotenv.Load(".env.local", ".env")

	log, err := buildLogger(env("LOG_LEVEL", "debug"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := typeshield.DefaultConfig()
	cfg.Service.BaseURL = strings.TrimSuffix(env("BASE_URL", ""), "/")
	cfg.Service.HashSalt = env("HASH_SALT", "")
	cfg.Lockout.GlobalMaxFailedAttempts = envInt("MAX_FAILED_ATTEMPTS", cfg.Lockout.GlobalMaxFailedAttempts)
	if minutes := envInt("LOCKOUT_DURATION_MINUTES", 0); minutes > 0 {
		cfg.Lockout.GlobalLockoutDuration = time.Duration(minutes) * time.Minute
	}
	cfg.Lockout.PerChallengeMaxFailedAttempts = envInt("PER_CHALLENGE_MAX_FAILED_ATTEMPTS", cfg.Lockout.PerChallengeMaxFailedAttempts)
	cfg.Text.DefaultText = env("CHALLENGE_TEXT_DEFAULT", cfg.Text.DefaultText)
	cfg.Audit.Enabled = envBool("AUDIT_ENABLED", false)

	adapter, err := buildAdapter(ctx, log)
	if err != nil {
		return err
	}

	gateway, err := buildSMSGateway(ctx, log)
	if err != nil {
		return err
	}

	provider := biometric.NewTypingDNA(
		env("TYPINGDNA_SERVER", "https://api.typingdna.com"),
		os.Getenv("TYPINGDNA_API_KEY"),
		os.Getenv("TYPINGDNA_API_SECRET"),
		biometric.WithLogger(log.Named("typingdna")),
	)

	texts := typeshield.NewTextPool(cfg.Text.DefaultText)
	if path := os.Getenv("CHALLENGE_TEXTS_FILE"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		n, err := texts.LoadReader(f)
		f.Close()
		if err != nil {
			return err
		}
		log.Info("challenge sentences loaded", zap.Int("count", n))
	}

	builder := typeshield.New().
		WithConfig(cfg).
		WithAdapter(adapter).
		WithBiometric(provider).
		WithSMS(sms.WithLogging(gateway, log.Named("sms"))).
		WithTextPool(texts).
		WithMetricsEnabled(envBool("METRICS_ENABLED", true))
	if cfg.Audit.Enabled {
		// Audit events persist to the logs collection of the same
		// backend, mirroring its 30-day TTL.
		logs := store.Open(adapter, cfg.Service.HashSalt).Logs
		builder = builder.WithAuditSink(typeshield.NewStoreSink(logs))
	}
	engine, err := builder.Build()
	if err != nil {
		return err
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = engine.Init(initCtx)
	cancel()
	if err != nil {
		return err
	}
	log.Debug("storage adapter initialized")

	registry, err := buildBridges(cfg.Service.BaseURL)
	if err != nil {
		return err
	}
	for _, b := range registry.Active() {
		log.Info("bridge enabled", zap.String("id", b.ID()), zap.String("name", b.Name()))
	}

	root := http.NewServeMux()
	root.Handle("/", web.NewServer(engine, registry, log.Named("http")).Routes())
	if envBool("METRICS_ENABLED", true) {
		root.Handle("GET /metricz", prometheus.NewPrometheusExporter(engine).Handler())
	}

	server := &http.Server{
		Addr:              ":" + env("PORT", "8080"),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}
	return engine.Close(shutdownCtx)
}

// buildAdapter selects the persistence backend from DATA_STORE:
// mongo (default), redis, dynamo, or memory for local development.
func buildAdapter(ctx context.Context, log *zap.Logger) (store.Adapter, error) {
	backend := env("DATA_STORE", "mongo")
	log.Debug("selecting data store", zap.String("backend", backend))

	switch backend {
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(os.Getenv("MONGO_URI")))
		if err != nil {
			return nil, err
		}
		return store.NewMongoAdapter(client, env("MONGO_DB_NAME", "typeshield")), nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     env("REDIS_HOST", "localhost") + ":" + env("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
		})
		return store.NewRedisAdapter(client), nil

	case "dynamo":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(awsCfg)
		return store.NewDynamoAdapter(client, env("DYNAMO_TABLE", "typeshield")), nil

	case "memory":
		log.Warn("using the in-memory store; state is lost on restart")
		return store.NewMemoryAdapter(), nil
	}
	return nil, errors.New("unknown DATA_STORE: " + backend)
}

// buildSMSGateway selects the SMS provider from SMS_PROVIDER: twilio
// (default) or sns.
func buildSMSGateway(ctx context.Context, log *zap.Logger) (typeshield.SMSGateway, error) {
	provider := env("SMS_PROVIDER", "twilio")
	log.Debug("selecting sms provider", zap.String("provider", provider))

	switch provider {
	case "twilio":
		return &sms.Twilio{
			AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			APIKey:     os.Getenv("TWILIO_API_KEY"),
			APISecret:  os.Getenv("TWILIO_API_SECRET"),
			From:       os.Getenv("TWILIO_FROM_NUMBER"),
		}, nil

	case "sns":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		return &sms.SNS{
			Client:   sns.NewFromConfig(awsCfg),
			SenderID: os.Getenv("SNS_SENDER_ID"),
		}, nil
	}
	return nil, errors.New("unknown SMS_PROVIDER: " + provider)
}

// buildBridges registers the bridges named in ENABLED_BRIDGES, a
// comma-separated list of bridge ids.
func buildBridges(baseURL string) (*bridge.Registry, error) {
	registry := bridge.NewRegistry()
	for _, id := range strings.Split(env("ENABLED_BRIDGES", ""), ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		var b typeshield.Bridge
		switch id {
		case "okta":
			b = &bridge.Okta{SharedSecret: os.Getenv("OKTA_SHARED_SECRET")}
		case "cyberark":
			b = &bridge.CyberArk{Password: os.Getenv("CYBERARK_SHARED_SECRET")}
		case "fusionauth":
			b = &bridge.FusionAuth{Password: os.Getenv("FUSIONAUTH_SHARED_SECRET")}
		case "auth0":
			b = &bridge.Auth0{SigningSecret: os.Getenv("AUTH0_SECRET")}
		case "pingone":
			b = &bridge.PingOne{Password: os.Getenv("PING_SHARED_SECRET"), BaseURL: baseURL}
		default:
			return nil, errors.New("unknown bridge id: " + id)
		}
		if err := registry.Register(b); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	return cfg.Build()
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
