// Command server starts the VidTube API HTTP service.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vidtube/internal/api"
	"vidtube/internal/auth"
	"vidtube/internal/media"
	"vidtube/internal/observability/logging"
	"vidtube/internal/server"
	"vidtube/internal/storage"
)

func main() {
	// Values from a .env file fill in for unset variables; real environment
	// variables win.
	_ = godotenv.Load()

	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	accessSecret := flag.String("access-token-secret", "", "HMAC secret for access tokens")
	refreshSecret := flag.String("refresh-token-secret", "", "HMAC secret for refresh tokens")
	accessTTL := flag.Duration("access-token-ttl", 0, "lifetime of issued access tokens")
	refreshTTL := flag.Duration("refresh-token-ttl", 0, "lifetime of issued refresh tokens")
	tokenIssuer := flag.String("token-issuer", "", "issuer claim stamped on signed tokens")
	mediaDriver := flag.String("media-driver", "", "media uploader driver (local or minio)")
	mediaDir := flag.String("media-dir", "", "directory for locally stored uploads")
	mediaBaseURL := flag.String("media-base-url", "", "URL prefix for locally stored uploads")
	minioEndpoint := flag.String("minio-endpoint", "", "MinIO endpoint (host:port)")
	minioAccessKey := flag.String("minio-access-key", "", "MinIO access key")
	minioSecretKey := flag.String("minio-secret-key", "", "MinIO secret key")
	minioBucket := flag.String("minio-bucket", "", "MinIO bucket for uploads")
	minioRegion := flag.String("minio-region", "", "MinIO region")
	minioUseSSL := flag.Bool("minio-use-ssl", false, "enable TLS for MinIO requests")
	minioPublicURL := flag.String("minio-public-url", "", "public URL prefix for uploaded objects")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	redisDB := flag.Int("rate-redis-db", 0, "Redis database for distributed login throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	redisTLSCA := flag.String("rate-redis-tls-ca", "", "path to Redis TLS CA certificate")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed to call the API")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("VIDTUBE_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("VIDTUBE_LOG_FORMAT")),
	})
	auditLogger := logging.WithComponent(logger, "audit")

	serverMode := modeValue(*mode, os.Getenv("VIDTUBE_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("VIDTUBE_ADDR"))

	tokenConfig, err := resolveTokenConfig(tokenSettings{
		AccessSecret:  firstNonEmpty(*accessSecret, os.Getenv("VIDTUBE_ACCESS_TOKEN_SECRET")),
		RefreshSecret: firstNonEmpty(*refreshSecret, os.Getenv("VIDTUBE_REFRESH_TOKEN_SECRET")),
		AccessTTL:     resolveDuration(*accessTTL, "VIDTUBE_ACCESS_TOKEN_TTL", 0),
		RefreshTTL:    resolveDuration(*refreshTTL, "VIDTUBE_REFRESH_TOKEN_TTL", 0),
		Issuer:        firstNonEmpty(*tokenIssuer, os.Getenv("VIDTUBE_TOKEN_ISSUER")),
		Mode:          serverMode,
	})
	if err != nil {
		logger.Error("failed to resolve token secrets", "error", err)
		os.Exit(1)
	}
	if tokenConfig.generated {
		logger.Warn("token secrets generated for this process only, sessions will not survive a restart")
	}
	tokens, err := auth.NewManager(tokenConfig.config)
	if err != nil {
		logger.Error("failed to configure token manager", "error", err)
		os.Exit(1)
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("VIDTUBE_STORAGE_DRIVER"), postgresDefaultDSN, serverMode)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}

	var store storage.Repository
	switch driver {
	case "json":
		dataFile := resolveDataPath(*dataPath, os.Getenv("VIDTUBE_DATA"))
		store, err = storage.NewStorage(dataFile)
	case "postgres":
		if postgresDefaultDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.Option
		maxConns := resolveInt(*postgresMaxConns, "VIDTUBE_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "VIDTUBE_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "VIDTUBE_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "VIDTUBE_POSTGRES_MAX_CONN_IDLE", 0)
		healthInterval := resolveDuration(*postgresHealthInterval, "VIDTUBE_POSTGRES_HEALTH_INTERVAL", 0)
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval))
		}
		if acquireTimeout := resolveDuration(*postgresAcquireTimeout, "VIDTUBE_POSTGRES_ACQUIRE_TIMEOUT", 0); acquireTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresAcquireTimeout(acquireTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("VIDTUBE_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithPostgresApplicationName(appName))
		}
		store, err = storage.NewPostgresRepository(bootCtx, postgresDefaultDSN, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	mediaCfg := mediaSettings{
		Driver:         firstNonEmpty(*mediaDriver, os.Getenv("VIDTUBE_MEDIA_DRIVER")),
		LocalDir:       firstNonEmpty(*mediaDir, os.Getenv("VIDTUBE_MEDIA_DIR")),
		LocalBaseURL:   firstNonEmpty(*mediaBaseURL, os.Getenv("VIDTUBE_MEDIA_BASE_URL")),
		MinIOEndpoint:  firstNonEmpty(*minioEndpoint, os.Getenv("VIDTUBE_MINIO_ENDPOINT")),
		MinIOAccessKey: firstNonEmpty(*minioAccessKey, os.Getenv("VIDTUBE_MINIO_ACCESS_KEY")),
		MinIOSecretKey: firstNonEmpty(*minioSecretKey, os.Getenv("VIDTUBE_MINIO_SECRET_KEY")),
		MinIOBucket:    firstNonEmpty(*minioBucket, os.Getenv("VIDTUBE_MINIO_BUCKET")),
		MinIORegion:    firstNonEmpty(*minioRegion, os.Getenv("VIDTUBE_MINIO_REGION")),
		MinIOUseSSL:    resolveBool(*minioUseSSL, "VIDTUBE_MINIO_USE_SSL"),
		MinIOPublicURL: firstNonEmpty(*minioPublicURL, os.Getenv("VIDTUBE_MINIO_PUBLIC_URL")),
		Mode:           serverMode,
	}
	uploads, localMediaDir, err := configureUploader(bootCtx, mediaCfg)
	if err != nil {
		logger.Error("failed to configure media uploader", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(store, tokens, uploads)
	if serverMode != "production" {
		handler.CookiePolicy = api.TokenCookiePolicy{SecureMode: api.TokenCookieSecureAuto}
	}

	rateCfg := server.RateLimitConfig{
		GlobalRPS:   resolveFloat(*globalRPS, "VIDTUBE_RATE_GLOBAL_RPS"),
		GlobalBurst: resolveInt(*globalBurst, "VIDTUBE_RATE_GLOBAL_BURST"),
		LoginLimit:  resolveInt(*loginLimit, "VIDTUBE_RATE_LOGIN_LIMIT"),
		LoginWindow: resolveDuration(*loginWindow, "VIDTUBE_RATE_LOGIN_WINDOW", time.Minute),
		Redis: server.RedisConfig{
			Addr:     firstNonEmpty(*redisAddr, os.Getenv("VIDTUBE_RATE_REDIS_ADDR")),
			Password: firstNonEmpty(*redisPassword, os.Getenv("VIDTUBE_RATE_REDIS_PASSWORD")),
			DB:       resolveInt(*redisDB, "VIDTUBE_RATE_REDIS_DB"),
			Timeout:  resolveDuration(*redisTimeout, "VIDTUBE_RATE_REDIS_TIMEOUT", 2*time.Second),
			CAFile:   firstNonEmpty(*redisTLSCA, os.Getenv("VIDTUBE_RATE_REDIS_TLS_CA")),
		},
	}

	srv, err := server.New(handler, server.Config{
		Addr:        listenAddr,
		TLS:         server.TLSConfig{CertFile: firstNonEmpty(*tlsCert, os.Getenv("VIDTUBE_TLS_CERT")), KeyFile: firstNonEmpty(*tlsKey, os.Getenv("VIDTUBE_TLS_KEY"))},
		RateLimit:   rateCfg,
		CORS:        server.CORSConfig{AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("VIDTUBE_CORS_ORIGINS")))},
		Logger:      logger,
		AuditLogger: auditLogger,
		MediaDir:    localMediaDir,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("VidTube API listening", "addr", listenAddr, "mode", serverMode, "storage", driver)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	if err := store.Close(ctx); err != nil {
		logger.Warn("failed to close datastore", "error", err)
	}

	logger.Info("server stopped")
}

type tokenSettings struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Mode          string
}

type resolvedTokenConfig struct {
	config    auth.Config
	generated bool
}

// resolveTokenConfig requires explicit secrets in production. In development
// missing secrets are generated per process so the server still boots.
func resolveTokenConfig(settings tokenSettings) (resolvedTokenConfig, error) {
	cfg := auth.Config{
		AccessSecret:  []byte(settings.AccessSecret),
		RefreshSecret: []byte(settings.RefreshSecret),
		AccessTTL:     settings.AccessTTL,
		RefreshTTL:    settings.RefreshTTL,
		Issuer:        settings.Issuer,
	}

	missing := settings.AccessSecret == "" || settings.RefreshSecret == ""
	if !missing {
		return resolvedTokenConfig{config: cfg}, nil
	}
	if settings.Mode == "production" {
		return resolvedTokenConfig{}, fmt.Errorf("production mode requires VIDTUBE_ACCESS_TOKEN_SECRET and VIDTUBE_REFRESH_TOKEN_SECRET")
	}

	if settings.AccessSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return resolvedTokenConfig{}, err
		}
		cfg.AccessSecret = secret
	}
	if settings.RefreshSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return resolvedTokenConfig{}, err
		}
		cfg.RefreshSecret = secret
	}
	return resolvedTokenConfig{config: cfg, generated: true}, nil
}

func randomSecret() ([]byte, error) {
	var buffer [32]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}
	return []byte(hex.EncodeToString(buffer[:])), nil
}

type mediaSettings struct {
	Driver         string
	LocalDir       string
	LocalBaseURL   string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIORegion    string
	MinIOUseSSL    bool
	MinIOPublicURL string
	Mode           string
}

// configureUploader picks the uploader backend. The second return value is the
// local media directory when the local driver is active, so the server can
// expose it under /media/.
func configureUploader(ctx context.Context, settings mediaSettings) (media.Uploader, string, error) {
	driver := strings.ToLower(strings.TrimSpace(settings.Driver))
	if driver == "" {
		if settings.MinIOEndpoint != "" {
			driver = "minio"
		} else {
			driver = "local"
		}
	}

	switch driver {
	case "local":
		if settings.Mode == "production" {
			return nil, "", fmt.Errorf("production mode requires the minio media driver")
		}
		dir := settings.LocalDir
		if dir == "" {
			dir = "data/media"
		}
		baseURL := settings.LocalBaseURL
		if baseURL == "" {
			baseURL = "/media"
		}
		uploader, err := media.NewLocalUploader(dir, baseURL)
		if err != nil {
			return nil, "", err
		}
		return uploader, dir, nil
	case "minio":
		uploader, err := media.NewMinIOUploader(ctx, media.MinIOConfig{
			Endpoint:      settings.MinIOEndpoint,
			AccessKey:     settings.MinIOAccessKey,
			SecretKey:     settings.MinIOSecretKey,
			Bucket:        settings.MinIOBucket,
			Region:        settings.MinIORegion,
			UseSSL:        settings.MinIOUseSSL,
			PublicBaseURL: settings.MinIOPublicURL,
		})
		if err != nil {
			return nil, "", err
		}
		return uploader, "", nil
	default:
		return nil, "", fmt.Errorf("unsupported media driver %q", driver)
	}
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN, mode string) (string, error) {
	driver := strings.ToLower(strings.TrimSpace(flagValue))
	if driver == "" {
		driver = strings.ToLower(strings.TrimSpace(envValue))
	}
	if driver == "" {
		if strings.TrimSpace(postgresDSN) != "" {
			driver = "postgres"
		} else {
			driver = "json"
		}
	}
	if mode == "production" && driver != "postgres" {
		return "", fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	return driver, nil
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/store.json"
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("VIDTUBE_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
