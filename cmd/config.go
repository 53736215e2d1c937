package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"

	"evalgo.org/sparqlfed/auth"
	"evalgo.org/sparqlfed/internal/cache"
	"evalgo.org/sparqlfed/internal/client"
	"evalgo.org/sparqlfed/internal/federation"
	"evalgo.org/sparqlfed/internal/metrics"
	"evalgo.org/sparqlfed/internal/project"
)

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.body_limit", "10M")
	viper.SetDefault("data.dir", "./data")
	viper.SetDefault("federation.pool_size", federation.DefaultPoolSize)
	viper.SetDefault("federation.request_timeout", federation.DefaultRequestTimeout)
	viper.SetDefault("federation.call_timeout", federation.DefaultCallTimeout)
	viper.SetDefault("federation.count_detection", string(federation.CountParsed))
	viper.SetDefault("cache.backend", cache.BackendMemory)
	viper.SetDefault("cache.size", cache.DefaultSize)
	viper.SetDefault("cache.ttl", time.Duration(0))
	viper.SetDefault("cache.redis_db", 0)
	viper.SetDefault("client.retries", 1)
	viper.SetDefault("client.debug", false)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

// settings is the resolved configuration of one process.
type settings struct {
	Port            int
	ShutdownTimeout time.Duration
	BodyLimit       string
	APIKey          string
	APIKeyHash      string
	JWTSecret       string
	DataDir         string
	Federation      federation.Config
	CountDetection  federation.CountDetection
	Cache           cache.Config
	Client          client.Options
}

func loadSettings() (*settings, error) {
	detection, err := federation.ParseCountDetection(viper.GetString("federation.count_detection"))
	if err != nil {
		return nil, err
	}

	dataDir := viper.GetString("data.dir")
	cachePath := viper.GetString("cache.path")
	if cachePath == "" {
		cachePath = filepath.Join(dataDir, "cache", "responses.db")
	}

	s := &settings{
		Port:            viper.GetInt("server.port"),
		ShutdownTimeout: viper.GetDuration("server.shutdown_timeout"),
		BodyLimit:       viper.GetString("server.body_limit"),
		APIKey:          viper.GetString("server.api_key"),
		APIKeyHash:      viper.GetString("server.api_key_hash"),
		JWTSecret:       viper.GetString("server.jwt_secret"),
		DataDir:         dataDir,
		Federation: federation.Config{
			PoolSize:       viper.GetInt("federation.pool_size"),
			RequestTimeout: viper.GetDuration("federation.request_timeout"),
			CallTimeout:    viper.GetDuration("federation.call_timeout"),
		},
		CountDetection: detection,
		Cache: cache.Config{
			Backend:   viper.GetString("cache.backend"),
			Size:      viper.GetInt("cache.size"),
			TTL:       viper.GetDuration("cache.ttl"),
			Path:      cachePath,
			RedisAddr: viper.GetString("cache.redis_addr"),
			RedisDB:   viper.GetInt("cache.redis_db"),
		},
		Client: client.Options{
			Retries: viper.GetInt("client.retries"),
			Debug:   viper.GetBool("client.debug"),
		},
	}

	if s.Port <= 0 || s.Port > 65535 {
		return nil, fmt.Errorf("invalid server.port: %d", s.Port)
	}
	if s.APIKey != "" && len(s.APIKey) < auth.MinAPIKeyLength {
		return nil, fmt.Errorf("server.api_key must be at least %d characters", auth.MinAPIKeyLength)
	}
	return s, nil
}

// app holds the long-lived components shared by the commands.
type app struct {
	settings *settings
	store    *project.Store
	cache    cache.Handler
	service  *federation.Service
	audit    *auth.AuditLogger
	registry *prometheus.Registry
}

// newApp wires the store, cache, executor and federation service.
func newApp(s *settings) (*app, error) {
	store, err := project.NewStore(s.DataDir)
	if err != nil {
		return nil, err
	}
	audit, err := auth.NewAuditLogger(s.DataDir)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	responses, err := cache.New(s.Cache)
	if err != nil {
		return nil, err
	}

	opts := s.Client
	opts.Timeout = s.Federation.CallTimeout
	clients := client.NewManager(opts, logger)
	dispatcher := federation.NewDispatcher(client.NewHTTPExecutor(clients), responses, s.Federation, logger, m)

	logger.WithFields(map[string]interface{}{
		"data_dir":        s.DataDir,
		"cache":           s.Cache.Backend,
		"pool_size":       s.Federation.PoolSize,
		"count_detection": s.CountDetection,
	}).Debug("components initialised")

	return &app{
		settings: s,
		store:    store,
		cache:    responses,
		service:  federation.NewService(store, dispatcher, s.CountDetection),
		audit:    audit,
		registry: reg,
	}, nil
}

// Close releases the cache backend.
func (a *app) Close() error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Close()
}

// loadApp resolves settings and wires the components.
func loadApp() (*app, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	return newApp(s)
}
