// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LeeDigitalWorks/podm/pkg/allocation"
	"github.com/LeeDigitalWorks/podm/pkg/api"
	"github.com/LeeDigitalWorks/podm/pkg/audit"
	"github.com/LeeDigitalWorks/podm/pkg/coordinator"
	"github.com/LeeDigitalWorks/podm/pkg/debug"
	"github.com/LeeDigitalWorks/podm/pkg/discovery"
	"github.com/LeeDigitalWorks/podm/pkg/env"
	"github.com/LeeDigitalWorks/podm/pkg/events"
	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/redfish/client"
	"github.com/LeeDigitalWorks/podm/pkg/service/fabric"
	"github.com/LeeDigitalWorks/podm/pkg/service/node"
	"github.com/LeeDigitalWorks/podm/pkg/taskqueue"
	"github.com/LeeDigitalWorks/podm/pkg/utils"
)

type ServerOpts struct {
	IP        string
	HTTPPort  int
	DebugPort int
	LogLevel  string
	UUID      string

	DB dbOpts

	// External services
	ServiceURLs       []string
	ListenerBaseURL   string
	DiscoveryInterval time.Duration
	EventWindow       time.Duration

	CoordinatorTimeout   time.Duration
	CoordinatorRedisAddr string

	WorkerConcurrency int
	TaskRetention     time.Duration

	// Node notifications
	KafkaBrokers      []string
	KafkaTopic        string
	RedisEventsAddr   string
	NotificationTypes []string

	ClickHouseDSN string

	Client          client.Config
	AssetRetryAfter time.Duration
}

// serviceEntry is one element of the services config key.
type serviceEntry struct {
	URL  string `mapstructure:"url"`
	Type string `mapstructure:"type"`
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the pod manager",
	Long: `Start a PodM server that:
- discovers the resources of the configured external Redfish services
- allocates, assembles and manages composed nodes
- serves the Redfish API and the event listener of the pod`,
	PreRun: bindFlags,
	Run:    runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	def := client.DefaultConfig()
	f := serverCmd.Flags()
	f.String("ip", utils.DetectedHostAddress(), "IP address to bind to")
	f.Int("http_port", 8443, "HTTP port of the Redfish API")
	f.Int("debug_port", 8445, "Debug HTTP port (metrics, health, pprof)")
	f.String("log_level", "info", "Log level (debug, info, warn, error, fatal)")
	f.String("uuid", "", "UUID reported in the service root (generated when empty)")

	f.String("db_driver", driverMemory, "Database driver (memory, postgres, mysql)")
	f.String("db_dsn", "", "Database connection string")
	f.Int("db_max_open_conns", 25, "Maximum open database connections")
	f.Int("db_max_idle_conns", 5, "Maximum idle database connections")

	f.StringSlice("service_urls", nil, "Base URLs of external Redfish services to register")
	f.String("listener_base_url", "", "Base URL external services post events to (default http://<ip>:<http_port>)")
	f.Duration("discovery_interval", discovery.DefaultInterval, "How often every external service is rediscovered")
	f.Duration("event_window", 5*time.Second, "How long incoming events of a service are buffered before processing")

	f.Duration("coordinator_timeout", 30*time.Second, "How long an operation waits for its external service to be free")
	f.String("coordinator_redis_addr", "", "Redis address for a coordinator shared by several PodM instances")

	f.Int("worker_concurrency", taskqueue.DefaultConcurrency, "Background task worker concurrency")
	f.Duration("task_retention", 24*time.Hour, "How long finished background tasks are kept")

	f.StringSlice("kafka_brokers", nil, "Kafka brokers for node notifications")
	f.String("kafka_topic", "podm-events", "Kafka topic for node notifications")
	f.String("redis_events_addr", "", "Redis address for node notifications")
	f.StringSlice("notification_types", nil, "Node notification types to publish, '*' suffix wildcards allowed (default all)")

	f.String("clickhouse_dsn", "", "ClickHouse DSN for the action audit log")

	f.Duration("client_timeout", def.Timeout, "Timeout of one request to an external service")
	f.Int("client_retry_max", def.RetryMax, "Retries of idempotent requests to an external service")
	f.Float64("client_rps", def.RPS, "Requests per second to one external service (0 disables the limit)")
	f.Duration("client_cache_ttl", def.CacheTTL, "How long GET responses of external services stay cached")
	f.Duration("asset_retry_after", node.DefaultAssetRetryAfter, "Retry-After sent when an asset of a node is unavailable")

}

func runServer(cmd *cobra.Command, args []string) {
	opts := loadServerOpts(cmd)
	logger.SetLevelString(opts.LogLevel)
	if env.IsProduction() && opts.DB.Driver == driverMemory {
		logger.Warn().Msg("running in production with the memory store, state is lost on restart")
	}

	debug.SetNotReady()
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Store
	st, err := openStore(opts.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize store")
	}
	if err := st.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run database migrations")
	}

	queue, err := openQueue(st)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize task queue")
	}

	coord, closeCoord := initializeCoordinator(opts)
	clients := client.NewPool(ctx, st.Services(), opts.Client)

	// Node notifications
	publishers := initializePublishers(opts)
	emitter := events.NewEmitter(events.EmitterConfig{Queue: queue, Enabled: len(publishers) > 0})

	recorder, stopAudit := initializeAudit(ctx, opts)

	allocator, err := allocation.NewService(allocation.Config{
		Store:       st,
		Coordinator: coord,
		Emitter:     emitter,
		Audit:       recorder,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create allocation service")
	}
	nodes, err := node.NewService(node.Config{
		Store:           st,
		Clients:         clients,
		Coordinator:     coord,
		Emitter:         emitter,
		Audit:           recorder,
		AssetRetryAfter: opts.AssetRetryAfter,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create node service")
	}

	discoveryCfg := discovery.DefaultConfig()
	discoveryCfg.Interval = opts.DiscoveryInterval
	discoveryCfg.Services = opts.ServiceURLs
	discoverer := discovery.New(discoveryCfg, st, clients, coord, queue, emitter)

	fabrics, err := fabric.NewService(fabric.Config{
		Store:       st,
		Clients:     clients,
		Coordinator: coord,
		Discoverer:  discoverer,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create fabric service")
	}

	// Background work
	hostname, _ := os.Hostname()
	worker := taskqueue.NewWorker(taskqueue.WorkerConfig{
		ID:                "podm-" + hostname,
		Queue:             queue,
		Concurrency:       opts.WorkerConcurrency,
		HeartbeatInterval: 15 * time.Second,
		ReclaimInterval:   time.Minute,
		Retention:         opts.TaskRetention,
	})
	for _, h := range discoverer.Handlers() {
		worker.RegisterHandler(h)
	}
	worker.RegisterHandler(events.NewSubscriptionRegistrar(clients, st.Services(), opts.ListenerBaseURL))
	if len(publishers) > 0 {
		worker.RegisterHandler(events.NewNotificationHandler(publishers, opts.NotificationTypes))
	}

	discoverer.Start(ctx)
	worker.Start(ctx)
	registerTaskDebugHandlers(queue)
	buffer := events.NewBuffer(opts.EventWindow, events.NewRediscoveryProcessor(queue))

	// API
	apiServer, err := api.NewServer(api.Config{
		UUID:      opts.UUID,
		Store:     st,
		Nodes:     nodes,
		Allocator: allocator,
		Fabrics:   fabrics,
		Registrar: discoverer,
		Events:    buffer,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create API server")
	}
	httpServer := startHTTPServer(apiServer, opts.IP, opts.HTTPPort)
	debugServer := startHTTPServer(debug.GetMux(), opts.IP, opts.DebugPort)

	debug.AddReadyCheck("discovery", discoverer.FirstPassDone)
	debug.SetReady()
	logger.Info().
		Str("build", buildInfo()).
		Str("uuid", opts.UUID).
		Str("listener", opts.ListenerBaseURL).
		Int("services", len(opts.ServiceURLs)).
		Msg("pod manager started")

	waitForShutdown()
	debug.SetNotReady()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	debugServer.Shutdown(shutdownCtx)
	httpServer.Shutdown(shutdownCtx)
	if err := buffer.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("failed to flush buffered events")
	}
	worker.Stop()
	discoverer.Stop()
	stopAudit()
	for _, p := range publishers {
		if err := p.Close(); err != nil {
			logger.Warn().Err(err).Str("publisher", p.Name()).Msg("failed to close publisher")
		}
	}
	clients.Close()
	closeCoord()
	cancel()
	if err := queue.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close task queue")
	}
	if err := st.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close store")
	}
	logger.Info().Msg("pod manager stopped")
}

func loadServerOpts(cmd *cobra.Command) ServerOpts {
	f := NewFlagLoader(cmd)

	opts := ServerOpts{
		IP:        f.String("ip"),
		HTTPPort:  f.Int("http_port"),
		DebugPort: f.Int("debug_port"),
		LogLevel:  f.String("log_level"),
		UUID:      f.String("uuid"),
		DB: dbOpts{
			Driver:       f.String("db_driver"),
			DSN:          f.String("db_dsn"),
			MaxOpenConns: f.Int("db_max_open_conns"),
			MaxIdleConns: f.Int("db_max_idle_conns"),
		},
		ServiceURLs:          f.StringSlice("service_urls"),
		ListenerBaseURL:      f.String("listener_base_url"),
		DiscoveryInterval:    f.Duration("discovery_interval"),
		EventWindow:          f.Duration("event_window"),
		CoordinatorTimeout:   f.Duration("coordinator_timeout"),
		CoordinatorRedisAddr: f.String("coordinator_redis_addr"),
		WorkerConcurrency:    f.Int("worker_concurrency"),
		TaskRetention:        f.Duration("task_retention"),
		KafkaBrokers:         f.StringSlice("kafka_brokers"),
		KafkaTopic:           f.String("kafka_topic"),
		RedisEventsAddr:      f.String("redis_events_addr"),
		NotificationTypes:    f.StringSlice("notification_types"),
		ClickHouseDSN:        f.String("clickhouse_dsn"),
		AssetRetryAfter:      f.Duration("asset_retry_after"),
	}

	opts.Client = client.DefaultConfig()
	opts.Client.Timeout = f.Duration("client_timeout")
	opts.Client.RetryMax = f.Int("client_retry_max")
	opts.Client.RPS = f.Float64("client_rps")
	opts.Client.CacheTTL = f.Duration("client_cache_ttl")

	var entries []serviceEntry
	if err := viper.UnmarshalKey("services", &entries); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse services config")
	}
	for _, e := range entries {
		if e.URL != "" {
			opts.ServiceURLs = append(opts.ServiceURLs, e.URL)
		}
	}

	if opts.UUID == "" {
		opts.UUID = podUUID()
	}
	if opts.ListenerBaseURL == "" {
		opts.ListenerBaseURL = "http://" + utils.JoinHostPort(opts.IP, opts.HTTPPort)
	}
	opts.ListenerBaseURL = strings.TrimRight(opts.ListenerBaseURL, "/")
	return opts
}

// podUUID derives the service root UUID from the hostname so it survives
// restarts.
func podUUID() string {
	hostname, err := os.Hostname()
	if err != nil {
		return uuid.NewString()
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte("podm."+hostname)).String()
}

func initializeCoordinator(opts ServerOpts) (coordinator.Coordinator, func()) {
	if opts.CoordinatorRedisAddr == "" {
		return coordinator.NewLocal(opts.CoordinatorTimeout), func() {}
	}
	cfg := coordinator.DefaultRedisConfig()
	cfg.Addr = opts.CoordinatorRedisAddr
	cfg.Timeout = opts.CoordinatorTimeout
	coord, err := coordinator.NewRedis(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", opts.CoordinatorRedisAddr).Msg("failed to connect coordinator to Redis")
	}
	logger.Info().Str("addr", opts.CoordinatorRedisAddr).Msg("coordinator shared through Redis")
	return coord, func() {
		if err := coord.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close coordinator")
		}
	}
}

func initializePublishers(opts ServerOpts) []events.Publisher {
	var publishers []events.Publisher
	if len(opts.KafkaBrokers) > 0 {
		cfg := events.DefaultKafkaConfig(opts.KafkaBrokers)
		cfg.Topic = opts.KafkaTopic
		p, err := events.NewKafkaPublisher(cfg)
		if err != nil {
			logger.Fatal().Err(err).Strs("brokers", opts.KafkaBrokers).Msg("failed to create Kafka publisher")
		}
		publishers = append(publishers, p)
	}
	if opts.RedisEventsAddr != "" {
		p, err := events.NewRedisPublisher(events.DefaultRedisConfig(opts.RedisEventsAddr))
		if err != nil {
			logger.Fatal().Err(err).Str("addr", opts.RedisEventsAddr).Msg("failed to create Redis publisher")
		}
		publishers = append(publishers, p)
	}
	if len(publishers) == 0 {
		logger.Info().Msg("no notification publisher configured, node notifications are dropped")
	}
	return publishers
}

// initializeAudit returns the recorder of node actions and a function that
// flushes it on shutdown.
func initializeAudit(ctx context.Context, opts ServerOpts) (audit.Recorder, func()) {
	if opts.ClickHouseDSN == "" {
		return audit.Nop{}, func() {}
	}
	cfg := audit.DefaultConfig()
	cfg.DSN = opts.ClickHouseDSN
	chStore, err := audit.NewClickHouseStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to ClickHouse")
	}
	if err := chStore.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to create audit schema")
	}
	collector := audit.NewCollector(cfg, chStore)
	collector.Start(ctx)
	return collector, func() {
		collector.Stop()
		if err := chStore.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close audit store")
		}
	}
}

func startHTTPServer(handler http.Handler, ip string, port int) *http.Server {
	addr := utils.JoinHostPort(ip, port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", addr).Msg("failed to create HTTP listener")
	}

	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("http_addr", addr).Msg("starting HTTP server")
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()
	return httpServer
}

func waitForShutdown() {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM)
	<-stopChan
}

func registerTaskDebugHandlers(queue taskqueue.Queue) {
	debug.RegisterHandlerFunc("/debug/tasks/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		stats, err := queue.Stats(r.Context())
		if err != nil {
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(stats)
	})

	debug.RegisterHandlerFunc("/debug/tasks/list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		tasks, err := queue.List(r.Context(), taskqueue.TaskFilter{
			Status: taskqueue.TaskStatus(r.URL.Query().Get("status")),
			Type:   taskqueue.TaskType(r.URL.Query().Get("type")),
			Limit:  100,
		})
		if err != nil {
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"count": len(tasks), "tasks": tasks})
	})
}
