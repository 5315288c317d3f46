package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/media_picker/internal/adapters/mqttserver"
	embeddedmqtt "github.com/mikey-austin/media_picker/internal/modules/embedded_mqtt"
	fssource "github.com/mikey-austin/media_picker/internal/modules/fs_source"
	"github.com/mikey-austin/media_picker/internal/modules/gatewaynode"
	hassgateway "github.com/mikey-austin/media_picker/internal/modules/hass_gateway"
	podcastsource "github.com/mikey-austin/media_picker/internal/modules/podcast_source"
	"github.com/mikey-austin/media_picker/internal/pickd"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

const defaultEmbeddedListen = "127.0.0.1:1883"

// connectFunc opens one broker connection per gateway node so each node
// gets its own last-will presence clear.
type connectFunc func(nodeID string) (gatewaynode.Client, error)

func main() {
	var (
		configPath  string
		broker      string
		identity    string
		topicBase   string
		logLevel    string
		logFormat   string
		logOutput   string
		logSource   bool
		logUTC      bool
		printConfig bool
		dryRun      bool
		moduleOnly  string
	)

	defaultConfig, err := pickd.DefaultConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&configPath, "config", defaultConfig, "config file path")
	flag.StringVar(&broker, "broker", "", "MQTT broker URL override")
	flag.StringVar(&identity, "identity", "", "server identity override")
	flag.StringVar(&topicBase, "topic-base", "", "topic base override")
	flag.StringVar(&logLevel, "log-level", "", "log level override")
	flag.StringVar(&logFormat, "log-format", "", "log format override (console|json)")
	flag.StringVar(&logOutput, "log-output", "", "log output override (stdout|stderr)")
	flag.BoolVar(&logSource, "log-source", false, "include caller in logs")
	flag.BoolVar(&logUTC, "log-utc", false, "use UTC timestamps in logs")
	flag.StringVar(&moduleOnly, "module", "", "limit to a single module")
	flag.BoolVar(&printConfig, "print-config", false, "print resolved config and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "validate config and exit")
	flag.Parse()

	cfg, err := pickd.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(&cfg, broker, identity, topicBase, logLevel, logFormat, logOutput, logSource, logUTC)

	if printConfig {
		printResolvedConfig(cfg)
		return
	}

	logger, err := pickd.NewLogger(pickd.LogConfig{
		Level:     cfg.Server.LogLevel,
		Format:    cfg.Server.LogFormat,
		Output:    cfg.Server.LogOutput,
		AddSource: cfg.Server.LogSource,
		UTC:       cfg.Server.LogUTC,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if dryRun {
		noConnect := func(string) (gatewaynode.Client, error) { return nil, nil }
		if _, err := buildModules(cfg, noConnect, logger, moduleOnly, false); err != nil {
			logger.Error("invalid config", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	skipEmbedded := false
	if moduleOnly != "embedded_mqtt" && cfg.Modules.EmbeddedMQTT.Enabled && cfg.Server.Broker == embeddedBrokerURL(cfg) {
		if err := startEmbeddedBroker(ctx, cfg, logger, cancel); err != nil {
			logger.Error("embedded mqtt failed", zap.Error(err))
			os.Exit(1)
		}
		skipEmbedded = true
	}

	if cfg.Server.Broker == "" && !(moduleOnly == "embedded_mqtt" && cfg.Modules.EmbeddedMQTT.Enabled) {
		logger.Error("broker is required")
		os.Exit(1)
	}
	logger.Info("mpickd starting",
		zap.String("broker", cfg.Server.Broker),
		zap.String("identity", cfg.Server.Identity),
		zap.String("topic_base", cfg.Server.TopicBase),
		zap.Strings("modules", enabledModules(cfg)),
	)

	var clients []*mqttserver.Client
	defer func() {
		for _, client := range clients {
			client.Close()
		}
	}()
	connect := func(nodeID string) (gatewaynode.Client, error) {
		client, err := mqttserver.NewClient(mqttserver.Options{
			BrokerURL:   cfg.Server.Broker,
			ClientID:    fmt.Sprintf("mpickd-%s-%d", gatewaynode.Slug(nodeID), time.Now().UnixNano()),
			Username:    cfg.Server.Auth.User,
			Password:    cfg.Server.Auth.Pass,
			TLSCA:       cfg.Server.TLS.CA,
			TLSCert:     cfg.Server.TLS.Cert,
			TLSKey:      cfg.Server.TLS.Key,
			Timeout:     2 * time.Second,
			Logger:      logger.With(zap.String("node_id", nodeID)),
			Debug:       strings.EqualFold(cfg.Server.LogLevel, "debug"),
			WillTopic:   mp.TopicPresence(cfg.Server.TopicBase, nodeID),
			WillPayload: []byte{},
		})
		if err != nil {
			return nil, fmt.Errorf("mqtt connection for %s: %w", nodeID, err)
		}
		clients = append(clients, client)
		return client, nil
	}

	modules, err := buildModules(cfg, connect, logger, moduleOnly, skipEmbedded)
	if err != nil {
		logger.Error("failed to build modules", zap.Error(err))
		os.Exit(1)
	}

	supervisor := pickd.Supervisor{Logger: logger}
	if err := supervisor.Run(ctx, modules); err != nil {
		logger.Error("supervisor error", zap.Error(err))
		os.Exit(1)
	}
}

func applyOverrides(cfg *pickd.Config, broker, identity, topicBase, logLevel, logFormat, logOutput string, logSource, logUTC bool) {
	if broker != "" {
		cfg.Server.Broker = broker
	}
	if identity != "" {
		cfg.Server.Identity = identity
	}
	if topicBase != "" {
		cfg.Server.TopicBase = topicBase
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Server.LogFormat = logFormat
	}
	if logOutput != "" {
		cfg.Server.LogOutput = logOutput
	}
	if logSource {
		cfg.Server.LogSource = true
	}
	if logUTC {
		cfg.Server.LogUTC = true
	}
	if cfg.Server.Identity == "" {
		cfg.Server.Identity = "mpickd"
	}
	if cfg.Server.TopicBase == "" {
		cfg.Server.TopicBase = mp.BaseTopic
	}
	if cfg.Server.Broker == "" && cfg.Modules.EmbeddedMQTT.Enabled {
		cfg.Server.Broker = embeddedBrokerURL(*cfg)
	}
}

func buildModules(cfg pickd.Config, connect connectFunc, logger *zap.Logger, moduleOnly string, skipEmbedded bool) ([]pickd.ModuleRunner, error) {
	modules := []pickd.ModuleRunner{}
	wanted := func(name string) bool { return moduleOnly == "" || moduleOnly == name }

	if cfg.Modules.EmbeddedMQTT.Enabled && !skipEmbedded && wanted("embedded_mqtt") {
		mod, err := embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedConfig(cfg))
		if err != nil {
			return nil, err
		}
		modules = append(modules, pickd.ModuleRunner{Name: "embedded_mqtt", Run: mod.Run})
	}

	if hass := cfg.Modules.HassGateway; hass.Enabled && wanted("hass_gateway") {
		nodeID := defaultNodeID(hass.NodeID, "gateway", cfg.Server.Identity, "hass")
		client, err := connect(nodeID)
		if err != nil {
			return nil, err
		}
		mod, err := hassgateway.NewModule(logger.With(zap.String("module", "hass_gateway")), client, hassgateway.Config{
			NodeID:    nodeID,
			TopicBase: cfg.Server.TopicBase,
			Name:      hass.Name,
			URL:       hass.URL,
			Token:     hass.Token,
			Timeout:   time.Duration(hass.TimeoutMS) * time.Millisecond,
		})
		if err != nil {
			return nil, fmt.Errorf("hass_gateway: %w", err)
		}
		modules = append(modules, pickd.ModuleRunner{Name: "hass_gateway", Run: mod.Run})
	}

	if podcasts := cfg.Modules.PodcastSource; podcasts.Enabled && wanted("podcast_source") {
		refresh := time.Duration(0)
		if podcasts.RefreshInterval != "" {
			parsed, err := time.ParseDuration(podcasts.RefreshInterval)
			if err != nil {
				return nil, fmt.Errorf("podcast_source refresh_interval: %w", err)
			}
			refresh = parsed
		}
		nodeID := defaultNodeID(podcasts.NodeID, "source", cfg.Server.Identity, "podcasts")
		client, err := connect(nodeID)
		if err != nil {
			return nil, err
		}
		mod, err := podcastsource.NewModule(logger.With(zap.String("module", "podcast_source")), client, podcastsource.Config{
			NodeID:            nodeID,
			TopicBase:         cfg.Server.TopicBase,
			Name:              podcasts.Name,
			Feeds:             podcasts.Feeds,
			RefreshInterval:   refresh,
			CacheDir:          podcasts.CacheDir,
			Timeout:           time.Duration(podcasts.TimeoutMS) * time.Millisecond,
			ReverseSortByDate: podcasts.ReverseSortByDate,
		})
		if err != nil {
			return nil, fmt.Errorf("podcast_source: %w", err)
		}
		modules = append(modules, pickd.ModuleRunner{Name: "podcast_source", Run: mod.Run})
	}

	if files := cfg.Modules.FSSource; files.Enabled && wanted("fs_source") {
		nodeID := defaultNodeID(files.NodeID, "source", cfg.Server.Identity, "files")
		client, err := connect(nodeID)
		if err != nil {
			return nil, err
		}
		mod, err := fssource.NewModule(logger.With(zap.String("module", "fs_source")), client, fssource.Config{
			NodeID:    nodeID,
			TopicBase: cfg.Server.TopicBase,
			Name:      files.Name,
			Roots:     files.Roots,
			Listen:    files.Listen,
			BaseURL:   files.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("fs_source: %w", err)
		}
		modules = append(modules, pickd.ModuleRunner{Name: "fs_source", Run: mod.Run})
	}

	if moduleOnly != "" && len(modules) == 0 {
		return nil, errors.New("no modules enabled")
	}
	return modules, nil
}

func defaultNodeID(configured, kind, identity, name string) string {
	if strings.TrimSpace(configured) != "" {
		return configured
	}
	return fmt.Sprintf("mp:%s:%s:%s", kind, identity, name)
}

func enabledModules(cfg pickd.Config) []string {
	out := []string{}
	if cfg.Modules.EmbeddedMQTT.Enabled {
		out = append(out, "embedded_mqtt")
	}
	if cfg.Modules.HassGateway.Enabled {
		out = append(out, "hass_gateway")
	}
	if cfg.Modules.PodcastSource.Enabled {
		out = append(out, "podcast_source")
	}
	if cfg.Modules.FSSource.Enabled {
		out = append(out, "fs_source")
	}
	return out
}

func printResolvedConfig(cfg pickd.Config) {
	fmt.Fprintf(os.Stdout,
		"broker=%s identity=%s topic_base=%s log_level=%s log_format=%s log_output=%s log_source=%t log_utc=%t modules=%s\n",
		cfg.Server.Broker,
		cfg.Server.Identity,
		cfg.Server.TopicBase,
		cfg.Server.LogLevel,
		cfg.Server.LogFormat,
		cfg.Server.LogOutput,
		cfg.Server.LogSource,
		cfg.Server.LogUTC,
		strings.Join(enabledModules(cfg), ","),
	)
}

func embeddedConfig(cfg pickd.Config) embeddedmqtt.Config {
	return embeddedmqtt.Config{
		Listen:         cfg.Modules.EmbeddedMQTT.Listen,
		AllowAnonymous: cfg.Modules.EmbeddedMQTT.AllowAnonymous,
		Username:       cfg.Modules.EmbeddedMQTT.Username,
		Password:       cfg.Modules.EmbeddedMQTT.Password,
		TLSCA:          cfg.Modules.EmbeddedMQTT.TLSCA,
		TLSCert:        cfg.Modules.EmbeddedMQTT.TLSCert,
		TLSKey:         cfg.Modules.EmbeddedMQTT.TLSKey,
	}
}

func embeddedBrokerURL(cfg pickd.Config) string {
	embedded := embeddedConfig(cfg)
	listen := embedded.Listen
	if listen == "" {
		listen = defaultEmbeddedListen
	}
	return embeddedmqtt.BrokerURL(listen, embedded.TLSEnabled())
}

func startEmbeddedBroker(ctx context.Context, cfg pickd.Config, logger *zap.Logger, cancel context.CancelFunc) error {
	mod, err := embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedConfig(cfg))
	if err != nil {
		return err
	}
	go func() {
		if err := mod.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("embedded mqtt exited", zap.Error(err))
			cancel()
		}
	}()

	listen := cfg.Modules.EmbeddedMQTT.Listen
	if listen == "" {
		listen = defaultEmbeddedListen
	}
	return waitForListen(listen, 3*time.Second)
}

func waitForListen(listen string, timeout time.Duration) error {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, port)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("embedded mqtt not ready at %s", addr)
}
