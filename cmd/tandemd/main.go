package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mikey-austin/tandem/internal/adapters/logging"
	"github.com/mikey-austin/tandem/internal/adapters/mqttserver"
	"github.com/mikey-austin/tandem/internal/modules/coordinator"
	embeddedmqtt "github.com/mikey-austin/tandem/internal/modules/embedded_mqtt"
	"github.com/mikey-austin/tandem/internal/tandemd"
	"github.com/mikey-austin/tandem/pkg/tandem"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath  string
		broker      string
		identity    string
		topicBase   string
		listen      string
		logLevel    string
		logFormat   string
		logOutput   string
		logSource   bool
		logUTC      bool
		logColor    bool
		printConfig bool
		dryRun      bool
		moduleOnly  string
	)

	defaultConfig, err := tandemd.DefaultConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&configPath, "config", defaultConfig, "config file path")
	flag.StringVar(&broker, "broker", "", "MQTT broker URL override")
	flag.StringVar(&identity, "identity", "", "server identity override")
	flag.StringVar(&topicBase, "topic-base", "", "topic base override")
	flag.StringVar(&listen, "listen", "", "coordinator WebSocket listen address override")
	flag.StringVar(&logLevel, "log-level", "", "log level override")
	flag.StringVar(&logFormat, "log-format", "", "log format override (text|json)")
	flag.StringVar(&logOutput, "log-output", "", "log output override (stdout|stderr)")
	flag.BoolVar(&logSource, "log-source", false, "include source file in logs")
	flag.BoolVar(&logUTC, "log-utc", false, "use UTC timestamps in logs")
	flag.BoolVar(&logColor, "log-color", false, "enable colored log output (text only)")
	flag.StringVar(&moduleOnly, "module", "", "limit to a single module")
	flag.BoolVar(&printConfig, "print-config", false, "print resolved config and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "validate config and exit")
	flag.Parse()

	cfg, err := tandemd.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(&cfg, overrides{
		broker:    broker,
		identity:  identity,
		topicBase: topicBase,
		listen:    listen,
		logLevel:  logLevel,
		logFormat: logFormat,
		logOutput: logOutput,
		logSource: logSource,
		logUTC:    logUTC,
		logColor:  logColor,
	})

	if printConfig {
		printResolvedConfig(cfg)
		return
	}
	if dryRun {
		return
	}

	logger := logging.New(logging.Config{
		App:       "tandemd",
		Level:     cfg.Server.LogLevel,
		Format:    cfg.Server.LogFormat,
		Output:    cfg.Server.LogOutput,
		AddSource: cfg.Server.LogSource,
		UTC:       cfg.Server.LogUTC,
		Color:     cfg.Server.LogColor,
	})
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	embeddedURL := embeddedBrokerURL(cfg)
	skipEmbedded := false

	if moduleOnly != "embedded_mqtt" && cfg.Modules.EmbeddedMQTT.Enabled && cfg.Server.Broker == embeddedURL {
		if err := startEmbeddedBroker(ctx, cfg, logger, cancel); err != nil {
			logger.Error("embedded mqtt failed", zap.Error(err))
			os.Exit(1)
		}
		skipEmbedded = true
	}

	needBroker := moduleOnly != "embedded_mqtt" && cfg.Modules.Coordinator.Enabled && cfg.Server.Broker != ""
	logger.Info("tandemd starting",
		zap.String("broker", cfg.Server.Broker),
		zap.String("identity", cfg.Server.Identity),
		zap.String("topic_base", cfg.Server.TopicBase),
		zap.String("log_level", cfg.Server.LogLevel),
		zap.String("log_format", cfg.Server.LogFormat),
		zap.Strings("modules", enabledModules(cfg)),
	)

	var client coordinator.Broker
	if needBroker {
		mc, err := mqttserver.NewClient(mqttserver.Options{
			BrokerURL: cfg.Server.Broker,
			ClientID:  cfg.Server.Identity,
			Username:  cfg.Server.Auth.User,
			Password:  cfg.Server.Auth.Pass,
			TLSCA:     cfg.Server.TLS.CA,
			TLSCert:   cfg.Server.TLS.Cert,
			TLSKey:    cfg.Server.TLS.Key,
			Timeout:   2 * time.Second,
			Logger:    logger.With(zap.String("module", "mqtt")),
			Debug:     cfg.Server.LogLevel == "debug",
		})
		if err != nil {
			logger.Error("mqtt connection failed", zap.Error(err))
			os.Exit(1)
		}
		defer mc.Close()
		client = mc
	}

	modules, err := buildModules(cfg, client, logger, moduleOnly, skipEmbedded)
	if err != nil {
		logger.Error("failed to build modules", zap.Error(err))
		os.Exit(1)
	}

	supervisor := tandemd.Supervisor{Logger: logger}
	if err := supervisor.Run(ctx, modules); err != nil {
		logger.Error("supervisor error", zap.Error(err))
		os.Exit(1)
	}
}

type overrides struct {
	broker    string
	identity  string
	topicBase string
	listen    string
	logLevel  string
	logFormat string
	logOutput string
	logSource bool
	logUTC    bool
	logColor  bool
}

func applyOverrides(cfg *tandemd.Config, o overrides) {
	if o.broker != "" {
		cfg.Server.Broker = o.broker
	}
	if o.identity != "" {
		cfg.Server.Identity = o.identity
	}
	if o.topicBase != "" {
		cfg.Server.TopicBase = o.topicBase
	}
	if o.listen != "" {
		cfg.Modules.Coordinator.Listen = o.listen
	}
	if o.logLevel != "" {
		cfg.Server.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Server.LogFormat = o.logFormat
	}
	if o.logOutput != "" {
		cfg.Server.LogOutput = o.logOutput
	}
	if o.logSource {
		cfg.Server.LogSource = true
	}
	if o.logUTC {
		cfg.Server.LogUTC = true
	}
	if o.logColor {
		cfg.Server.LogColor = true
	}
	if cfg.Server.TopicBase == "" {
		cfg.Server.TopicBase = tandem.BaseTopic
	}
	if cfg.Server.Identity == "" {
		cfg.Server.Identity = "tandemd"
	}
	embedded := cfg.Modules.EmbeddedMQTT
	if cfg.Server.Broker == "" && embedded.Enabled {
		cfg.Server.Broker = embeddedmqtt.BrokerURL(embedded.ListenAddr(), embedded.TLSEnabled())
	}
	// Log in to our own broker with its coordinator credentials.
	if cfg.Server.Auth.User == "" && embedded.Enabled && cfg.Server.Broker == embeddedBrokerURL(*cfg) {
		cfg.Server.Auth.User = embedded.Username
		cfg.Server.Auth.Pass = embedded.Password
	}
}

func buildModules(cfg tandemd.Config, client coordinator.Broker, logger *zap.Logger, moduleOnly string, skipEmbedded bool) ([]tandemd.ModuleRunner, error) {
	modules := []tandemd.ModuleRunner{}
	if cfg.Modules.EmbeddedMQTT.Enabled && !skipEmbedded {
		if moduleOnly == "" || moduleOnly == "embedded_mqtt" {
			mod, err := newEmbeddedBroker(cfg, logger)
			if err != nil {
				return nil, err
			}
			modules = append(modules, tandemd.ModuleRunner{
				Name: "embedded_mqtt",
				Run:  mod.Run,
			})
		}
	}

	if cfg.Modules.Coordinator.Enabled {
		if moduleOnly == "" || moduleOnly == "coordinator" {
			mod, err := coordinator.NewModule(logger.With(zap.String("module", "coordinator")), client, nil, coordinator.Config{
				TopicBase:      cfg.Server.TopicBase,
				HandoffTimeout: time.Duration(cfg.Modules.Coordinator.HandoffTimeoutMS) * time.Millisecond,
				Listen:         cfg.Modules.Coordinator.Listen,
				Accounts:       cfg.Modules.Coordinator.Accounts,
			})
			if err != nil {
				return nil, err
			}
			modules = append(modules, tandemd.ModuleRunner{
				Name: "coordinator",
				Run:  mod.Run,
			})
		}
	}

	if moduleOnly != "" && len(modules) == 0 {
		return nil, errors.New("no modules enabled")
	}
	return modules, nil
}

func enabledModules(cfg tandemd.Config) []string {
	out := []string{}
	if cfg.Modules.EmbeddedMQTT.Enabled {
		out = append(out, "embedded_mqtt")
	}
	if cfg.Modules.Coordinator.Enabled {
		out = append(out, "coordinator")
	}
	return out
}

func printResolvedConfig(cfg tandemd.Config) {
	fmt.Fprintf(os.Stdout,
		"broker=%s identity=%s topic_base=%s listen=%s log_level=%s log_format=%s log_output=%s log_source=%t log_utc=%t log_color=%t modules=%v\n",
		cfg.Server.Broker,
		cfg.Server.Identity,
		cfg.Server.TopicBase,
		cfg.Modules.Coordinator.Listen,
		cfg.Server.LogLevel,
		cfg.Server.LogFormat,
		cfg.Server.LogOutput,
		cfg.Server.LogSource,
		cfg.Server.LogUTC,
		cfg.Server.LogColor,
		enabledModules(cfg),
	)
}

func embeddedBrokerURL(cfg tandemd.Config) string {
	embedded := cfg.Modules.EmbeddedMQTT
	return embeddedmqtt.BrokerURL(embedded.ListenAddr(), embedded.TLSEnabled())
}

func newEmbeddedBroker(cfg tandemd.Config, logger *zap.Logger) (*embeddedmqtt.Module, error) {
	embedded := cfg.Modules.EmbeddedMQTT
	return embeddedmqtt.NewModule(logger.With(zap.String("module", "embedded_mqtt")), embeddedmqtt.Config{
		Listen:         embedded.Listen,
		AllowAnonymous: embedded.AllowAnonymous,
		Username:       embedded.Username,
		Password:       embedded.Password,
		TopicBase:      cfg.Server.TopicBase,
		Accounts:       embedded.Accounts,
		TLSCA:          embedded.TLSCA,
		TLSCert:        embedded.TLSCert,
		TLSKey:         embedded.TLSKey,
	})
}

func startEmbeddedBroker(ctx context.Context, cfg tandemd.Config, logger *zap.Logger, cancel context.CancelFunc) error {
	mod, err := newEmbeddedBroker(cfg, logger)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- mod.Run(ctx)
	}()
	go func() {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("embedded mqtt exited", zap.Error(err))
			cancel()
		}
	}()

	return waitForListen(cfg.Modules.EmbeddedMQTT.ListenAddr(), 3*time.Second)
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
