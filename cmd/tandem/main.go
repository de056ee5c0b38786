package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey-austin/tandem/internal/adapters/config"
	"github.com/mikey-austin/tandem/internal/adapters/logging"
	"github.com/mikey-austin/tandem/internal/adapters/output"
	"github.com/mikey-austin/tandem/internal/core"
)

type app struct {
	cfg     config.Config
	log     *zap.Logger
	printer output.Printer
	json    bool
	timeout time.Duration
}

func main() {
	root := &cobra.Command{
		Use:           "tandem",
		Short:         "Keep playback in step across your devices",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var (
		configPath string
		url        string
		transport  string
		account    string
		token      string
		name       string
		jsonOut    bool
		timeout    time.Duration
		logLevel   string
	)

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	root.PersistentFlags().StringVarP(&url, "url", "u", "", "coordinator URL (ws://, wss://, tcp://, mqtt://)")
	root.PersistentFlags().StringVar(&transport, "transport", "", "transport (ws|mqtt)")
	root.PersistentFlags().StringVar(&account, "account", "", "account name")
	root.PersistentFlags().StringVar(&token, "token", "", "account token")
	root.PersistentFlags().StringVarP(&name, "name", "n", "", "device name")
	root.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output json")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 5*time.Second, "command timeout")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug|info|warn|error)")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return core.WrapError(core.ExitUsage, "load config", err)
		}
		applyFlags(&cfg, flagOverrides{
			url:       url,
			transport: transport,
			account:   account,
			token:     token,
			name:      name,
			logLevel:  logLevel,
		})
		if err := validate(cfg); err != nil {
			return err
		}

		logger := logging.New(logging.Config{
			App:    "tandem",
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			Output: "stderr",
		})
		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, &app{
			cfg:     cfg,
			log:     logger,
			printer: output.New(cmd.OutOrStdout(), jsonOut),
			json:    jsonOut,
			timeout: timeout,
		}))
		return nil
	}

	root.AddCommand(runCommand())
	root.AddCommand(statusCommand())
	root.AddCommand(devicesCommand())
	root.AddCommand(idCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tandem:", err)
		os.Exit(core.ExitCode(err))
	}
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}

type flagOverrides struct {
	url       string
	transport string
	account   string
	token     string
	name      string
	logLevel  string
}

func applyFlags(cfg *config.Config, o flagOverrides) {
	if o.url != "" {
		cfg.Coordinator.URL = o.url
		if o.transport == "" {
			cfg.Coordinator.Transport = transportFor(o.url)
		}
	}
	if o.transport != "" {
		cfg.Coordinator.Transport = o.transport
	}
	if o.account != "" {
		cfg.Coordinator.Account = o.account
	}
	if o.token != "" {
		cfg.Coordinator.Token = o.token
	}
	if o.name != "" {
		cfg.Device.Name = o.name
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
}

// transportFor infers the transport from the URL scheme.
func transportFor(url string) string {
	for _, prefix := range []string{"tcp://", "mqtt://", "mqtts://", "ssl://", "tls://"} {
		if strings.HasPrefix(url, prefix) {
			return "mqtt"
		}
	}
	return "ws"
}

func validate(cfg config.Config) error {
	switch cfg.Coordinator.Transport {
	case "ws", "mqtt":
	default:
		return &core.CLIError{Code: core.ExitUsage, Msg: fmt.Sprintf("unknown transport %q (ws|mqtt)", cfg.Coordinator.Transport)}
	}
	if strings.TrimSpace(cfg.Coordinator.URL) == "" {
		return &core.CLIError{Code: core.ExitUsage, Msg: "coordinator url is required (set --url or config)"}
	}
	if cfg.Coordinator.Transport == "mqtt" && strings.TrimSpace(cfg.Coordinator.Account) == "" {
		return &core.CLIError{Code: core.ExitUsage, Msg: "mqtt transport requires an account"}
	}
	return nil
}
