package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mikey-austin/media_picker/internal/adapters/clock"
	"github.com/mikey-austin/media_picker/internal/adapters/config"
	"github.com/mikey-austin/media_picker/internal/adapters/hass"
	"github.com/mikey-austin/media_picker/internal/adapters/idgen"
	"github.com/mikey-austin/media_picker/internal/adapters/mqtt"
	"github.com/mikey-austin/media_picker/internal/adapters/output"
	"github.com/mikey-austin/media_picker/internal/adapters/pathstore"
	"github.com/mikey-austin/media_picker/internal/core"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

const (
	backendHass = "hass"
	backendMQTT = "mqtt"
)

type app struct {
	service core.Service
	printer output.Printer
	quiet   bool
	json    bool
	timeout time.Duration
	current string
	close   func()
}

type flags struct {
	backend   string
	hassURL   string
	hassToken string
	broker    string
	gateway   string
	topicBase string
	identity  string
	timeout   time.Duration
	quiet     bool
	jsonOut   bool
	noColor   bool
	verbose   bool
	tlsCA     string
	tlsCert   string
	tlsKey    string
	userOpt   string
	passOpt   string
	current   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(core.ExitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "mpick",
		Short:        "Media picker CLI",
		SilenceUsage: true,
	}

	var f flags
	root.PersistentFlags().StringVar(&f.backend, "backend", "", "remote backend (hass|mqtt)")
	root.PersistentFlags().StringVar(&f.hassURL, "hass-url", "", "Home Assistant URL")
	root.PersistentFlags().StringVar(&f.hassToken, "hass-token", "", "Home Assistant access token")
	root.PersistentFlags().StringVarP(&f.broker, "broker", "b", "", "MQTT broker URL")
	root.PersistentFlags().StringVarP(&f.gateway, "gateway", "g", "", "gateway node selector")
	root.PersistentFlags().StringVar(&f.topicBase, "topic-base", mp.BaseTopic, "MQTT topic base")
	root.PersistentFlags().StringVarP(&f.identity, "identity", "i", "", "controller identity")
	root.PersistentFlags().DurationVarP(&f.timeout, "timeout", "t", 10*time.Second, "command timeout")
	root.PersistentFlags().BoolVarP(&f.quiet, "quiet", "q", false, "suppress non-essential output")
	root.PersistentFlags().BoolVarP(&f.jsonOut, "json", "j", false, "output json")
	root.PersistentFlags().BoolVar(&f.noColor, "no-color", false, "disable color")
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "verbose logging to stderr")
	root.PersistentFlags().StringVar(&f.tlsCA, "tls-ca", "", "TLS CA path")
	root.PersistentFlags().StringVar(&f.tlsCert, "tls-cert", "", "TLS cert path")
	root.PersistentFlags().StringVar(&f.tlsKey, "tls-key", "", "TLS key path")
	root.PersistentFlags().StringVar(&f.userOpt, "user", "", "MQTT username")
	root.PersistentFlags().StringVar(&f.passOpt, "pass", "", "MQTT password")
	root.PersistentFlags().StringVar(&f.current, "current", "", "current selection json file (- for stdin)")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if f.noColor {
			pterm.DisableColor()
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a, err := buildApp(cmd.Context(), f, cfg)
		if err != nil {
			return err
		}
		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
		return nil
	}
	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if a := fromContext(cmd); a != nil && a.close != nil {
			a.close()
		}
	}

	root.AddCommand(playersCommand())
	root.AddCommand(nodesCommand())
	root.AddCommand(browseCommand())
	root.AddCommand(searchCommand())
	root.AddCommand(pickCommand())
	root.AddCommand(resolveCommand())
	root.AddCommand(pathCommand())
	return root
}

func buildApp(ctx context.Context, f flags, cfg config.Config) (*app, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := newLogger(f.verbose)
	if err != nil {
		return nil, err
	}

	coreCfg := cfg.Core()
	coreCfg.Identity = defaultIdentity(f.identity, cfg.Identity)
	coreCfg.TopicBase = f.topicBase
	if coreCfg.TopicBase == mp.BaseTopic && cfg.TopicBase != "" {
		coreCfg.TopicBase = cfg.TopicBase
	}
	coreCfg.Backend = selectBackend(f.backend, cfg)

	paths, err := openPaths(cfg.StateFile)
	if err != nil {
		return nil, err
	}

	service := core.Service{
		Paths:    paths,
		Notifier: output.Notifier{Quiet: f.quiet},
		Clock:    clock.Clock{},
		Config:   coreCfg,
		Logger:   logger,
	}

	var closeFn func()
	switch coreCfg.Backend {
	case backendHass:
		url := firstNonEmpty(f.hassURL, cfg.Hass.URL)
		token := firstNonEmpty(f.hassToken, cfg.Hass.Token)
		if url == "" || token == "" {
			return nil, &core.CLIError{Code: core.ExitUsage, Msg: "hass backend requires a url and token (set --hass-url/--hass-token or config)"}
		}
		dialCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()
		client, err := hass.Dial(dialCtx, hass.Options{
			URL:     url,
			Token:   token,
			Timeout: f.timeout,
			Logger:  logger.Named("hass"),
		})
		if err != nil {
			return nil, core.WrapError(core.ExitRuntime, "connect to home assistant", err)
		}
		service.Remote = client
		service.States = client
		service.Resolver = core.Resolver{Config: coreCfg}
		closeFn = func() { _ = client.Close() }
	case backendMQTT:
		broker := firstNonEmpty(f.broker, cfg.MQTT.Broker)
		if broker == "" {
			return nil, &core.CLIError{Code: core.ExitUsage, Msg: "broker is required (set --broker or config)"}
		}
		mqttClient, err := mqtt.NewClient(mqtt.Options{
			BrokerURL: broker,
			ClientID:  fmt.Sprintf("mpick-%d", time.Now().UnixNano()),
			Username:  firstNonEmpty(f.userOpt, cfg.MQTT.Username),
			Password:  firstNonEmpty(f.passOpt, cfg.MQTT.Password),
			TLSCA:     firstNonEmpty(f.tlsCA, cfg.MQTT.TLSCA),
			TLSCert:   firstNonEmpty(f.tlsCert, cfg.MQTT.TLSCert),
			TLSKey:    firstNonEmpty(f.tlsKey, cfg.MQTT.TLSKey),
			TopicBase: coreCfg.TopicBase,
			Timeout:   f.timeout,
		})
		if err != nil {
			return nil, core.WrapError(core.ExitRuntime, "connect to broker", err)
		}
		resolver := core.Resolver{Presence: mqttClient, Config: coreCfg}
		resolveCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()
		node, err := resolver.ResolveGateway(resolveCtx, f.gateway)
		if err != nil {
			mqttClient.Close()
			return nil, err
		}
		gateway := core.Gateway{
			Broker:   mqttClient,
			NodeID:   node.NodeID,
			Clock:    clock.Clock{},
			IDGen:    idgen.Generator{},
			Identity: coreCfg.Identity,
		}
		service.Remote = gateway
		service.States = gateway
		service.Broker = mqttClient
		service.Resolver = resolver
		closeFn = mqttClient.Close
	default:
		return nil, &core.CLIError{Code: core.ExitUsage, Msg: fmt.Sprintf("unknown backend %q", coreCfg.Backend)}
	}

	var printer output.Printer
	if f.jsonOut {
		printer = output.JSONPrinter{}
	} else {
		printer = output.HumanPrinter{}
	}

	return &app{
		service: service,
		printer: printer,
		quiet:   f.quiet,
		json:    f.jsonOut,
		timeout: f.timeout,
		current: f.current,
		close: func() {
			closeFn()
			_ = logger.Sync()
		},
	}, nil
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// selectBackend picks the flag, then config, then hass when a hass URL is
// configured, falling back to mqtt.
func selectBackend(flagVal string, cfg config.Config) string {
	backend := strings.ToLower(strings.TrimSpace(firstNonEmpty(flagVal, cfg.Backend)))
	if backend != "" {
		return backend
	}
	if cfg.Hass.URL != "" {
		return backendHass
	}
	return backendMQTT
}

func openPaths(stateFile string) (*pathstore.Store, error) {
	if stateFile != "" {
		return pathstore.Open(stateFile), nil
	}
	return pathstore.NewStore()
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func defaultIdentity(flagVal string, cfgVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if cfgVal != "" {
		return cfgVal
	}
	usr, _ := user.Current()
	host, _ := os.Hostname()
	if usr != nil && host != "" {
		return fmt.Sprintf("%s@%s", usr.Username, host)
	}
	if host != "" {
		return host
	}
	return "mpick-unknown"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// currentSelection reads the --current selection, if any.
func (a *app) currentSelection() (*mp.Selection, error) {
	if a.current == "" {
		return nil, nil
	}
	data, err := readFileOrStdin(a.current)
	if err != nil {
		return nil, core.WrapError(core.ExitUsage, "read current selection", err)
	}
	return parseSelection(data)
}

func parseSelection(data []byte) (*mp.Selection, error) {
	var sel mp.Selection
	if err := json.Unmarshal(data, &sel); err != nil {
		return nil, core.WrapError(core.ExitUsage, "parse current selection", err)
	}
	if strings.TrimSpace(sel.MediaContentID) == "" {
		return nil, &core.CLIError{Code: core.ExitUsage, Msg: "current selection has no media_content_id"}
	}
	return &sel, nil
}

func readFileOrStdin(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
