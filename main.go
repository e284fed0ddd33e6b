package main

import (
	"fmt"
	"os"
	"runtime"

	"capitao/caverna"
	"capitao/config"
	"capitao/logging"
	"capitao/present"
	"capitao/submit"
	"capitao/tracker"
	"capitao/tui"

	"github.com/spf13/cobra"
)

// Build info - set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile string
	verbose bool
	noTUI   bool
	output  string
)

var rootCmd = &cobra.Command{
	Use:   "capitao",
	Short: "Pergunte ao Capitão Caverna pelo terminal",
	Long: `capitao envia perguntas em vídeo, áudio ou texto para o serviço
"Pergunte ao Capitão" e acompanha o processamento até a resposta.

Configuração (em ordem de precedência):
  1. flags da linha de comando
  2. variáveis CAPITAO_* (também lidas de .env)
  3. --config ou capitao.yaml (diretório atual ou ~/.config/capitao)

Sem subcomando, abre o modo interativo quando o terminal permite.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !tui.IsTTY() {
			return cmd.Help()
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return runInteractive(cmd.Context(), a)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "capitao %s\n", version)
		fmt.Fprintf(w, "  commit: %s\n", commit)
		fmt.Fprintf(w, "  built:  %s\n", date)
		fmt.Fprintf(w, "  go:     %s\n", runtime.Version())
		fmt.Fprintf(w, "  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./capitao.yaml or ~/.config/capitao/capitao.yaml)")
	flags.String("api-url", "", "base URL of the service")
	flags.Duration("timeout", 0, "HTTP timeout for API requests")
	flags.String("transport", "", "processing stream transport: sse or websocket")
	flags.String("log-file", "", "log file (default ~/.capitao/logs/capitao.log)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.BoolVarP(&verbose, "verbose", "v", false, "also log to stderr")
	flags.BoolVar(&noTUI, "no-tui", false, "print plain progress lines instead of the full screen UI")
	flags.StringVarP(&output, "output", "o", "text", "result format: text, json or yaml")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(cacheStatsCmd)
	rootCmd.AddCommand(similarCmd)
	rootCmd.AddCommand(lipsyncCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(updateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, tui.ErrorStyle.Render("Erro: "+err.Error()))
		os.Exit(1)
	}
}

// app holds what every networked command needs
type app struct {
	cfg    *config.Config
	log    *logging.Logger
	client *caverna.Client
	format present.Format
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	format, err := present.ParseFormat(output)
	if err != nil {
		return nil, err
	}

	logFile := cfg.Log.File
	if logFile == "" {
		logFile = logging.DefaultFile()
	}
	logger, err := logging.New(logging.Config{
		File:       logFile,
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Console:    verbose,
		ConsoleOut: os.Stderr,
	})
	if err != nil {
		return nil, err
	}

	cli := logger.Component("cli")
	for _, w := range cfg.Warnings() {
		cli.Warn().Msg(w)
		if verbose {
			fmt.Fprintln(os.Stderr, tui.WarningStyle.Render("aviso: "+w))
		}
	}

	client, err := caverna.NewClient(
		caverna.WithBaseURL(cfg.API.BaseURL),
		caverna.WithTimeout(cfg.API.Timeout),
		caverna.WithHealthCacheTTL(cfg.Health.CacheTTL),
		caverna.WithLogger(logger.Logger),
	)
	if err != nil {
		logger.Close()
		return nil, err
	}

	cli.Debug().Str("base_url", client.BaseURL()).Str("transport", cfg.Stream.Transport).Msg("client ready")
	return &app{cfg: cfg, log: logger, client: client, format: format}, nil
}

// Close flushes the log file
func (a *app) Close() {
	_ = a.log.Close()
}

func (a *app) dialer() tracker.Dialer {
	if a.cfg.Stream.Transport == config.TransportWebSocket {
		return tracker.WebSocketDialer(a.client)
	}
	return tracker.SSEDialer(a.client)
}

func (a *app) trackerOptions() []tracker.Option {
	return []tracker.Option{
		tracker.WithReconnectPolicy(a.cfg.ReconnectPolicy()),
		tracker.WithLogger(a.log.Logger),
	}
}

// newController builds a submission controller reporting to n and onChange
func (a *app) newController(n submit.Notifier, onChange func(submit.Snapshot)) *submit.Controller {
	return submit.New(a.client,
		submit.WithNotifier(n),
		submit.WithDialer(a.dialer()),
		submit.WithTrackerOptions(a.trackerOptions()...),
		submit.WithLogger(a.log.Logger),
		submit.RequireConsent(a.cfg.Submit.RequireConsent),
		submit.OnChange(onChange),
	)
}

// useTUI reports whether progress should be shown full screen
func (a *app) useTUI() bool {
	return !noTUI && a.format == present.FormatText && tui.IsTTY()
}
