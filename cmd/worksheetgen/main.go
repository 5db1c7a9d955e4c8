package main

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/worksheetgen/internal/api"
	"github.com/pavelanni/worksheetgen/internal/model"
	"github.com/pavelanni/worksheetgen/internal/poller"
	"github.com/pavelanni/worksheetgen/internal/wizard"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "worksheetgen",
		Short: "Worksheet generation wizard and spreadsheet exporter",
	}

	serve := serveCmd()
	root.AddCommand(serve, generateCmd(), exportCmd(), sessionCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `worksheetgen --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLoggingFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

// addWizardFlags registers the remote API and polling flags shared by the
// commands that drive the wizard.
func addWizardFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "worksheetgen.db", "SQLite database path for the session cache")
	f.String("api-url", api.DefaultBaseURL, "Worksheet API base URL")
	f.StringP("lang", "l", "en", "Message language (en, ru)")
	f.Duration("metadata-delay", 15*time.Second, "Wait before the first metadata job check")
	f.Duration("question-config-delay", 15*time.Second, "Wait before the first question-config job check")
	f.Duration("worksheet-delay", 20*time.Second, "Wait before the first worksheet job check")
	f.Duration("poll-interval", 5*time.Second, "Delay between job checks")
	f.Duration("poll-max-interval", 30*time.Second, "Upper bound for the backed-off check delay")
	f.Int("poll-max-attempts", 120, "Checks before a job is given up (0 = no limit)")
	f.Int("poll-slow-after", 12, "Checks before a job is reported as slow")
	addLoggingFlags(cmd)
}

func pollOptions(v *viper.Viper) []wizard.Option {
	delays := map[model.JobKind]string{
		model.JobMetadata:       "metadata-delay",
		model.JobQuestionConfig: "question-config-delay",
		model.JobWorksheet:      "worksheet-delay",
	}
	var opts []wizard.Option
	for kind, key := range delays {
		cfg := poller.DefaultConfig(kind)
		cfg.InitialDelay = v.GetDuration(key)
		cfg.Interval = v.GetDuration("poll-interval")
		cfg.MaxInterval = v.GetDuration("poll-max-interval")
		cfg.MaxAttempts = v.GetInt("poll-max-attempts")
		cfg.SlowAfter = v.GetInt("poll-slow-after")
		opts = append(opts, wizard.WithPollConfig(kind, cfg))
	}
	return opts
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("WORKSHEETGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("worksheetgen")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/worksheetgen")
	v.AddConfigPath("/etc/worksheetgen")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}
