// Package cmd provides the inferstream CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/inercia/inferstream/internal/client"
	"github.com/inercia/inferstream/internal/config"
	"github.com/inercia/inferstream/internal/logging"
	"github.com/inercia/inferstream/internal/session"
)

var (
	configPath    string
	debug         bool
	logLevel      string
	logFile       string
	logComponents string
	logJSON       bool
	recordPath    string

	// cfg is the effective configuration, loaded before every command runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "inferstream",
	Short: "Streaming speech recognition and synthesis over websockets",
	Long: `inferstream talks to a DashScope-compatible inference service.

It streams audio files for real-time recognition, synthesizes speech from
text, and manages the custom vocabularies used to bias recognition.

The API key is read from DASHSCOPE_API_KEY, the configuration file, or the
system keychain (see 'inferstream auth set').`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		var err error
		cfg, err = config.Resolve(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		// --log-level > --debug > config file
		level := cfg.Log.Level
		if debug {
			level = "debug"
		}
		if logLevel != "" {
			level = logLevel
		}
		file := cfg.Log.File
		if logFile != "" {
			file = logFile
		}

		lc := logging.Config{
			Level:      level,
			JSON:       logJSON || cfg.Log.JSON,
			Components: logging.SplitComponents(logComponents),
			Console:    cmd.ErrOrStderr(),
		}
		if file != "" {
			lc.File = &logging.RotationConfig{Path: file}
		}
		if err := logging.Initialize(lc); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		logging.CLI().Debug("configuration loaded",
			"path", cfg.Path,
			"api_key_source", cfg.APIKeySource,
			"websocket", cfg.WebsocketEndpoint)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Close()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default: $INFERSTREAM_CONFIG or the platform config dir)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (shorthand for --log-level=debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	rootCmd.PersistentFlags().StringVarP(&logFile, "logfile", "l", "", "Log file path, rotated (logs are also written to stderr)")
	rootCmd.PersistentFlags().StringVar(&logComponents, "log-components", "", "Comma-separated components to log (transport,session,heartbeat,http,cli). Empty means all.")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().StringVar(&recordPath, "record", "", "Record the websocket session to this file as JSON lines")
}

// newClient validates the configuration and builds a client from it.
func newClient() (*client.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return client.New(cfg.ClientConfig(), client.WithLogger(logging.HTTP())), nil
}

// streamer is implemented by *client.Client and by recordingStreamer.
type streamer interface {
	Stream(ctx context.Context, h session.Handler, opts ...session.Option) error
}

// recordingStreamer records every session it runs.
type recordingStreamer struct {
	streamer
	w io.Writer
}

func (s recordingStreamer) Stream(ctx context.Context, h session.Handler, opts ...session.Option) error {
	return s.streamer.Stream(ctx, session.NewRecorder(h, s.w), opts...)
}

// withRecording wraps c when --record is set. The returned function closes
// the recording.
func withRecording(c *client.Client) (streamer, func() error, error) {
	if recordPath == "" {
		return c, func() error { return nil }, nil
	}
	f, err := os.Create(recordPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create recording: %w", err)
	}
	logging.CLI().Info("recording session", "path", recordPath)
	return recordingStreamer{streamer: c, w: f}, f.Close, nil
}

// signalContext is cancelled on interrupt.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}
