package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"qr-scan-station/internal/api"
	"qr-scan-station/internal/camera"
	_ "qr-scan-station/internal/camera/simulator"
	"qr-scan-station/internal/config"
	"qr-scan-station/internal/logging"
	"qr-scan-station/internal/router"
	"qr-scan-station/internal/session"
	"qr-scan-station/internal/station"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "qr-scan-station",
	Short: "QR Scan Station - camera scanning agent with encrypted payloads",
	Long: `A local agent that owns a camera-bound QR scanning session, decrypts
scanned payloads with the station key, derives a display image for the
scanned id and exposes the scanning and result views over a local
HTTP + WebSocket control surface.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStation(cmd.Flags().Changed("log-level"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.SilenceUsage = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runStation wires the engine, session, station and control surface and
// blocks until interrupted
func runStation(logLevelOverridden bool) error {
	logger := logging.Initialize(logLevel)

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.ApplyLevel(logger, cfg.LogLevel, logLevelOverridden)

	if err := logging.SetupFileLogging(logger, cfg.LogFile); err != nil {
		return fmt.Errorf("failed to set up file logging: %w", err)
	}

	engine, err := camera.New(cfg.Engine, logging.NewEngineLogger(logger, cfg.Engine), cfg.EngineSettings)
	if err != nil {
		return err
	}

	sess := session.New(engine, logging.NewComponentLogger(logger, "session"),
		session.WithCaptureConfig(cfg.CaptureConfig()),
		session.WithPreferredLabel(cfg.PreferredDeviceLabel),
		session.WithSettleDelay(cfg.SettleDelay()),
	)
	defer sess.Close()

	st := station.New(sess, router.New(cfg.ImageURLTemplate), logging.NewComponentLogger(logger, "station"))
	server := api.NewServer(cfg, st, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go st.Run(ctx)

	// Shut down on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")
		cancel()
	}()

	return server.Start(ctx)
}
