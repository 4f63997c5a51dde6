package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"qr-scan-station/internal/camera"
	"qr-scan-station/internal/config"
	"qr-scan-station/internal/logging"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the camera devices the configured engine can bind",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.Initialize(logLevel)

		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		logging.ApplyLevel(logger, cfg.LogLevel, cmd.Flags().Changed("log-level"))

		engine, err := camera.New(cfg.Engine, logging.NewEngineLogger(logger, cfg.Engine), cfg.EngineSettings)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		devices, err := engine.EnumerateDevices(ctx)
		if err != nil {
			return fmt.Errorf("device enumeration failed: %w", err)
		}

		if len(devices) == 0 {
			fmt.Println("No camera devices found")
			return nil
		}

		for _, d := range devices {
			fmt.Printf("%s\t%s\n", d.ID, d.Label)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
