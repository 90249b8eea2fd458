package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/samiam2013/gpsrelay/common/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "gpsrelay",
	Short: "Relay GPS fixes from a serial receiver to a collector",
	Long: "gpsrelay reads NMEA GGA sentences from a serial GPS receiver and forwards\n" +
		"validated fixes over HTTP, a serial radio modem, or MQTT, at most once per\n" +
		"minimum send interval.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "gpsrelay.yaml", "Path to the relay configuration YAML")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(parseCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and sets up logging from it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if err := setupLogging(cfg.Log); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func setupLogging(lc config.LogConfig) error {
	level, err := logrus.ParseLevel(lc.Level)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	logrus.SetLevel(level)
	if lc.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
