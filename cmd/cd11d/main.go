// Command cd11d receives CD-1.1 frames from stations, forwards data frames
// to NATS and turns them into state-of-health issues.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Build information
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "cd11d"

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "CD-1.1 station receiver and state-of-health extractor",
	Long: `cd11d accepts CD-1.1 connections from seismic stations, publishes every data
frame to NATS as a raw station data frame and extracts channel state-of-health
issues from those frames.

Configuration is read from a YAML file (--config or CD11_CONFIG). CD11_NATS_URL
and CD11_LOG_LEVEL override the file.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration (env: CD11_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json, text (overrides config)")
	rootCmd.SetVersionTemplate(fmt.Sprintf("%s version {{.Version}} (build %s)\n", appName, BuildTime))
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}
