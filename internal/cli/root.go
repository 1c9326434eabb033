// Package cli implements the rapport CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/rapport/internal/config"
	"github.com/rcliao/rapport/internal/logging"
	"github.com/rcliao/rapport/internal/rapport"
)

var (
	homeFlag         string
	relationshipFlag string
	configFlag       string
	formatFlag       string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "rapport",
	Short: "Relationship memory and proactive check-ins for a conversational agent",
	Long: "rapport tracks how long a user has been idle, decides when a proactive check-in is due, " +
		"and keeps living documents about the relationship up to date after each conversation.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&homeFlag, "home", "", "Data directory (default: $RAPPORT_HOME or ~/.rapport)")
	RootCmd.PersistentFlags().StringVarP(&relationshipFlag, "relationship", "r", "", "Relationship ID (default from config)")
	RootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Config file (default: <home>/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "text", "Output format: json or text")
}

// loadConfig applies flags over the file and environment configuration.
func loadConfig() (*config.Config, error) {
	if homeFlag != "" {
		os.Setenv("RAPPORT_HOME", homeFlag)
	}
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	if relationshipFlag != "" {
		cfg.RelationshipID = relationshipFlag
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}
	}
	return cfg, nil
}

func openService() *rapport.Service {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	svc, err := rapport.Open(cfg, log, nil)
	if err != nil {
		exitErr("open", err)
	}
	return svc
}

// printOut writes v as indented JSON, or calls text when --format=text.
func printOut(v interface{}, text func() string) {
	if formatFlag == "json" || text == nil {
		b, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Print(text())
}

// readInput returns the positional args joined, or stdin when it is piped.
func readInput(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return string(b)
	}
	return ""
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
