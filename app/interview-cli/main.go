package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/careerforge/careerforge/config"
	"github.com/careerforge/careerforge/internal/client/interviewapi"
	"github.com/careerforge/careerforge/internal/logger"
	"github.com/careerforge/careerforge/internal/utils"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", utils.Message(err))
		os.Exit(1)
	}
}

// app is what every command needs once the environment is read.
type app struct {
	cfg *config.ClientConfig
	log *logrus.Logger
	api *interviewapi.Client
}

func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("token"); v != "" {
		cfg.Token = v
	}
	log := logger.New(cfg.LogLevel, "text")
	log.SetOutput(os.Stderr)

	api := interviewapi.New(interviewapi.Options{
		BaseURL:    cfg.APIURL,
		Token:      cfg.Token,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
		Logger:     log,
	})
	return &app{cfg: cfg, log: log, api: api}, nil
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "careerforge-cli",
		Short:         "Practice CareerForge interviews from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := root.PersistentFlags()
	f.String("token", "", "Bearer token (or set CAREERFORGE_TOKEN)")
	f.String("log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		practiceCmd(),
		historyCmd(),
		feedbackCmd(),
		cancelCmd(),
		resumeCmd(),
		tokenCmd(),
	)
	return root
}
