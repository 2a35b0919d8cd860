package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"fluxstudio/internal/client"
	"fluxstudio/internal/i18n"
	"fluxstudio/internal/infra"
)

var (
	serverURL string
	lang      string
	timeout   time.Duration
	verbose   bool

	logger infra.Logger
	proxy  *client.ProxyClient
	locale language.Tag
)

var rootCmd = &cobra.Command{
	Use:           "fluxctl",
	Short:         "Generate images through a fluxstudio server.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if proxy != nil {
			return nil
		}
		logger = infra.NewCLILogger(verbose)
		locale = i18n.Match(lang, os.Getenv("LC_ALL"), os.Getenv("LANG"))
		c, err := client.New(client.Options{
			BaseURL: serverURL,
			Locale:  locale.String(),
			Timeout: timeout,
			Logger:  &logger,
		})
		if err != nil {
			return err
		}
		proxy = c
		return nil
	},
}

// Execute runs the CLI; Ctrl-C cancels the command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	_ = godotenv.Load()

	defaultServer := os.Getenv("FLUXSTUDIO_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "fluxstudio server base URL (env FLUXSTUDIO_SERVER)")
	rootCmd.PersistentFlags().StringVar(&lang, "lang", "", "language for progress messages (en, pt-BR); defaults to $LANG")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "per-request HTTP timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")
}
