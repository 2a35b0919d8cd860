package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fluxstudio/internal/domain"
)

var pollRaw bool

var pollCmd = &cobra.Command{
	Use:   "poll <id|polling-url>",
	Short: "Check the status of a submitted job once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h := handleFromArg(args[0])
		body, err := proxy.Poll(cmd.Context(), h)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if pollRaw {
			fmt.Fprintln(out, string(body))
			return nil
		}
		status, err := domain.ParseStatus(body)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "status: %s (%s)\n", status.Kind, status.Raw)
		if status.ResultURL != "" {
			fmt.Fprintf(out, "result: %s\n", status.ResultURL)
		}
		if status.Reason != "" {
			fmt.Fprintf(out, "reason: %s\n", status.Reason)
		}
		return nil
	},
}

func handleFromArg(arg string) domain.JobHandle {
	arg = strings.TrimSpace(arg)
	lower := strings.ToLower(arg)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return domain.HandleFromURL(arg)
	}
	return domain.HandleFromID(arg)
}

func init() {
	pollCmd.Flags().BoolVar(&pollRaw, "raw", false, "print the status document as returned by the server")
	rootCmd.AddCommand(pollCmd)
}
