package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/randalmurphal/taskrouter/internal/client"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a running server from the terminal",
	Long: `Reads queries from stdin and prints the router's answers. When an action needs
approval the command asks for a decision; answer "yes" or "y" to approve.
Type "exit" to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		if url == "" {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			host := cfg.Server.Host
			if host == "0.0.0.0" || host == "" {
				host = "127.0.0.1"
			}
			url = fmt.Sprintf("http://%s", net.JoinHostPort(host, fmt.Sprint(cfg.Server.Port)))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		interactive := term.IsTerminal(int(os.Stdin.Fd()))
		return client.New(url, nil).Chat(ctx, os.Stdin, cmd.OutOrStdout(), interactive)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("url", "", "Server base URL (default from server.host and server.port)")
}
