package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	merrors "github.com/mirada-dev/mirada/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔╦╗┬┬─┐┌─┐┌┬┐┌─┐
  ║║║│├┬┘├─┤ ││├─┤
  ╩ ╩┴┴└─┴ ┴─┴┘┴ ┴
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "mirada",
		Short: "Remote display client",
		Long: `Mirada is a remote display client.

It attaches to a running display server over a WebSocket, receives
window content as compressed paint packets, and keeps the session
alive across network interruptions.

  • Challenge authentication with hmac digests
  • Optional AES encryption of the packet stream
  • zlib, lz4 and brotli packet compression
  • Automatic reconnection with bounded retries
  • Prometheus metrics endpoint`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		connectCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		var me *merrors.MiradaError
		if stderrors.As(err, &me) {
			merrors.PrintError(me)
		} else {
			fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		}
		os.Exit(1)
	}
}

// printBanner prints the Mirada ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
