package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mnemos/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "melpo",
	Short: "mnemOS kernel simulator",
	Long:  `Melpo boots a mnemOS kernel on the host and drives it with simulated userspace traffic`,
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
