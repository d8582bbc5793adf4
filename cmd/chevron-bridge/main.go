// Command chevron-bridge hosts a chevron signing provider. It can serve the
// bridge over gRPC or run single operations from the command line.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/glinharesb/chevron-bridge/internal/crypto"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chevron-bridge",
		Short: "Host a chevron signing provider",
		Long: `chevron-bridge loads a chevron provider library, or the built-in software
provider, and exposes its key operations over gRPC or on the command line.`,
		Version:      version,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (default is chevron-bridge.yaml in the user config dir or .)")
	flags.String("provider", ".", "directory searched for the provider library")
	flags.Bool("software", false, "use the built-in software provider")
	flags.Int("max-workers", 0, "maximum concurrent provider calls (0 is unlimited)")
	flags.String("keyring", "", "software provider keyring file (empty keeps keys in memory)")
	flags.Int("seal-cost", crypto.DefaultCost, "scrypt cost exponent for sealing generated keys")
	flags.Int("audit-buffer", 1024, "audit log buffer size")
	flags.String("audit-db", "", "SQLite database for audit entries")
	flags.Bool("audit-stdout", false, "write audit entries to stdout as JSON lines")
	flags.String("log-level", "info", "log level")
	flags.String("log-format", "json", "log format (json or console)")
	flags.Duration("timeout", 30*time.Second, "time limit for one-shot commands")

	cmd.AddCommand(
		newServeCmd(),
		newGenerateCmd(),
		newFingerprintsCmd(),
		newPubkeyCmd(),
		newCallCmd(),
		newAuditCmd(),
		newConfigCmd(),
	)
	return cmd
}
