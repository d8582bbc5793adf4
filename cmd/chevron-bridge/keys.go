package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a key pair and print it armored",
		Args:  cobra.NoArgs,
		RunE:  runGenerate,
	}
	cmd.Flags().StringP("identifier", "i", "", "key identifier, e.g. \"Name <email>\"")
	cmd.Flags().Uint32("bits", 3072, "key size recorded in the key")
	cmd.Flags().String("password", "", "password sealing the private key (prompted on a terminal when empty)")
	cmd.Flags().StringP("out", "o", "", "write the key to this file instead of stdout")
	cmd.Flags().Bool("load", false, "load the generated key into the provider keyring")
	return cmd
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	identifier, _ := cmd.Flags().GetString("identifier")
	bits, _ := cmd.Flags().GetUint32("bits")
	out, _ := cmd.Flags().GetString("out")
	load, _ := cmd.Flags().GetBool("load")

	password, err := readPassword(cmd, "password", "Key password: ")
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, cancel := withTimeout(cmd)
	defer cancel()

	var keyData string
	var opErr error
	err = a.wait(ctx, func() (string, error) {
		return a.bridge.GenerateKey(password, identifier, bits, func(err error, k string) {
			keyData, opErr = k, err
		})
	})
	if err != nil {
		return err
	}
	if opErr != nil {
		return opErr
	}

	if load {
		err = a.wait(ctx, func() (string, error) {
			return a.bridge.LoadKey(keyData, func(err error, fp string) {
				opErr = err
				a.logger.Debug("generated key loaded", zap.String("fingerprint", fp))
			})
		})
		if err != nil {
			return err
		}
		if opErr != nil {
			return opErr
		}
	}

	if out != "" {
		return os.WriteFile(out, []byte(keyData), 0o600)
	}
	_, err = io.WriteString(cmd.OutOrStdout(), keyData)
	return err
}

func newFingerprintsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprints [FILE]",
		Short: "Print the fingerprints of the keys in an armored key file",
		Long:  "Reads armored keys from FILE, or stdin when FILE is omitted or \"-\", and prints one fingerprint per line.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyData, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			fps, err := a.bridge.GetKeyFingerprints(keyData)
			if err != nil {
				return err
			}
			for _, fp := range fps {
				fmt.Fprintln(cmd.OutOrStdout(), fp)
			}
			return nil
		},
	}
}

func newPubkeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pubkey FINGERPRINT",
		Short: "Print the armored public key for a loaded key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyFile, _ := cmd.Flags().GetString("key")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if keyFile != "" {
				data, err := os.ReadFile(keyFile)
				if err != nil {
					return err
				}
				ctx, cancel := withTimeout(cmd)
				defer cancel()
				var opErr error
				err = a.wait(ctx, func() (string, error) {
					return a.bridge.LoadKey(string(data), func(err error, _ string) { opErr = err })
				})
				if err != nil {
					return err
				}
				if opErr != nil {
					return fmt.Errorf("load %s: %w", keyFile, opErr)
				}
			}

			pub, err := a.bridge.GetPublicKey(args[0])
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), pub)
			return err
		},
	}
	cmd.Flags().String("key", "", "armored key file to load before the lookup")
	return cmd
}

// wait submits one task and drains the host loop until it has delivered.
func (a *app) wait(ctx context.Context, submit func() (string, error)) error {
	if _, err := submit(); err != nil {
		return err
	}
	return a.run(ctx)
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	}
	data, err := os.ReadFile(args[0])
	return string(data), err
}

// readPassword returns the named flag's value, prompting for it when it is
// empty and stdin is a terminal.
func readPassword(cmd *cobra.Command, flag, prompt string) (string, error) {
	password, _ := cmd.Flags().GetString(flag)
	if password != "" {
		return password, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
