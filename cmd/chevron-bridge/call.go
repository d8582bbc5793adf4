package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/glinharesb/chevron-bridge/internal/audit"
	"github.com/glinharesb/chevron-bridge/internal/bridge"
	"github.com/glinharesb/chevron-bridge/internal/server"
)

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("addr", ":50051", "address of a running chevron-bridge server")
	cmd.Flags().String("auth-token", "", "bearer token sent to the server")
	cmd.Flags().String("tls-ca", "", "CA certificate for a TLS server (plaintext when empty)")
}

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call OP [ARG...]",
		Short: "Run an operation on a remote chevron-bridge server",
		Long: `Runs OP on the server at --addr. OP is an operation name such as
generateKey or VerifyBase64DataSignature. Numeric parameters are parsed as numbers.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCall,
	}
	addClientFlags(cmd)
	return cmd
}

func runCall(cmd *cobra.Command, args []string) error {
	op, ok := bridge.ParseOp(args[0])
	if !ok {
		return fmt.Errorf("unknown operation %q", args[0])
	}
	values, err := hostArgs(op, args[1:])
	if err != nil {
		return err
	}

	r, err := dial(cmd)
	if err != nil {
		return err
	}
	defer r.Close()
	ctx, cancel := withTimeout(cmd)
	defer cancel()

	res, err := r.client.Call(r.outgoing(ctx), op.String(), values)
	if err != nil {
		return err
	}
	if res.Err != "" {
		return fmt.Errorf("%s: %s", res.Op, res.Err)
	}

	out := cmd.OutOrStdout()
	switch v := res.Value.(type) {
	case nil:
	case string:
		fmt.Fprint(out, v)
	case []any:
		for _, item := range v {
			fmt.Fprintln(out, item)
		}
	default:
		fmt.Fprintln(out, v)
	}
	return nil
}

// hostArgs converts command-line arguments to the kinds op expects.
// Surplus arguments are passed as strings and rejected by the server.
func hostArgs(op bridge.Op, raw []string) ([]any, error) {
	values := make([]any, len(raw))
	for i, s := range raw {
		kind, ok := op.ParamKind(i)
		if !ok || kind != bridge.KindNumber {
			values[i] = s
			continue
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d must be a number: %w", op, i+1, err)
		}
		values[i] = n
	}
	return values, nil
}

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the audit log of a remote chevron-bridge server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var f audit.Filter
			f.Operation, _ = cmd.Flags().GetString("operation")
			f.Status, _ = cmd.Flags().GetString("status")
			f.Limit, _ = cmd.Flags().GetInt("limit")
			if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
				f.Start = time.Now().Add(-since)
			}

			r, err := dial(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			if follow, _ := cmd.Flags().GetBool("follow"); follow {
				stream, err := r.client.StreamAudit(r.outgoing(cmd.Context()), f, grpc.WaitForReady(true))
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for {
					e, err := stream.Recv()
					if err != nil {
						return err
					}
					if err := enc.Encode(e); err != nil {
						return err
					}
				}
			}

			ctx, cancel := withTimeout(cmd)
			defer cancel()
			entries, err := r.client.QueryAudit(r.outgoing(ctx), f)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range entries {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	addClientFlags(cmd)
	cmd.Flags().String("operation", "", "only entries for this operation")
	cmd.Flags().String("status", "", "only entries with this status (OK, TRUE, FALSE, ERROR)")
	cmd.Flags().Int("limit", 50, "maximum entries returned")
	cmd.Flags().Duration("since", 0, "only entries newer than this")
	cmd.Flags().BoolP("follow", "f", false, "stream new entries instead of querying")
	return cmd
}

type remote struct {
	conn   *grpc.ClientConn
	client *server.Client
	token  string
}

// dial connects to the server named by the grpc.addr setting.
func dial(cmd *cobra.Command) (*remote, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	creds := insecure.NewCredentials()
	if ca, _ := cmd.Flags().GetString("tls-ca"); ca != "" {
		if creds, err = credentials.NewClientTLSFromFile(ca, ""); err != nil {
			return nil, err
		}
	}
	conn, err := grpc.NewClient(cfg.GRPC.Addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.GRPC.Addr, err)
	}
	return &remote{conn: conn, client: server.NewClient(conn), token: cfg.GRPC.AuthToken}, nil
}

func (r *remote) outgoing(ctx context.Context) context.Context {
	if r.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+r.token)
}

func (r *remote) Close() error {
	return r.conn.Close()
}
