package main

import (
	"context"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/reflection"

	"github.com/glinharesb/chevron-bridge/internal/interceptor"
	"github.com/glinharesb/chevron-bridge/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the bridge over gRPC",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("addr", ":50051", "gRPC listen address")
	cmd.Flags().String("auth-token", "", "bearer token required from clients (empty disables auth)")
	cmd.Flags().Int("rate-limit-rps", 100, "requests per second (0 disables limiting)")
	cmd.Flags().String("tls-cert", "", "TLS certificate file")
	cmd.Flags().String("tls-key", "", "TLS key file")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg.GRPC
	logger := a.logger

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			interceptor.RecoveryUnary(logger),
			interceptor.LoggingUnary(logger),
			interceptor.RateLimitUnary(cfg.RateLimitRPS),
			interceptor.AuthUnary(cfg.AuthToken),
		),
		grpc.ChainStreamInterceptor(
			interceptor.RecoveryStream(logger),
			interceptor.LoggingStream(logger),
			interceptor.RateLimitStream(cfg.RateLimitRPS),
			interceptor.AuthStream(cfg.AuthToken),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return err
		}
		opts = append(opts, grpc.Creds(creds))
	}
	if cfg.AuthToken == "" {
		logger.Warn("gRPC authentication disabled")
	}

	srv := grpc.NewServer(opts...)
	bs := server.New(a.bridge, a.audit, logger.Named("server"))
	server.RegisterBridgeServer(srv, bs)
	reflection.Register(srv)

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The host loop outlives the listener so in-flight calls can complete.
	hostCtx, stopHost := context.WithCancel(context.Background())
	defer stopHost()
	hostDone := make(chan error, 1)
	go func() { hostDone <- bs.Host(hostCtx) }()

	go func() {
		logger.Info("server starting",
			zap.String("addr", lis.Addr().String()),
			zap.String("provider", a.bridge.Handle().Path()),
			zap.Bool("tls", cfg.TLSCert != ""),
		)
		if err := srv.Serve(lis); err != nil {
			logger.Error("serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown with 10s timeout
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("graceful shutdown timed out, forcing stop")
		srv.Stop()
	}
	stopHost()
	return <-hostDone
}
