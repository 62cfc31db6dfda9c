package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/afinia/internal/rpc"
	"github.com/danielpatrickdp/afinia/internal/server"
)

// serveCmd runs the HTTP API and, when grpc.addr is set, the gRPC API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat service",
	Long: `Run the HTTP chat service. When grpc.addr (or --grpc-addr) is set the
same operations are also served over gRPC, with standard health checking.

Examples:
  afinia serve
  afinia serve --addr :8080 --grpc-addr :50051`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides http.addr)")
	serveCmd.Flags().String("grpc-addr", "", "gRPC listen address (overrides grpc.addr)")
	_ = v.BindPFlag("http.addr", serveCmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("grpc.addr", serveCmd.Flags().Lookup("grpc-addr"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	httpLn, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	var grpcLn net.Listener
	if cfg.GRPC.Addr != "" {
		if grpcLn, err = net.Listen("tcp", cfg.GRPC.Addr); err != nil {
			httpLn.Close()
			return fmt.Errorf("listen grpc: %w", err)
		}
	}

	httpSrv := server.New(a.orch, cfg.HTTP, cfg.Policy.Mode, logger.Named("http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpSrv.Serve(gctx, httpLn)
	})
	if grpcLn != nil {
		glog := logger.Named("grpc")
		gs, hs := rpc.NewGRPCServer(a.orch, glog)
		g.Go(func() error {
			return rpc.Serve(gctx, gs, hs, grpcLn, glog)
		})
	}

	err = g.Wait()
	logger.Info("stopped")
	return err
}
