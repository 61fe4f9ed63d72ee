package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/mstrYoda/hypersparse/rpc"
	"github.com/mstrYoda/hypersparse/server"
)

func newServeCmd(cc *cliContext) *cobra.Command {
	var addr, grpcAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serves the graph over HTTP and gRPC",
		Long: `
	Opens the graph and serves the JSON API on --addr. When --grpc-addr is
	set the gRPC GraphService is served there as well; point other
	hypersparse commands at it with --remote. Stops on SIGINT or SIGTERM.
	`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cc.remote != "" {
				return fmt.Errorf("serve runs a local graph; --remote is not allowed")
			}
			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := cc.logger()
			g, err := cc.openGraph(ctx, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := g.Close(); err != nil {
					log.Error("close failed", "error", err)
				}
			}()

			errCh := make(chan error, 2)
			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           server.New(g, log),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			var gs *grpc.Server
			if grpcAddr != "" {
				lis, err := net.Listen("tcp", grpcAddr)
				if err != nil {
					return err
				}
				gs = rpc.NewServer(g, rpc.WithLogger(log)).GRPCServer()
				go func() {
					if err := gs.Serve(lis); err != nil {
						errCh <- err
					}
				}()
			}

			log.Info("serving", "http", addr, "grpc", grpcAddr, "graph", g.String())

			select {
			case <-ctx.Done():
				log.Info("shutting down")
			case err = <-errCh:
				log.Error("server failed", "error", err)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if gs != nil {
				gs.GracefulStop()
			}
			if serr := httpSrv.Shutdown(shutdownCtx); err == nil {
				err = serr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":7474", "HTTP listen address")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (empty disables gRPC)")
	return cmd
}
