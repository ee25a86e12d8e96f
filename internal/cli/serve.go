package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/rollcall/internal/grpcapi"
	"github.com/BrandonDHaskell/rollcall/internal/httpapi"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/qr"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/service"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/types"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and gRPC servers",
		Long:  `Open the database, apply migrations, and serve the attendance API over HTTP and gRPC until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load(nil)
			if err != nil {
				return err
			}
			defer log.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			pruner := service.NewJobPruner(a.jobs, cfg.Jobs.TTL, cfg.Jobs.PruneInterval, log.Logger)
			pruner.Start(ctx)
			defer pruner.Stop()

			httpSrv := httpapi.NewServer(httpapi.Dependencies{
				Logger:      log.Logger,
				Addr:        cfg.Server.HTTPAddr,
				Attendance:  a.attendance,
				Roster:      a.roster,
				Cleanup:     a.cleanup,
				Maintenance: a.maintenance,
				Events:      a.events,
				Gate: httpapi.GateConfig{
					Classroom:     types.LatLng{Lat: cfg.Location.ClassroomLat, Lng: cfg.Location.ClassroomLng},
					MaxDistanceKm: cfg.Location.MaxDistanceKm,
					QRTTL:         cfg.QR.TTL,
					RequireQR:     cfg.QR.Required,
				},
				Admin: httpapi.AdminConfig{Secret: cfg.Admin.JWTSecret, Issuer: cfg.Admin.JWTIssuer},
			})
			if !cfg.AdminEnabled() {
				log.Warn("admin API disabled: admin.jwt_secret is empty")
			}

			gate := qr.Gate{MaxDistanceKm: cfg.Location.MaxDistanceKm, Required: cfg.QR.Required}
			grpcSrv := grpcapi.NewGRPCServer(grpcapi.NewServer(a.attendance, gate, log.Logger), log.Logger)
			lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
			if err != nil {
				return err
			}

			errc := make(chan error, 2)
			go func() {
				log.Info("http listening", "addr", cfg.Server.HTTPAddr, "env", cfg.Server.Env)
				if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
			}()
			go func() {
				log.Info("grpc listening", "addr", cfg.Server.GRPCAddr)
				if err := grpcSrv.Serve(lis); err != nil {
					errc <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err = <-errc:
				log.Error("server error", "error", err)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
				log.Warn("http shutdown", "error", serr)
			}
			grpcSrv.GracefulStop()
			log.Info("stopped")
			return err
		},
	}
}
