package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"wheresmybus/internal/api"
	"wheresmybus/internal/schedule"
	"wheresmybus/internal/service"
)

const shutdownTimeout = 3 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "listen target for the web server (defaults to LISTEN_ADDR or :3000)",
			},
		},
		Action: func(c *cli.Context) error {
			// Root context with cancellation on SIGINT/SIGTERM
			ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			rt, err := setup(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.metrics != nil {
				srv := rt.metrics.Serve(rt.cfg.MetricsAddr)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			addr := rt.cfg.ListenAddr
			if c.IsSet("listen") {
				addr = c.String("listen")
			}

			app := api.NewApp(rt.service)
			errc := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Str("today", rt.service.Today().String()).Msg("api listening")
				errc <- app.Listen(addr)
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
				log.Warn().Err(err).Msg("api shutdown")
			}
			log.Info().Msg("shutdown complete")
			return nil
		},
	}
}

func routeCommand() *cli.Command {
	return &cli.Command{
		Name:      "route",
		Usage:     "print upcoming trips for a route",
		ArgsUsage: "<routeId>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "direction", Usage: "inbound|outbound|0|1"},
			&cli.IntFlag{Name: "minutes", Usage: "look-ahead in minutes"},
			&cli.IntFlag{Name: "limit", Usage: "maximum trips (default 25)"},
			&cli.TimestampFlag{Name: "at", Usage: "anchor instant (RFC3339)", Layout: time.RFC3339},
			&cli.StringFlag{Name: "basis", Usage: "origin|next", Value: string(service.BasisOrigin)},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 1 {
				return cli.Exit("route requires exactly one <routeId>", 2)
			}
			basis, err := service.ParseBasis(c.String("basis"))
			if err != nil {
				return err
			}
			return runOnce(c, func(ctx context.Context, svc *service.Service) (any, error) {
				return svc.RouteUpcoming(ctx, service.RouteUpcomingRequest{
					RouteID:   c.Args().First(),
					Direction: service.ParseDirection(c.String("direction")),
					Minutes:   optionalInt(c, "minutes"),
					Limit:     optionalInt(c, "limit"),
					At:        c.Timestamp("at"),
					Basis:     basis,
				})
			})
		},
	}
}

func stopCommand() *cli.Command {
	return &cli.Command{
		Name:      "stop",
		Usage:     "print upcoming arrivals at a stop or station",
		ArgsUsage: "<stopId>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rollup", Usage: "auto|station|stop", Value: string(schedule.RollupAuto)},
			&cli.StringFlag{Name: "direction", Usage: "inbound|outbound|0|1"},
			&cli.IntFlag{Name: "minutes", Usage: "look-ahead in minutes"},
			&cli.IntFlag{Name: "limit", Usage: "maximum arrivals (default 25)"},
			&cli.TimestampFlag{Name: "at", Usage: "anchor instant (RFC3339)", Layout: time.RFC3339},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 1 {
				return cli.Exit("stop requires exactly one <stopId>", 2)
			}
			rollup, err := schedule.ParseRollup(c.String("rollup"))
			if err != nil {
				return err
			}
			return runOnce(c, func(ctx context.Context, svc *service.Service) (any, error) {
				return svc.StopUpcoming(ctx, service.StopUpcomingRequest{
					StopID:    c.Args().First(),
					Rollup:    rollup,
					Direction: service.ParseDirection(c.String("direction")),
					Minutes:   optionalInt(c, "minutes"),
					Limit:     optionalInt(c, "limit"),
					At:        c.Timestamp("at"),
				})
			})
		},
	}
}

// runOnce wires the engine without metrics, runs query and prints the JSON result.
func runOnce(c *cli.Context, query func(context.Context, *service.Service) (any, error)) error {
	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	out, err := query(ctx, rt.service)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

func optionalInt(c *cli.Context, name string) *int {
	if !c.IsSet(name) {
		return nil
	}
	n := c.Int(name)
	return &n
}
