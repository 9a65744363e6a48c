package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/jwichpas/backend-project-admin-sub000/internal/observability"
	"github.com/jwichpas/backend-project-admin-sub000/internal/service_registry"
	"github.com/jwichpas/backend-project-admin-sub000/internal/services"
	"github.com/jwichpas/backend-project-admin-sub000/internal/stores"
	"github.com/jwichpas/backend-project-admin-sub000/internal/utils"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/file"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/identity"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/location"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/routing"
)

// setup loads the configuration, the logger and the device identity shared
// by every command.
func setup(c *cli.Context) (*utils.Config, zerolog.Logger, *identity.DeviceInfo, file.FileOperations, error) {
	fileClient := file.NewFileService()
	config, err := utils.LoadConfig(c.String("config"), fileClient)
	if err != nil {
		return nil, zerolog.Logger{}, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := observability.NewLogger(config.Log.Level, config.Log.Pretty)

	deviceInfo := identity.NewDeviceInfo(config.Identity.DeviceFile, fileClient)
	if err := deviceInfo.LoadDeviceInfo(); err != nil {
		return nil, logger, nil, nil, fmt.Errorf("failed to load device information: %w", err)
	}
	logger = logger.With().Str("device_id", deviceInfo.GetDeviceID()).Logger()
	return config, logger, deviceInfo, fileClient, nil
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run the agent until interrupted",
		Action: func(c *cli.Context) error {
			config, logger, deviceInfo, fileClient, err := setup(c)
			if err != nil {
				return err
			}

			serviceRegistry := service_registry.NewServiceRegistry(fileClient, logger)
			if err := serviceRegistry.RegisterServices(config, deviceInfo); err != nil {
				return err
			}
			if err := serviceRegistry.StartServices(); err != nil {
				return err
			}
			logger.Info().Msg("All services started successfully")

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(signals)
			<-signals

			go func() {
				<-signals // hard exit on second signal
				os.Exit(1)
			}()

			logger.Info().Msg("Shutting down gracefully...")
			return serviceRegistry.StopServices()
		},
	}
}

func locateCommand() *cli.Command {
	return &cli.Command{
		Name:  "locate",
		Usage: "print one position from the configured source as JSON",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "timeout", Value: location.DefaultReadTimeout, Usage: "how long to wait for a fix"},
			&cli.BoolFlag{Name: "high-accuracy", Usage: "prefer the most accurate source"},
		},
		Action: func(c *cli.Context) error {
			config, logger, deviceInfo, _, err := setup(c)
			if err != nil {
				return err
			}

			locator, err := service_registry.BuildLocator(config, deviceInfo, logger)
			if err != nil {
				return err
			}
			svc := services.NewLocationService(locator, deviceInfo, nil, nil, services.LocationOptions{}, logger)
			defer svc.Stop()

			loc, err := svc.GetCurrentLocation(c.Context, location.PositionOptions{
				EnableHighAccuracy: c.Bool("high-accuracy"),
				Timeout:            c.Duration("timeout"),
			})
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(c.App.Writer)
			encoder.SetIndent("", "  ")
			return encoder.Encode(loc)
		},
	}
}

func distanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "distance",
		Usage:     "estimate distance and travel time between two points",
		ArgsUsage: "LAT,LON LAT,LON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "profile", Value: routing.DefaultProfile, Usage: "routing profile"},
			&cli.DurationFlag{Name: "timeout", Value: 20 * time.Second},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("expected two points, e.g. -12.0464,-77.0428 -12.05,-77.145", 2)
			}
			from, err := parsePoint(c.Args().Get(0))
			if err != nil {
				return err
			}
			to, err := parsePoint(c.Args().Get(1))
			if err != nil {
				return err
			}

			config, logger, _, _, err := setup(c)
			if err != nil {
				return err
			}
			var router routing.Router
			if config.Routing.APIKey != "" {
				client, err := routing.NewClient(config.Routing.BaseURL, config.Routing.APIKey, logger)
				if err != nil {
					return err
				}
				router = client
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			est := stores.NewRouteStore(nil, router, stores.Options{DemoMode: true}, logger).
				EstimateRoute(ctx, from, to, routing.Options{Profile: c.String("profile")})

			kind := "road"
			if est.Approximate {
				kind = "straight line"
			}
			fmt.Fprintf(c.App.Writer, "%.2f km, %s (%s)\n", est.Distance/1000, est.Duration.Round(time.Minute), kind)
			return nil
		},
	}
}

func parsePoint(s string) (routing.Point, error) {
	lat, lon, ok := strings.Cut(s, ",")
	if !ok {
		return routing.Point{}, fmt.Errorf("invalid point %q, want LAT,LON", s)
	}
	p := routing.Point{}
	var err error
	if p.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil || p.Lat < -90 || p.Lat > 90 {
		return routing.Point{}, fmt.Errorf("invalid latitude in %q", s)
	}
	if p.Lon, err = strconv.ParseFloat(strings.TrimSpace(lon), 64); err != nil || p.Lon < -180 || p.Lon > 180 {
		return routing.Point{}, fmt.Errorf("invalid longitude in %q", s)
	}
	return p, nil
}
