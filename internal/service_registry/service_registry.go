package service_registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jwichpas/backend-project-admin-sub000/internal/observability"
	"github.com/jwichpas/backend-project-admin-sub000/internal/registry"
	"github.com/jwichpas/backend-project-admin-sub000/internal/services"
	"github.com/jwichpas/backend-project-admin-sub000/internal/state_managers"
	"github.com/jwichpas/backend-project-admin-sub000/internal/stores"
	"github.com/jwichpas/backend-project-admin-sub000/internal/utils"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/backend"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/device"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/encryption"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/file"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/identity"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/invoicing"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/location"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/mqtt"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/routing"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/s3"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/token"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/transport"
)

const storageConnectTimeout = 10 * time.Second

type Service = registry.Service

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	services    map[string]Service // Stores registered services
	serviceKeys []string           // Maintains order of service registration
	fileClient  file.FileOperations
	Logger      zerolog.Logger

	// Built by RegisterServices; nil when the feature is disabled.
	Transport transport.Client
	Location  *services.LocationService
	Fleet     *stores.Fleet
	Invoices  *services.InvoiceService
	Backend   backend.Querier
	Router    routing.Router
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(fileClient file.FileOperations, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]Service),
		fileClient: fileClient,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices builds the enabled components from config and registers
// the long running ones in start order: metrics, transport, mqtt, location,
// fleet.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, deviceInfo identity.DeviceInfoInterface) error {
	if config.Metrics.Enabled {
		sr.RegisterService("metrics", observability.NewMetricsService(config.Metrics.Addr, sr.Logger))
	}

	if config.Transport.Enabled {
		client, err := sr.newTransport(config)
		if err != nil {
			return err
		}
		sr.Transport = client
		sr.RegisterService("transport", registry.Funcs{
			OnStart: func() error {
				if err := client.Connect(context.Background()); err != nil {
					// the client keeps reconnecting on its own
					sr.Logger.Warn().Err(err).Msg("Initial transport connection failed")
				}
				return nil
			},
			OnStop: client.Close,
		})
	}

	var forwarders []services.LocationForwarder
	if sr.Transport != nil {
		forwarders = append(forwarders, transport.NewLocationForwarder(sr.Transport))
	}
	if config.MQTT.Enabled {
		forwarders = append(forwarders, sr.registerMQTT(config))
	}

	if config.Location.Enabled {
		svc, err := sr.newLocationService(config, deviceInfo, forwarders)
		if err != nil {
			return err
		}
		sr.Location = svc
		sr.RegisterService("location", svc)
	}

	sr.buildBackend(config)
	if sr.Backend != nil || config.Backend.DemoMode {
		companyID := config.Backend.CompanyID
		if companyID == "" {
			companyID = deviceInfo.GetCompanyID()
		}
		sr.Fleet = stores.NewFleet(sr.Backend, sr.Router, sr.Transport, companyID,
			stores.Options{DemoMode: config.Backend.DemoMode}, sr.Logger)
		sr.Fleet.WarehouseID = config.Backend.WarehouseID
		sr.RegisterService("fleet", sr.Fleet)
	}

	sr.buildInvoicing(config, deviceInfo)

	sr.Logger.Info().Strs("services", sr.serviceKeys).Msg("Registered services in order")
	return nil
}

func (sr *ServiceRegistry) newTransport(config *utils.Config) (transport.Client, error) {
	if config.Transport.Simulate {
		return transport.NewSimulator(transport.SimulatorOptions{
			Seed:            config.Transport.SimulatorSeed,
			VehicleInterval: 2 * time.Second,
			AlertInterval:   30 * time.Second,
			Center:          transport.Coordinates{Latitude: config.Location.Manual.Latitude, Longitude: config.Location.Manual.Longitude},
		}, sr.Logger), nil
	}
	client, err := transport.NewWebSocketClient(transport.Options{
		URL:                  config.Transport.URL,
		Token:                config.Transport.Token,
		MaxReconnectAttempts: config.Transport.MaxReconnectAttempts,
		ReconnectBaseDelay:   config.Transport.ReconnectDelay,
		ProtocolConstraint:   config.Transport.ProtocolVersion,
	}, sr.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport client: %w", err)
	}
	return client, nil
}

func (sr *ServiceRegistry) registerMQTT(config *utils.Config) services.LocationForwarder {
	client := mqtt.NewMqttService(sr.fileClient)
	forwarder := services.NewMQTTLocationForwarder(config.MQTT.Topic, config.MQTT.QOS, client, sr.Logger)
	sr.RegisterService("mqtt", registry.Funcs{
		OnStart: func() error {
			return client.Initialize(mqtt.Options{
				Broker:             config.MQTT.Broker,
				ClientID:           config.MQTT.ClientID,
				Username:           config.MQTT.Username,
				Password:           config.MQTT.Password,
				CACertPath:         config.MQTT.CACertificate,
				InsecureSkipVerify: config.MQTT.InsecureSkipVerify,
				ConnectTimeout:     10 * time.Second,
			})
		},
		OnStop: func() error {
			forwarder.Close()
			client.Disconnect(250)
			return nil
		},
	})
	return forwarder
}

func (sr *ServiceRegistry) newLocationService(config *utils.Config, deviceInfo identity.DeviceInfoInterface,
	forwarders []services.LocationForwarder) (*services.LocationService, error) {
	locator, err := BuildLocator(config, deviceInfo, sr.Logger)
	if err != nil {
		return nil, err
	}

	var store services.LastKnownStore
	if addr := config.State.Redis.Addr; addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.State.Redis.Password,
			DB:       config.State.Redis.DB,
		})
		store = state_managers.NewRedisLocationStore(rdb, config.State.Redis.Prefix, config.State.Redis.TTL, sr.Logger)
		sr.RegisterService("redis", registry.Funcs{OnStop: rdb.Close})
	} else {
		store = state_managers.NewLocationStateManager(config.State.LocationFile, sr.fileClient, sr.Logger)
	}

	return services.NewLocationService(locator, deviceInfo, store, forwarders, services.LocationOptions{
		TrackingInterval: config.Location.Interval,
		Position:         location.PositionOptions{EnableHighAccuracy: config.Location.HighAccuracy},
		AutoStart:        config.Location.AutoStart,
	}, sr.Logger), nil
}

// BuildLocator creates the geolocator for the configured source.
func BuildLocator(config *utils.Config, deviceInfo identity.DeviceInfoInterface, logger zerolog.Logger) (*location.Geolocator, error) {
	provider, err := newProvider(config, logger)
	if err != nil {
		return nil, err
	}
	return location.NewGeolocator(provider, deviceInfo, device.NewHostStatus(), config.Location.PollInterval, logger), nil
}

func newProvider(config *utils.Config, logger zerolog.Logger) (location.Provider, error) {
	switch config.Location.Source {
	case "network":
		provider, err := location.NewGoogleGeolocationProvider(config.Location.MapsAPIKey, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Google Geolocation provider: %w", err)
		}
		return provider, nil
	case "manual":
		provider := location.NewManualProvider()
		m := config.Location.Manual
		provider.SetPosition(m.Latitude, m.Longitude, m.Accuracy)
		return provider, nil
	default:
		return location.NewDeviceSensorProvider(config.Location.GPSDevicePort, config.Location.GPSDeviceBaudRate), nil
	}
}

// buildBackend creates the backend and routing clients. Missing settings
// leave the feature off with a warning.
func (sr *ServiceRegistry) buildBackend(config *utils.Config) {
	if config.Backend.URL != "" && !config.Backend.DemoMode {
		client, err := backend.NewClient(backend.Config{
			URL:         config.Backend.URL,
			APIKey:      config.Backend.APIKey,
			AccessToken: config.Backend.AccessToken,
		}, sr.Logger)
		if err != nil {
			sr.Logger.Warn().Err(err).Msg("Backend disabled")
		} else {
			sr.Backend = client
		}
	} else if !config.Backend.DemoMode {
		sr.Logger.Warn().Msg("Backend URL not configured, stores disabled")
	}

	if config.Routing.APIKey == "" {
		sr.Logger.Warn().Msg("Routing API key not configured, estimates use straight-line distance")
		return
	}
	router, err := routing.NewClient(config.Routing.BaseURL, config.Routing.APIKey, sr.Logger)
	if err != nil {
		sr.Logger.Warn().Err(err).Msg("Routing disabled")
		return
	}
	sr.Router = router
}

// BuildInvoicing creates only the backend and invoicing clients, for one-shot
// commands that do not run the agent. It returns nil when invoicing is not
// configured.
func (sr *ServiceRegistry) BuildInvoicing(config *utils.Config, deviceInfo identity.DeviceInfoInterface) *services.InvoiceService {
	sr.buildBackend(config)
	sr.buildInvoicing(config, deviceInfo)
	return sr.Invoices
}

func (sr *ServiceRegistry) buildInvoicing(config *utils.Config, deviceInfo identity.DeviceInfoInterface) {
	cfg := config.Invoicing
	if sr.Backend == nil || cfg.BaseURL == "" || cfg.Username == "" || cfg.Password == "" {
		sr.Logger.Warn().Msg("Invoicing not configured, electronic invoices disabled")
		return
	}

	var store token.Store
	if cfg.Passphrase != "" {
		crypt, err := encryption.NewEncryptionManager(cfg.Passphrase, []byte(deviceInfo.GetDeviceID()))
		if err != nil {
			sr.Logger.Warn().Err(err).Msg("Invoicing token will not be cached")
		} else {
			store = token.NewFileStore(cfg.TokenFile, sr.fileClient, crypt)
		}
	}

	client, err := invoicing.NewClient(invoicing.Config{
		BaseURL:  cfg.BaseURL,
		Username: cfg.Username,
		Password: cfg.Password,
	}, store, sr.Logger)
	if err != nil {
		sr.Logger.Warn().Err(err).Msg("Invoicing disabled")
		return
	}

	var archive s3.ObjectStorageClient
	if config.ObjectStorage.Endpoint != "" {
		ctx, cancel := context.WithTimeout(context.Background(), storageConnectTimeout)
		defer cancel()
		objects, err := s3.Connect(ctx, config.ObjectStorage, sr.Logger)
		if err != nil {
			sr.Logger.Warn().Err(err).Msg("Signed XML will not be archived")
		} else {
			archive = objects
		}
	}

	sr.Invoices = services.NewInvoiceService(sr.Backend, client, archive, sr.Logger)
}
