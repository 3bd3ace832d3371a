package service_registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/netfleet/fleetwatch/internal/api"
	"github.com/netfleet/fleetwatch/internal/dispatch"
	"github.com/netfleet/fleetwatch/internal/inventory"
	"github.com/netfleet/fleetwatch/internal/notifier"
	"github.com/netfleet/fleetwatch/internal/probe"
	"github.com/netfleet/fleetwatch/internal/registry"
	"github.com/netfleet/fleetwatch/internal/services"
	"github.com/netfleet/fleetwatch/internal/store"
	"github.com/netfleet/fleetwatch/internal/tracker"
	"github.com/netfleet/fleetwatch/internal/utils"
	"github.com/netfleet/fleetwatch/pkg/file"
	"github.com/netfleet/fleetwatch/pkg/mqtt"
)

// ServiceRegistry manages the lifecycle of the long-running services and the
// shared components they are built on.
type ServiceRegistry struct {
	services    map[string]registry.Service
	serviceKeys []string // Maintains order of service registration
	fileClient  file.FileOperations
	Logger      zerolog.Logger

	// closers release shared resources after all services have stopped,
	// in reverse order of creation.
	closers []func()
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(fileClient file.FileOperations, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]registry.Service),
		fileClient: fileClient,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
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
			return err
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order, then releases the shared
// resources they were built on.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}

	for i := len(sr.closers) - 1; i >= 0; i-- {
		sr.closers[i]()
	}

	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices builds the polling core from the configuration and
// registers the enabled services in dependency order.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config) error {
	source, err := sr.buildInventorySource(config)
	if err != nil {
		return err
	}

	prober := probe.NewICMPProber(
		time.Duration(config.Poller.ProbeTimeout)*time.Second,
		config.Poller.Privileged,
		sr.Logger,
	)

	dispatcher, err := dispatch.NewDispatcher(
		prober,
		config.Poller.MaxConcurrency,
		time.Duration(config.Poller.ProbeTimeout)*time.Second,
		sr.Logger,
	)
	if err != nil {
		return err
	}
	sr.closers = append(sr.closers, dispatcher.Close)

	resultStore, err := store.NewResultStore(config.Store.Directory, sr.Logger)
	if err != nil {
		return err
	}

	var sink tracker.AlertSink
	if config.Alerting.Enabled {
		sink, err = sr.buildAlerter(config)
		if err != nil {
			return err
		}
	}

	timeoutTracker, err := tracker.NewTracker(
		config.Tracking.StateFile,
		config.Alerting.Threshold,
		time.Duration(config.Alerting.Cooldown)*time.Second,
		config.Alerting.Enabled,
		sink,
		sr.Logger,
	)
	if err != nil {
		return err
	}

	pollService, err := services.NewPollService(
		time.Duration(config.Poller.Interval)*time.Second,
		source,
		dispatcher,
		resultStore,
		timeoutTracker,
		config.Tracking.Enabled,
		sr.Logger,
	)
	if err != nil {
		return err
	}
	sr.RegisterService("poller", pollService)

	retentionService, err := services.NewRetentionService(
		resultStore,
		config.Store.RetentionDays,
		config.Store.CleanupSchedule,
		sr.Logger,
	)
	if err != nil {
		return err
	}
	sr.RegisterService("retention", retentionService)

	if config.API.Enabled {
		apiServer, err := api.NewServer(config.API.Listen, pollService, timeoutTracker, resultStore, sr.Logger)
		if err != nil {
			return err
		}
		sr.RegisterService("api", apiServer)
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", sr.serviceKeys)
	return nil
}

// buildInventorySource creates the configured inventory backend.
func (sr *ServiceRegistry) buildInventorySource(config *utils.Config) (inventory.Source, error) {
	switch config.Inventory.Source {
	case "file":
		return inventory.NewFileSource(config.Inventory.File, sr.fileClient, sr.Logger)
	case "postgres":
		db, err := inventory.OpenPostgres(config.Inventory.DSN)
		if err != nil {
			return nil, err
		}
		sr.closers = append(sr.closers, func() { _ = db.Close() })
		return inventory.NewSQLSource(db, sr.Logger), nil
	default:
		return nil, fmt.Errorf("unknown inventory source %q", config.Inventory.Source)
	}
}

// buildAlerter assembles the enabled notification channels.
func (sr *ServiceRegistry) buildAlerter(config *utils.Config) (*notifier.Alerter, error) {
	var notifiers []notifier.Notifier

	if config.Alerting.Webhook.Enabled {
		webhook, err := notifier.NewWebhookNotifier(config.Alerting.Webhook.URL, config.Alerting.Webhook.APIKey, sr.Logger)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, webhook)
	}

	if config.Alerting.MQTT.Enabled {
		mqttClient := mqtt.NewMqttService(sr.fileClient)
		clientID := config.Alerting.MQTT.ClientID + "-" + uuid.New().String()
		if err := mqttClient.Initialize(config.Alerting.MQTT.Broker, clientID, config.Alerting.MQTT.CACertificate); err != nil {
			return nil, fmt.Errorf("failed to initialize MQTT connection: %w", err)
		}
		sr.closers = append(sr.closers, func() { mqttClient.Disconnect(250) })

		mqttNotifier, err := notifier.NewMQTTNotifier(mqttClient, config.Alerting.MQTT.Topic, config.Alerting.MQTT.QOS, sr.Logger)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, mqttNotifier)
	}

	if config.Alerting.Email.Enabled {
		mailNotifier, err := notifier.NewMailNotifier(
			config.Alerting.Email.Host,
			config.Alerting.Email.Port,
			config.Alerting.Email.Username,
			config.Alerting.Email.Password,
			config.Alerting.Email.From,
			sr.Logger,
		)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, mailNotifier)
	}

	return notifier.NewAlerter(notifiers, config.Alerting.Recipients, sr.Logger)
}
