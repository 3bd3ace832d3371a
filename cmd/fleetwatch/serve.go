package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/netfleet/fleetwatch/internal/service_registry"
	"github.com/netfleet/fleetwatch/internal/utils"
	"github.com/netfleet/fleetwatch/pkg/file"
)

// runServe wires the polling core from the configuration, starts all
// services, and blocks until a shutdown signal arrives.
func runServe(configPath string) error {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	fileClient := file.NewFileService()

	config, err := utils.LoadConfig(configPath, fileClient)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	serviceRegistry := service_registry.NewServiceRegistry(fileClient, log)
	if err := serviceRegistry.RegisterServices(config); err != nil {
		log.Error().Err(err).Msg("Failed to build services")
		return err
	}

	if err := serviceRegistry.StartServices(); err != nil {
		log.Error().Err(err).Msg("Failed to start services")
		return err
	}
	log.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down gracefully...")
	return serviceRegistry.StopServices()
}

// runValidate loads and validates the configuration without starting
// anything.
func runValidate(configPath string) error {
	fileClient := file.NewFileService()
	if _, err := utils.LoadConfig(configPath, fileClient); err != nil {
		return err
	}
	fmt.Printf("%s is valid\n", configPath)
	return nil
}
