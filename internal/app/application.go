// Package app assembles the rental marketplace services into one unit.
package app

import (
	"context"
	"fmt"

	"github.com/IslandManSwevo/island-rides-api/internal/app/chatws"
	"github.com/IslandManSwevo/island-rides-api/internal/app/services/bookings"
	"github.com/IslandManSwevo/island-rides-api/internal/app/services/chat"
	"github.com/IslandManSwevo/island-rides-api/internal/app/services/dashboard"
	"github.com/IslandManSwevo/island-rides-api/internal/app/services/maintenance"
	"github.com/IslandManSwevo/island-rides-api/internal/app/services/notifications"
	"github.com/IslandManSwevo/island-rides-api/internal/app/services/users"
	"github.com/IslandManSwevo/island-rides-api/internal/app/services/vehicles"
	"github.com/IslandManSwevo/island-rides-api/internal/app/storage"
	"github.com/IslandManSwevo/island-rides-api/internal/app/storage/memory"
	"github.com/IslandManSwevo/island-rides-api/internal/app/system"
	"github.com/IslandManSwevo/island-rides-api/internal/config"
	"github.com/IslandManSwevo/island-rides-api/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users         storage.UserStore
	Vehicles      storage.VehicleStore
	Bookings      storage.BookingStore
	Chat          storage.ChatStore
	Notifications storage.NotificationStore
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Config *config.Config
	Guard  *users.LoginGuard

	Users         *users.Service
	Vehicles      *vehicles.Service
	Bookings      *bookings.Service
	Chat          *chat.Service
	Notifications *notifications.Service
	Dashboard     *dashboard.Service
	Hub           *chatws.Hub
}

// New builds a fully initialised application with the provided stores.
func New(cfg *config.Config, stores Stores, log *logger.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Vehicles == nil {
		stores.Vehicles = mem
	}
	if stores.Bookings == nil {
		stores.Bookings = mem
	}
	if stores.Chat == nil {
		stores.Chat = mem
	}
	if stores.Notifications == nil {
		stores.Notifications = mem
	}

	manager := system.NewManager()

	guard := users.NewLoginGuard(cfg.LoginGuard.MaxFailures, cfg.LoginGuard.DecayWindow)
	userService := users.New(stores.Users, guard, users.Config{
		JWTSecret: []byte(cfg.Auth.JWTSecret),
		TokenTTL:  cfg.Auth.TokenTTL,
		Issuer:    cfg.Auth.Issuer,
	}, log)

	bookingService := bookings.New(stores.Bookings, stores.Vehicles, log)
	vehicleService := vehicles.New(stores.Vehicles, stores.Bookings, log)
	notificationService := notifications.New(stores.Notifications, log)
	bookingService.AttachNotifier(notificationService)

	chatService := chat.New(stores.Chat, stores.Vehicles, log)
	chatService.AttachNotifier(notificationService)
	hub := chatws.NewHub(chatService, chatws.Config{
		WriteTimeout: cfg.Chat.WriteTimeout,
		PongTimeout:  cfg.Chat.PongTimeout,
		MaxMessage:   cfg.Chat.MaxMessage,
	}, log)
	chatService.AttachPresence(hub)

	dashboardService := dashboard.New(stores.Vehicles, stores.Bookings, log)

	sweeper := maintenance.New(bookingService, notificationService, guard, log)
	if err := manager.Register(sweeper); err != nil {
		return nil, fmt.Errorf("register %s: %w", sweeper.Name(), err)
	}

	return &Application{
		manager:       manager,
		log:           log,
		Config:        cfg,
		Guard:         guard,
		Users:         userService,
		Vehicles:      vehicleService,
		Bookings:      bookingService,
		Chat:          chatService,
		Notifications: notificationService,
		Dashboard:     dashboardService,
		Hub:           hub,
	}, nil
}

// Start launches background services.
func (a *Application) Start(ctx context.Context) error {
	a.log.Info("starting application services")
	return a.manager.Start(ctx)
}

// Stop shuts background services down in reverse order.
func (a *Application) Stop(ctx context.Context) error {
	a.log.Info("stopping application services")
	return a.manager.Stop(ctx)
}
