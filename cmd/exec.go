package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go"

	"court-booking/config"
	"court-booking/handlers"
	"court-booking/internal/clock"
	"court-booking/internal/notify"
	"court-booking/internal/provider"
	"court-booking/internal/services"
	"court-booking/internal/store/pbstore"
	"court-booking/models"
	"court-booking/monitoring"
	"court-booking/security"
	"court-booking/utils"

	_ "court-booking/migrations"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	// Initialize the notifier
	var notifier notify.Notifier = notify.Nop{}
	if cfg.PubNubPublishKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey

		notifier = notify.NewPubNubNotifier(pubnub.NewPubNub(pnConfig))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the payment provider and its delivery channel
	prov, err := provider.New(provider.Name(cfg.Provider))
	if err != nil {
		return err
	}
	defer prov.Close(context.Background())

	eventCh := make(chan *models.ProviderEvent, 64)
	prov.SetEventChannel(eventCh)

	// Initialize services
	st := pbstore.New(app)
	clk := clock.Real()
	reservations := services.NewReservationService(st, clk, notifier, redisClient, cfg)
	payments := services.NewPaymentService(st, clk, reservations, notifier, prov, redisClient, cfg)
	reconciler := services.NewExpiryReconciler(st, clk, payments, notifier, cfg)

	// Drain provider events into the settlement path
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				slog.Info("provider event received", "event_id", ev.EventID, "intent_id", ev.IntentID, "outcome", ev.Outcome)
				if err := payments.HandleProviderEvent(ctx, ev); err != nil {
					slog.Error("provider event handling failed", "event_id", ev.EventID, "error", err)
				}
			}
		}
	}()

	// Initialize handlers
	var simulator *provider.Simulator
	if cfg.Environment == "development" {
		simulator, _ = prov.(*provider.Simulator)
	}
	bookingHandler := handlers.NewBookingHandler(app, reservations)
	paymentHandler := handlers.NewPaymentHandler(app, payments, simulator)

	rateLimiter := security.NewRateLimiter(redisClient, 30, time.Minute)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	if cfg.EnableMetrics {
		monitoring.NewMonitor(redisClient)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		reconciler.Start(ctx)

		throttle := rateLimiter.Middleware()

		// Booking endpoints
		e.Router.POST("/api/v1/bookings/hold", bookingHandler.CreateHold).BindFunc(throttle)
		e.Router.GET("/api/v1/bookings/{bookingId}", bookingHandler.GetBooking)
		e.Router.POST("/api/v1/bookings/{bookingId}/cancel", bookingHandler.CancelBooking)
		e.Router.GET("/api/v1/courts/{courtId}/availability", bookingHandler.GetAvailability)

		// Payment endpoints
		e.Router.POST("/api/v1/payments/intents", paymentHandler.CreateIntent).BindFunc(throttle)
		e.Router.GET("/api/v1/payments/intents/{intentId}", paymentHandler.GetIntent)
		e.Router.GET("/api/v1/payments/intents/{intentId}/events", paymentHandler.ListIntentEvents)
		e.Router.GET("/api/v1/payments/by-reference", paymentHandler.GetIntentByReference)
		e.Router.POST("/api/v1/payments/webhook", paymentHandler.Webhook)

		// Test endpoint for settlement simulation
		if cfg.Environment == "development" {
			e.Router.POST("/api/v1/test/simulate-payment", paymentHandler.SimulatePayment)
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
