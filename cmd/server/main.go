package main // Entry point package

import (
	"log" // Logging library

	"github.com/joho/godotenv"    // .env loader for local development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/localmart/identity/internal/cache"
	"github.com/localmart/identity/internal/config"
	"github.com/localmart/identity/internal/database"
	"github.com/localmart/identity/internal/handler"
	"github.com/localmart/identity/internal/queue"
	"github.com/localmart/identity/internal/repository"
	"github.com/localmart/identity/internal/router"
	queue_publisher "github.com/localmart/identity/internal/service"
	"github.com/localmart/identity/internal/token"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		// The phone flow cannot run without its ticket store.
		log.Fatal("redis: connection failed")
	}

	codec, err := token.NewFromPEM(cfg.JWTPrivateKey, cfg.JWTPublicKey, cfg.SessionTTL)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	users := repository.NewUserRepo(db)
	identities := repository.NewIdentityRepo(db)
	sellers := repository.NewSellerRepo(db)
	tickets := cache.NewTicketStore(rdb)

	auth := handler.NewAuthHandler(cfg, users, sellers, codec, queue_publisher.PublishIdentityEvent)
	google := handler.NewGoogleHandler(cfg, users, identities, codec, queue_publisher.PublishIdentityEvent)
	phone := handler.NewPhoneHandler(cfg, tickets, users, identities, codec, queue_publisher.PublishIdentityEvent)

	// Audit consumer runs for the life of the process and reconnects on its own.
	go func() {
		if err := queue.StartIdentityConsumer(); err != nil {
			log.Printf("identity-consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, auth, google, phone, codec)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
