package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/peerpay/peerpay/internal/api"
	"github.com/peerpay/peerpay/internal/cache"
	"github.com/peerpay/peerpay/internal/config"
	"github.com/peerpay/peerpay/internal/mailer"
	"github.com/peerpay/peerpay/internal/models"
	"github.com/peerpay/peerpay/internal/service"
	"github.com/peerpay/peerpay/internal/store"
)

func main() {
	cfg := config.Load()

	var st store.Store
	if cfg.DBSource != "" {
		pgStore, err := store.NewPostgres(cfg.DBSource)
		if err != nil {
			log.Fatalf("Unable to connect to database: %v", err)
		}
		defer pgStore.Close()
		st = pgStore
	} else {
		log.Println("DB_SOURCE not set, using in-memory store")
		mem := store.NewMemory()
		seedDemoUsers(mem)
		st = mem
	}

	var codes cache.Codes
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("Unable to connect to redis: %v", err)
		}
		defer redisCache.Close()
		codes = redisCache
	} else {
		log.Println("REDIS_ADDR not set, using in-memory code cache")
		memCache := cache.NewMemory()
		defer memCache.Close()
		codes = memCache
	}

	var dispatcher mailer.Dispatcher
	if cfg.SMTPHost != "" {
		dispatcher = mailer.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	} else {
		log.Println("SMTP_HOST not set, mail goes to the process log")
		dispatcher = mailer.Log{}
	}

	transfers := service.NewTransferService(st, codes, dispatcher, cfg.CodeTTL)
	auth := service.NewAuthService(st, dispatcher, cfg.JWTSecret, cfg.TokenTTL)

	handler := api.NewHandler(transfers, auth)
	router := api.NewRouter(handler)

	log.Printf("Server starting on :%s (%s)", cfg.Port, cfg.Env)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatal(err)
	}
}

// seedDemoUsers gives the in-memory backend two funded, activated
// accounts (password "secret123") so the transfer flow can be tried
// without a database.
func seedDemoUsers(mem *store.Memory) {
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	now := time.Now()
	for i, demo := range []struct {
		fname, phone, email string
	}{
		{"Demo", "+212600000001", "demo1@peerpay.test"},
		{"Demo", "+212600000002", "demo2@peerpay.test"},
	} {
		u, err := mem.CreateUser(ctx, &models.User{
			FirstName:    demo.fname,
			LastName:     fmt.Sprintf("User%d", i+1),
			Phone:        demo.phone,
			Email:        demo.email,
			PasswordHash: string(hash),
			ActivatedAt:  &now,
		})
		if err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
		if err := mem.SetBalance(ctx, u.ID, 10000); err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
		log.Printf("Seeded demo user %s (%s)", demo.email, demo.phone)
	}
}
