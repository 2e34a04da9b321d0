package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/plotgarden/plotgarden/internal/ai"
	"github.com/plotgarden/plotgarden/internal/api"
	"github.com/plotgarden/plotgarden/internal/archive"
	"github.com/plotgarden/plotgarden/internal/snapshot"
	"github.com/plotgarden/plotgarden/internal/store"
	"github.com/plotgarden/plotgarden/internal/weather"
)

var cli struct {
	DB              string        `help:"Path to SQLite database." default:"data/plotgarden.db"`
	Port            string        `help:"HTTP server port." default:"8080"`
	SnapshotDir     string        `help:"Directory for cached plan snapshots." default:"data/snapshots"`
	OpenAIKey       string        `help:"OpenAI API key; AI routes are disabled when unset." env:"OPENAI_API_KEY"`
	OpenAIModel     string        `help:"Model used for plant search and fit checks." default:"gpt-4o-mini" env:"OPENAI_MODEL"`
	RateLimitWindow time.Duration `help:"Minimum spacing between weather refreshes per plan." default:"15m"`
	StaleAfter      time.Duration `help:"Age after which cached weather is refetched." default:"24h"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("plotgarden"),
		kong.Description("Garden plot planning service with weather-informed AI plant scoring."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	db, err := sql.Open("sqlite", cli.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	db.Exec("PRAGMA foreign_keys=ON")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("database migrated")

	limiter := weather.NewRateLimiter(cli.RateLimitWindow, weather.DefaultPurgeInterval, nil)
	refresher := weather.NewRefresher(st, archive.NewDefault(), limiter, cli.StaleAfter, nil)

	// AI assistance is optional; without a key the routes answer 503.
	var gateway api.AIGateway
	if cli.OpenAIKey != "" {
		gw, err := ai.NewGateway(cli.OpenAIKey, cli.OpenAIModel, ai.DefaultTimeout)
		if err != nil {
			log.Printf("AI assistant disabled: %v", err)
		} else {
			gateway = gw
		}
	} else {
		log.Println("AI assistant disabled: no OpenAI API key configured")
	}

	server := api.NewServer(st, refresher, gateway, snapshot.NewCache(cli.SnapshotDir), cli.Port)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		ticker := time.NewTicker(weather.DefaultPurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				limiter.PurgeOlderThan(t)
			}
		}
	}()

	log.Printf("starting server on :%s", cli.Port)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}
