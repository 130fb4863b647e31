package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/project-rooms/internal/api"
	"github.com/npezzotti/project-rooms/internal/config"
	"github.com/npezzotti/project-rooms/internal/database"
	"github.com/npezzotti/project-rooms/internal/server"
	"github.com/npezzotti/project-rooms/internal/stats"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
	typingTimeout  time.Duration
	eventRate      float64
	eventBurst     int
	migrateDB      bool
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS and websocket upgrades")
	flag.DurationVar(&typingTimeout, "typing-timeout", config.DefaultTypingTimeout, "clear a typing indicator after this long without a refresh, 0 disables")
	flag.Float64Var(&eventRate, "event-rate", config.DefaultEventRate, "inbound socket events per second allowed per connection")
	flag.IntVar(&eventBurst, "event-burst", config.DefaultEventBurst, "inbound socket event burst allowed per connection")
	flag.BoolVar(&migrateDB, "migrate", false, "apply pending database migrations on startup")
	flag.Parse()

	logger := log.New(os.Stderr, "[project-rooms] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	if err := cfg.WithLimits(typingTimeout, eventRate, eventBurst); err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgProjectRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if migrateDB {
		if err := database.Migrate(cfg.DatabaseDSN); err != nil {
			logger.Fatal("db migrate:", err)
		}
		logger.Println("database schema is up to date")
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, statsUpdater, cfg)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	srv := api.NewProjectRoomsApp(mux, logger, chatServer, dbConn, cfg)

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
