package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq"

	"github.com/ignite/lead-router/internal/api"
	"github.com/ignite/lead-router/internal/awsconf"
	"github.com/ignite/lead-router/internal/caps"
	"github.com/ignite/lead-router/internal/config"
	"github.com/ignite/lead-router/internal/events"
	"github.com/ignite/lead-router/internal/flags"
	"github.com/ignite/lead-router/internal/repository/dynamo"
	"github.com/ignite/lead-router/internal/repository/postgres"
	"github.com/ignite/lead-router/internal/rules"
	"github.com/ignite/lead-router/internal/service/assignment"
)

// checkPortAvailable verifies the target port is free before any slow
// initialization, so a stale process on the port fails fast.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("Starting Lead Router ops API...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Printf("Config file not loaded (%v) — using environment only", err)
		cfg = config.FromEnv()
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := awsconf.Load(ctx, cfg.AWS.Region, cfg.AWS.GetProfile())
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	leadRepo := dynamo.NewLeadRepository(dynamodb.NewFromConfig(awsCfg), cfg.Leads.TableName)

	s3Client := s3.NewFromConfig(awsCfg)
	flagCache := flags.NewCache(flags.NewS3Source(s3Client, cfg.Flags.S3Bucket, cfg.Flags.S3Key), cfg.Flags.CacheTTL())

	if cfg.Postgres.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required (rules and directory)")
	}
	db, err := sql.Open("postgres", cfg.Postgres.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(3)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	pingCancel()
	log.Println("Connected to portal database")

	rulesRepo := postgres.NewRulesRepo(db)
	directory := postgres.NewDirectory(db)

	// The manual re-drive endpoint runs the same orchestrator the queue
	// handlers do, against the same rule source the workers read.
	var ruleSource rules.Source
	if cfg.Rules.Source == "postgres" {
		ruleSource = rules.NewRepoSource(rulesRepo)
	} else {
		ruleSource = rules.NewS3Source(s3Client, cfg.Rules.S3Bucket, cfg.Rules.S3Key)
	}
	ruleCache := rules.NewCache(ruleSource, cfg.Rules.CacheTTL())

	enforcer, err := caps.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer enforcer.Close()

	publisher := events.NewPublisher(eventbridge.NewFromConfig(awsCfg), cfg.Events.BusName, cfg.Events.Source)
	assignSvc := assignment.NewService(leadRepo, ruleCache, directory, enforcer, publisher, cfg.Leads.UnassignedTTLDays)

	handlers := api.NewHandlers(rulesRepo, flagCache, enforcer, leadRepo, assignSvc, map[string]api.Pinger{
		"postgres": func(ctx context.Context) error { return db.PingContext(ctx) },
		"redis": func(ctx context.Context) error {
			_, err := enforcer.CurrentUsage(ctx, "health")
			return err
		},
	})

	apiKey := ""
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	if apiKey == "" {
		log.Println("Warning: API key auth disabled — /api is open")
	}
	server := api.NewServer(handlers, apiKey)

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("Listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
