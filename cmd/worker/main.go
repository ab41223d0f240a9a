package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq"

	"github.com/ignite/lead-router/internal/analytics"
	"github.com/ignite/lead-router/internal/awsconf"
	"github.com/ignite/lead-router/internal/caps"
	"github.com/ignite/lead-router/internal/channel"
	"github.com/ignite/lead-router/internal/config"
	"github.com/ignite/lead-router/internal/events"
	"github.com/ignite/lead-router/internal/flags"
	"github.com/ignite/lead-router/internal/handler"
	"github.com/ignite/lead-router/internal/queue"
	"github.com/ignite/lead-router/internal/repository/dynamo"
	"github.com/ignite/lead-router/internal/repository/postgres"
	"github.com/ignite/lead-router/internal/rules"
	"github.com/ignite/lead-router/internal/service/assignment"
	"github.com/ignite/lead-router/internal/service/notification"
	"github.com/ignite/lead-router/internal/worker"
)

func main() {
	log.Println("Starting Lead Router worker...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Printf("Config file not loaded (%v) — using environment only", err)
		cfg = config.FromEnv()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := awsconf.Load(ctx, cfg.AWS.Region, cfg.AWS.GetProfile())
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	// Lead store
	leadRepo := dynamo.NewLeadRepository(dynamodb.NewFromConfig(awsCfg), cfg.Leads.TableName)
	log.Printf("Lead store: DynamoDB table %s", cfg.Leads.TableName)

	// Feature flags. With no bucket configured every flag stays off and all
	// handlers acknowledge without acting.
	s3Client := s3.NewFromConfig(awsCfg)
	flagCache := flags.NewCache(flags.NewS3Source(s3Client, cfg.Flags.S3Bucket, cfg.Flags.S3Key), cfg.Flags.CacheTTL())
	if cfg.Flags.S3Bucket == "" {
		log.Println("Warning: FLAGS_S3_BUCKET not set — all feature flags default to off")
	}

	// Portal database (organizations, members, rules)
	if cfg.Postgres.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required (org/member directory)")
	}
	db, err := sql.Open("postgres", cfg.Postgres.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	pingCancel()
	log.Println("Connected to portal database")

	directory := postgres.NewDirectory(db)

	// Assignment rules, cached with a short TTL
	var ruleSource rules.Source
	if cfg.Rules.Source == "postgres" {
		ruleSource = rules.NewRepoSource(postgres.NewRulesRepo(db))
		log.Println("Rule source: postgres")
	} else {
		ruleSource = rules.NewS3Source(s3Client, cfg.Rules.S3Bucket, cfg.Rules.S3Key)
		log.Printf("Rule source: s3://%s/%s", cfg.Rules.S3Bucket, cfg.Rules.S3Key)
	}
	ruleCache := rules.NewCache(ruleSource, cfg.Rules.CacheTTL())

	// Cap counters
	enforcer, err := caps.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer enforcer.Close()

	publisher := events.NewPublisher(eventbridge.NewFromConfig(awsCfg), cfg.Events.BusName, cfg.Events.Source)

	assignSvc := assignment.NewService(leadRepo, ruleCache, directory, enforcer, publisher, cfg.Leads.UnassignedTTLDays)

	emailCh := channel.NewEmailChannel(sesv2.NewFromConfig(awsCfg), cfg.Notifications.FromAddress, cfg.Notifications.ReplyTo)
	smsCh := channel.NewSMSChannel(sns.NewFromConfig(awsCfg), "")
	notifySvc := notification.NewService(leadRepo, directory, emailCh, smsCh, flagCache, notification.Config{
		InternalRecipients: cfg.Notifications.InternalRecipients,
		DashboardBaseURL:   cfg.Notifications.DashboardBaseURL,
	})

	// Snowflake warehouse export (optional)
	var warehouse *sql.DB
	if cfg.Snowflake.Enabled {
		p := analytics.ConnParams{
			Account:   cfg.Snowflake.Account,
			User:      cfg.Snowflake.User,
			Password:  cfg.Snowflake.Password,
			Database:  cfg.Snowflake.Database,
			Schema:    cfg.Snowflake.Schema,
			Warehouse: cfg.Snowflake.Warehouse,
		}
		if cfg.Snowflake.ConnectionString != "" {
			parsed := analytics.ParseConnectionString(cfg.Snowflake.ConnectionString)
			if p.Account == "" {
				p.Account = parsed.Account
			}
			if p.User == "" {
				p.User = parsed.User
			}
			if p.Password == "" {
				p.Password = parsed.Password
			}
			if parsed.Database != "" {
				p.Database = parsed.Database
			}
			if parsed.Schema != "" {
				p.Schema = parsed.Schema
			}
			if p.Warehouse == "" {
				p.Warehouse = parsed.Warehouse
			}
		}
		warehouse, err = analytics.Open(p.User, p.Password, p.Account, p.Database, p.Schema, p.Warehouse)
		if err != nil {
			log.Printf("Warning: Snowflake connection failed, analytics batches will retry: %v", err)
		} else {
			defer warehouse.Close()
			log.Printf("Snowflake export enabled (database: %s.%s)", p.Database, p.Schema)
		}
	} else {
		log.Println("Snowflake export not configured")
	}
	exporter := analytics.NewExporter(warehouse, flagCache)

	sqsClient := sqs.NewFromConfig(awsCfg)

	var pollers []*worker.Poller
	startPoller := func(name, queueURL string, h queue.Handler) {
		if queueURL == "" {
			log.Printf("%s not started (queue URL not configured)", name)
			return
		}
		p := worker.NewPoller(sqsClient, h, worker.PollerConfig{
			Name:        name,
			QueueURL:    queueURL,
			Concurrency: cfg.Worker.Concurrency,
			BatchSize:   cfg.Queues.BatchSize,
			WaitTime:    cfg.Queues.WaitTime(),
			IdleBackoff: cfg.Worker.PollInterval(),
		})
		p.Start(ctx)
		pollers = append(pollers, p)
	}

	startPoller("AssignmentPoller", cfg.Queues.AssignmentQueueURL,
		handler.NewAssignmentHandler(assignSvc, flagCache, cfg.Leads.TableName != ""))
	startPoller("NotificationPoller", cfg.Queues.NotificationQueueURL,
		handler.NewNotificationHandler(notifySvc, flagCache, cfg.Leads.TableName != ""))
	startPoller("AnalyticsPoller", cfg.Queues.AnalyticsQueueURL, exporter)

	if len(pollers) == 0 {
		log.Println("Warning: no queue URLs configured — worker has nothing to poll")
	}
	log.Printf("Worker running with %d poller(s)", len(pollers))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	for _, p := range pollers {
		p.Stop()
	}
	log.Println("Worker stopped")
}
