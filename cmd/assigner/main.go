// The assigner Lambda consumes lead.created messages from the assignment
// queue and drives the assignment orchestrator. Partial batch responses let
// SQS redeliver only the messages that failed.
package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq"

	"github.com/ignite/lead-router/internal/awsconf"
	"github.com/ignite/lead-router/internal/caps"
	"github.com/ignite/lead-router/internal/config"
	"github.com/ignite/lead-router/internal/events"
	"github.com/ignite/lead-router/internal/flags"
	"github.com/ignite/lead-router/internal/handler"
	"github.com/ignite/lead-router/internal/queue"
	"github.com/ignite/lead-router/internal/repository/dynamo"
	"github.com/ignite/lead-router/internal/repository/postgres"
	"github.com/ignite/lead-router/internal/rules"
	"github.com/ignite/lead-router/internal/service/assignment"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	awsCfg, err := awsconf.Load(ctx, cfg.AWS.Region, "")
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	leadRepo := dynamo.NewLeadRepository(dynamodb.NewFromConfig(awsCfg), cfg.Leads.TableName)

	s3Client := s3.NewFromConfig(awsCfg)
	flagCache := flags.NewCache(flags.NewS3Source(s3Client, cfg.Flags.S3Bucket, cfg.Flags.S3Key), cfg.Flags.CacheTTL())

	db, err := sql.Open("postgres", cfg.Postgres.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	directory := postgres.NewDirectory(db)

	var ruleSource rules.Source
	if cfg.Rules.Source == "postgres" {
		ruleSource = rules.NewRepoSource(postgres.NewRulesRepo(db))
	} else {
		ruleSource = rules.NewS3Source(s3Client, cfg.Rules.S3Bucket, cfg.Rules.S3Key)
	}
	ruleCache := rules.NewCache(ruleSource, cfg.Rules.CacheTTL())

	enforcer, err := caps.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	publisher := events.NewPublisher(eventbridge.NewFromConfig(awsCfg), cfg.Events.BusName, cfg.Events.Source)
	svc := assignment.NewService(leadRepo, ruleCache, directory, enforcer, publisher, cfg.Leads.UnassignedTTLDays)

	h := handler.NewAssignmentHandler(svc, flagCache, cfg.Leads.TableName != "")
	lambda.Start(queue.SQSLambdaHandler(h))
}
