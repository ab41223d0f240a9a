// The notifier Lambda consumes lead.assigned and lead.unassigned messages
// from the notification queue and fans out email/SMS notifications. Dedup
// lives in the lead store's notification locks, so Lambda retries and
// duplicate deliveries never double-send.
package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	_ "github.com/lib/pq"

	"github.com/ignite/lead-router/internal/awsconf"
	"github.com/ignite/lead-router/internal/channel"
	"github.com/ignite/lead-router/internal/config"
	"github.com/ignite/lead-router/internal/flags"
	"github.com/ignite/lead-router/internal/handler"
	"github.com/ignite/lead-router/internal/queue"
	"github.com/ignite/lead-router/internal/repository/dynamo"
	"github.com/ignite/lead-router/internal/repository/postgres"
	"github.com/ignite/lead-router/internal/service/notification"
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

	emailCh := channel.NewEmailChannel(sesv2.NewFromConfig(awsCfg), cfg.Notifications.FromAddress, cfg.Notifications.ReplyTo)
	smsCh := channel.NewSMSChannel(sns.NewFromConfig(awsCfg), "")

	svc := notification.NewService(leadRepo, directory, emailCh, smsCh, flagCache, notification.Config{
		InternalRecipients: cfg.Notifications.InternalRecipients,
		DashboardBaseURL:   cfg.Notifications.DashboardBaseURL,
	})

	h := handler.NewNotificationHandler(svc, flagCache, cfg.Leads.TableName != "")
	lambda.Start(queue.SQSLambdaHandler(h))
}
