// Package worker runs the container-side queue consumers: long-poll SQS
// loops that feed the same batch handlers the Lambda entrypoints use.
// Successes are deleted from the queue; failed messages are left for
// visibility-timeout redelivery, mirroring the Lambda partial batch response.
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ignite/lead-router/internal/queue"
)

// SQSAPI is the slice of the SQS client the poller needs.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
}

// PollerConfig tunes one queue consumer.
type PollerConfig struct {
	// Name labels log lines and metrics.
	Name     string
	QueueURL string
	// Concurrency is the number of parallel receive loops.
	Concurrency int
	// BatchSize is the max messages per receive, capped at SQS's 10.
	BatchSize int
	// WaitTime is the long-poll wait.
	WaitTime time.Duration
	// IdleBackoff is the sleep after an empty receive or a receive error.
	IdleBackoff time.Duration
}

// Poller drives one handler from one SQS queue.
type Poller struct {
	client  SQSAPI
	handler queue.Handler
	cfg     PollerConfig

	processed int64
	failed    int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewPoller creates a poller. Zero config fields get working defaults.
func NewPoller(client SQSAPI, handler queue.Handler, cfg PollerConfig) *Poller {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > 10 {
		cfg.BatchSize = 10
	}
	if cfg.WaitTime <= 0 {
		cfg.WaitTime = 20 * time.Second
	}
	if cfg.IdleBackoff <= 0 {
		cfg.IdleBackoff = 5 * time.Second
	}
	return &Poller{client: client, handler: handler, cfg: cfg}
}

// Start launches the receive loops.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	log.Printf("[%s] Starting %d poll loop(s) on %s", p.cfg.Name, p.cfg.Concurrency, p.cfg.QueueURL)
	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.pollLoop(i)
	}
}

// Stop cancels the loops and waits for in-flight batches to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	log.Printf("[%s] Stopped (processed=%d failed=%d)",
		p.cfg.Name, atomic.LoadInt64(&p.processed), atomic.LoadInt64(&p.failed))
}

// Stats reports the lifetime message counters.
func (p *Poller) Stats() (processed, failed int64) {
	return atomic.LoadInt64(&p.processed), atomic.LoadInt64(&p.failed)
}

func (p *Poller) pollLoop(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		if err := p.pollOnce(); err != nil {
			if p.ctx.Err() != nil {
				return
			}
			log.Printf("[%s] Loop %d: receive error: %v", p.cfg.Name, id, err)
			p.sleep(p.cfg.IdleBackoff)
		}
	}
}

// pollOnce receives one batch, hands it to the handler, and deletes the
// messages the handler did not fail.
func (p *Poller) pollOnce() error {
	out, err := p.client.ReceiveMessage(p.ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(p.cfg.QueueURL),
		MaxNumberOfMessages: int32(p.cfg.BatchSize),
		WaitTimeSeconds:     int32(p.cfg.WaitTime / time.Second),
	})
	if err != nil {
		return err
	}
	if len(out.Messages) == 0 {
		return nil
	}

	msgs := make([]queue.Message, 0, len(out.Messages))
	receipts := make(map[string]string, len(out.Messages))
	for _, m := range out.Messages {
		id := aws.ToString(m.MessageId)
		msgs = append(msgs, queue.Message{ID: id, Body: aws.ToString(m.Body)})
		receipts[id] = aws.ToString(m.ReceiptHandle)
	}

	result := p.handler.HandleBatch(p.ctx, msgs)

	failedSet := make(map[string]bool, len(result.FailedMessageIDs))
	for _, id := range result.FailedMessageIDs {
		failedSet[id] = true
	}

	var entries []types.DeleteMessageBatchRequestEntry
	for _, m := range msgs {
		if failedSet[m.ID] {
			atomic.AddInt64(&p.failed, 1)
			continue
		}
		atomic.AddInt64(&p.processed, 1)
		entries = append(entries, types.DeleteMessageBatchRequestEntry{
			Id:            aws.String(fmt.Sprintf("d%d", len(entries))),
			ReceiptHandle: aws.String(receipts[m.ID]),
		})
	}
	if len(entries) == 0 {
		// Everything failed; leave the whole batch for redelivery.
		return nil
	}

	if _, err := p.client.DeleteMessageBatch(p.ctx, &sqs.DeleteMessageBatchInput{
		QueueUrl: aws.String(p.cfg.QueueURL),
		Entries:  entries,
	}); err != nil {
		// The messages will be redelivered and the handlers are idempotent,
		// so a failed delete costs duplicate work, not duplicate effects.
		log.Printf("[%s] Delete batch failed: %v", p.cfg.Name, err)
	}
	return nil
}

func (p *Poller) sleep(d time.Duration) {
	select {
	case <-p.ctx.Done():
	case <-time.After(d):
	}
}
