package tracking

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Consumer long-polls the tracking queue and applies events to the ledger.
// Messages are deleted once applied, or when they can never apply; transient
// failures are left on the queue for redelivery.
type Consumer struct {
	client     SQSAPI
	queueURL   string
	ledger     Ledger
	retryDelay time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

func NewConsumer(client SQSAPI, queueURL string, ledger Ledger) *Consumer {
	return &Consumer{
		client:     client,
		queueURL:   queueURL,
		ledger:     ledger,
		retryDelay: 5 * time.Second,
		done:       make(chan struct{}),
	}
}

func (c *Consumer) Start(ctx context.Context) {
	log.Printf("[tracking.Consumer] started (queue=%s)", c.queueURL)
	go c.poll(ctx)
}

func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *Consumer) poll(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		if _, err := c.ReceiveOnce(ctx, 20); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[tracking.Consumer] receive: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-time.After(c.retryDelay):
			}
		}
	}
}

// ReceiveOnce fetches and handles one batch, returning how many messages
// were applied.
func (c *Consumer) ReceiveOnce(ctx context.Context, waitSeconds int32) (int, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     waitSeconds,
	})
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, msg := range out.Messages {
		if c.handle(ctx, msg) {
			applied++
		}
	}
	return applied, nil
}

func (c *Consumer) handle(ctx context.Context, msg types.Message) bool {
	var evt Event
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &evt); err != nil {
		log.Printf("[tracking.Consumer] bad message %s: %v", aws.ToString(msg.MessageId), err)
		c.deleteMessage(ctx, msg.ReceiptHandle)
		return false
	}

	if err := Apply(ctx, c.ledger, evt); err != nil {
		logApplyError(evt, err)
		if permanent(err) {
			c.deleteMessage(ctx, msg.ReceiptHandle)
		}
		return false
	}

	c.deleteMessage(ctx, msg.ReceiptHandle)
	return true
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		log.Printf("[tracking.Consumer] delete message: %v", err)
	}
}
