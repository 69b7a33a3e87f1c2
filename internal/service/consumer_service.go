package service

import (
	"context"
	"encoding/json"

	"llamatalks-be/internal/dto"
	"llamatalks-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IConsumerService interface {
	// Consume subscribes to the ingestion topic and processes jobs one at a
	// time in the background until ctx is done.
	Consume(ctx context.Context) error
}

// IJobProcessor runs one ingestion job to completion.
type IJobProcessor interface {
	Process(ctx context.Context, job *dto.IngestionJobMessage)
}

type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	processor IJobProcessor
	logger    logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	processor IJobProcessor,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
		processor: processor,
		logger:    log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
		cs.logger.Info("INGESTION", "Consumer stopped", nil)
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var job dto.IngestionJobMessage
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		cs.logger.Error("INGESTION", "Failed to unmarshal job", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err,
		})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	// Outcome is recorded on the batch itself, so the job is never redelivered
	cs.processor.Process(ctx, &job)
	msg.Ack()
}
