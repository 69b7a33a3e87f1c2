package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"llamatalks-be/internal/dto"
	"llamatalks-be/internal/entity"
	"llamatalks-be/internal/pkg/apperror"
	"llamatalks-be/internal/pkg/logger"
	"llamatalks-be/internal/repository/specification"
	"llamatalks-be/internal/repository/unitofwork"
	"llamatalks-be/pkg/events"
	"llamatalks-be/pkg/llm"
	"llamatalks-be/pkg/rag/memory"
	"llamatalks-be/pkg/rag/retrieval"
	"llamatalks-be/pkg/rag/session"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("llamatalks-be/internal/service")

// IRetriever turns a user query into context text; "" means nothing relevant.
type IRetriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

type IChatService interface {
	Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error)
	// StreamChat returns once the turn is prepared and the user message stored.
	// The channel is closed after the last event; cancelling ctx stops the
	// model and nothing further is saved.
	StreamChat(ctx context.Context, req *dto.ChatRequest) (<-chan dto.StreamEvent, error)
	GetAllConversations(ctx context.Context) ([]*dto.ConversationDetail, error)
	GetConversationById(ctx context.Context, conversationId string) (*dto.ConversationDetail, error)
	DeleteConversation(ctx context.Context, conversationId string) error
	ChangeTitle(ctx context.Context, conversationId string, title string) (*dto.ConversationSummary, error)
}

type ChatServiceConfig struct {
	MemoryWindowSize int
	StreamBufferSize int
	SerializeTurns   bool
	// LockWaitTimeout bounds how long a turn waits for an earlier turn on the
	// same conversation. Zero waits as long as the caller's context allows.
	LockWaitTimeout time.Duration
}

type chatService struct {
	uowFactory     unitofwork.RepositoryFactory
	llmProvider    llm.LLMProvider
	retriever      IRetriever
	eventPublisher events.Publisher
	locker         *session.Locker
	lockWait       time.Duration
	logger         logger.ILogger
	windowSize     int
	streamBuffer   int
	now            func() time.Time
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	llmProvider llm.LLMProvider,
	retriever IRetriever,
	eventPublisher events.Publisher,
	log logger.ILogger,
	cfg ChatServiceConfig,
) IChatService {
	if eventPublisher == nil {
		eventPublisher = events.NoopPublisher{}
	}
	if cfg.MemoryWindowSize <= 0 {
		cfg.MemoryWindowSize = 20
	}
	if cfg.StreamBufferSize < 0 {
		cfg.StreamBufferSize = 0
	}

	var locker *session.Locker
	if cfg.SerializeTurns {
		locker = session.NewLocker()
	}

	return &chatService{
		uowFactory:     uowFactory,
		llmProvider:    llmProvider,
		retriever:      retriever,
		eventPublisher: eventPublisher,
		locker:         locker,
		lockWait:       cfg.LockWaitTimeout,
		logger:         log,
		windowSize:     cfg.MemoryWindowSize,
		streamBuffer:   cfg.StreamBufferSize,
		now:            time.Now,
	}
}

// turn is everything prepared before the model is called.
type turn struct {
	conversation *entity.Conversation
	messages     []llm.Message
	context      string
	unlock       func()
}

func (s *chatService) Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "ChatService.Chat")
	defer span.End()

	t, err := s.prepareTurn(ctx, req)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer t.unlock()

	reply, err := s.llmProvider.Chat(ctx, t.messages)
	if err != nil {
		s.logger.Error("CHAT", "Chat model call failed", map[string]interface{}{
			"conversation_id": t.conversation.ConversationId,
			"error":           err,
		})
		err = apperror.UpstreamModel("Chat model call failed", err)
		recordSpanError(span, err)
		return nil, err
	}

	if err := s.saveReply(ctx, t, reply); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	return &dto.ChatResponse{
		Message:        reply,
		ConversationId: t.conversation.ConversationId,
	}, nil
}

func (s *chatService) StreamChat(ctx context.Context, req *dto.ChatRequest) (<-chan dto.StreamEvent, error) {
	ctx, span := tracer.Start(ctx, "ChatService.StreamChat")

	t, err := s.prepareTurn(ctx, req)
	if err != nil {
		recordSpanError(span, err)
		span.End()
		return nil, err
	}

	stream, err := s.llmProvider.ChatStream(ctx, t.messages)
	if err != nil {
		t.unlock()
		s.logger.Error("CHAT", "Chat model stream could not be opened", map[string]interface{}{
			"conversation_id": t.conversation.ConversationId,
			"error":           err,
		})
		err = apperror.UpstreamModel("Chat model call failed", err)
		recordSpanError(span, err)
		span.End()
		return nil, err
	}

	out := make(chan dto.StreamEvent, s.streamBuffer)
	go s.pump(ctx, span, t, stream, out)
	return out, nil
}

// pump forwards model fragments to out and saves the full reply once the
// model reports completion. It owns stream, out, the turn lock and the span.
func (s *chatService) pump(ctx context.Context, span trace.Span, t *turn, stream llm.ChatStream, out chan<- dto.StreamEvent) {
	defer span.End()
	defer t.unlock()
	defer close(out)
	defer stream.Close()

	conversationId := t.conversation.ConversationId
	var reply strings.Builder
	fragments := 0

	for {
		delta, done, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				s.logCancelled(conversationId, fragments)
				return
			}
			s.logger.Error("CHAT", "Chat model stream failed", map[string]interface{}{
				"conversation_id": conversationId,
				"fragments":       fragments,
				"error":           err,
			})
			streamErr := apperror.UpstreamModel("Chat model stream failed", err)
			recordSpanError(span, streamErr)
			send(ctx, out, dto.StreamEvent{ConversationId: conversationId, Err: streamErr})
			return
		}

		if delta != "" {
			reply.WriteString(delta)
			fragments++
			if !send(ctx, out, dto.StreamEvent{Message: delta, ConversationId: conversationId}) {
				s.logCancelled(conversationId, fragments)
				return
			}
		}
		if done {
			break
		}
	}

	if ctx.Err() != nil {
		s.logCancelled(conversationId, fragments)
		return
	}

	if err := s.saveReply(ctx, t, reply.String()); err != nil {
		recordSpanError(span, err)
		send(ctx, out, dto.StreamEvent{ConversationId: conversationId, Err: err})
		return
	}
	span.SetAttributes(attribute.Int("chat.fragments", fragments))
}

// send blocks while out is full; it gives up when the consumer goes away.
func send(ctx context.Context, out chan<- dto.StreamEvent, ev dto.StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *chatService) logCancelled(conversationId string, fragments int) {
	s.logger.Info("CHAT", "Stream cancelled by client, reply discarded", map[string]interface{}{
		"conversation_id": conversationId,
		"fragments":       fragments,
	})
}

func (s *chatService) prepareTurn(ctx context.Context, req *dto.ChatRequest) (*turn, error) {
	if req == nil {
		return nil, apperror.InvalidInput("Message cannot be empty")
	}
	if err := validateUserMessage(req.Message); err != nil {
		return nil, err
	}

	conversation, err := s.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	unlock := func() {}
	if s.locker != nil {
		release, err := s.lockTurn(ctx, conversation.ConversationId)
		if err != nil {
			return nil, err
		}
		unlock = release
	}

	t, err := s.buildTurn(ctx, conversation, req.Message)
	if err != nil {
		unlock()
		return nil, err
	}
	t.unlock = unlock
	return t, nil
}

func (s *chatService) lockTurn(ctx context.Context, conversationId string) (func(), error) {
	lockCtx := ctx
	if s.lockWait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockWait)
		defer cancel()
	}

	release, err := s.locker.Lock(lockCtx, conversationId)
	if err == nil {
		return release, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	s.logger.Warn("CHAT", "Timed out waiting for conversation turn", map[string]interface{}{
		"conversation_id": conversationId,
		"wait":            s.lockWait.String(),
	})
	return nil, apperror.ConversationBusy(conversationId, err)
}

func (s *chatService) buildTurn(ctx context.Context, conversation *entity.Conversation, message string) (*turn, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	history, err := uow.MessageRepository().FindAll(ctx,
		specification.ByConversationRowID{RowID: conversation.Id},
		specification.OrderBy{Field: "generated_at"},
		specification.OrderBy{Field: "id"},
	)
	if err != nil {
		return nil, apperror.Persistence("Failed to load conversation history", err)
	}

	window := memory.NewWindow(s.windowSize)
	for _, m := range memory.FromMessages(history, s.windowSize) {
		window.Add(m)
	}

	retrieved, err := s.retriever.Retrieve(ctx, message)
	if err != nil {
		s.logger.Error("CHAT", "Context retrieval failed", map[string]interface{}{
			"conversation_id": conversation.ConversationId,
			"error":           err,
		})
		if apperror.KindOf(err) == "" {
			err = apperror.Retrieval("Context retrieval failed", err)
		}
		return nil, err
	}
	if retrieved != "" {
		window.Add(retrieval.SystemMessage(retrieved))
	}
	window.Add(llm.Message{Role: llm.RoleUser, Content: message})

	userMessage := &entity.Message{
		ConversationRowId: conversation.Id,
		Content:           message,
		Role:              entity.MessageRoleUser,
		GeneratedAt:       s.now(),
	}
	if err := uow.MessageRepository().Create(ctx, userMessage); err != nil {
		return nil, apperror.Persistence("Failed to save user message", err)
	}

	return &turn{
		conversation: conversation,
		messages:     window.Messages(),
		context:      retrieved,
	}, nil
}

func (s *chatService) resolveConversation(ctx context.Context, req *dto.ChatRequest) (*entity.Conversation, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	if req.ConversationId != "" {
		conversation, err := uow.ConversationRepository().FindOne(ctx,
			specification.ByConversationID{ConversationID: req.ConversationId},
		)
		if err != nil {
			return nil, apperror.Persistence("Failed to load conversation", err)
		}
		if conversation == nil {
			return nil, apperror.ConversationNotFound(req.ConversationId)
		}
		return conversation, nil
	}

	conversation, err := uow.ConversationRepository().CreateIfAbsent(ctx, &entity.Conversation{
		ConversationId: uuid.NewString(),
		Title:          titleFromMessage(req.Message),
		StartedAt:      s.now(),
	})
	if err != nil {
		return nil, apperror.Persistence("Failed to create conversation", err)
	}

	s.logger.Info("CHAT", "Conversation created", map[string]interface{}{
		"conversation_id": conversation.ConversationId,
	})
	s.publish(ctx, events.New(events.ConversationCreated, map[string]interface{}{
		"conversationId": conversation.ConversationId,
		"title":          conversation.Title,
	}))
	return conversation, nil
}

func (s *chatService) saveReply(ctx context.Context, t *turn, reply string) error {
	if strings.TrimSpace(reply) == "" {
		return apperror.UpstreamModel("Chat model returned an empty reply", nil)
	}
	if utf8.RuneCountInString(reply) > entity.MaxContentLength {
		s.logger.Warn("CHAT", "Reply exceeds stored message limit", map[string]interface{}{
			"conversation_id": t.conversation.ConversationId,
			"length":          utf8.RuneCountInString(reply),
		})
		return apperror.Persistence("AI reply exceeds 5000 characters and cannot be stored", nil)
	}

	snapshot := contextSnapshot(t.context)
	uow := s.uowFactory.NewUnitOfWork(ctx)
	err := uow.MessageRepository().Create(ctx, &entity.Message{
		ConversationRowId: t.conversation.Id,
		Content:           reply,
		Role:              entity.MessageRoleAI,
		Context:           &snapshot,
		GeneratedAt:       s.now(),
	})
	if err != nil {
		return apperror.Persistence("Failed to save AI reply", err)
	}
	return nil
}

func (s *chatService) GetAllConversations(ctx context.Context) ([]*dto.ConversationDetail, error) {
	ctx, span := tracer.Start(ctx, "ChatService.GetAllConversations")
	defer span.End()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	conversations, err := uow.ConversationRepository().FindAll(ctx,
		specification.OrderBy{Field: "started_at", Desc: true},
		specification.WithMessages{},
	)
	if err != nil {
		return nil, apperror.Persistence("Failed to list conversations", err)
	}

	res := make([]*dto.ConversationDetail, len(conversations))
	for i, c := range conversations {
		res[i] = toDetail(c)
	}
	return res, nil
}

func (s *chatService) GetConversationById(ctx context.Context, conversationId string) (*dto.ConversationDetail, error) {
	ctx, span := tracer.Start(ctx, "ChatService.GetConversationById")
	defer span.End()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	conversation, err := uow.ConversationRepository().FindOne(ctx,
		specification.ByConversationID{ConversationID: conversationId},
		specification.WithMessages{},
	)
	if err != nil {
		return nil, apperror.Persistence("Failed to load conversation", err)
	}
	if conversation == nil {
		return nil, apperror.ConversationNotFound(conversationId)
	}

	return toDetail(conversation), nil
}

func (s *chatService) DeleteConversation(ctx context.Context, conversationId string) error {
	ctx, span := tracer.Start(ctx, "ChatService.DeleteConversation")
	defer span.End()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	conversation, err := uow.ConversationRepository().FindOne(ctx,
		specification.ByConversationID{ConversationID: conversationId},
	)
	if err != nil {
		return apperror.Persistence("Failed to load conversation", err)
	}
	if conversation == nil {
		return apperror.ConversationNotFound(conversationId)
	}

	if err := uow.Begin(ctx); err != nil {
		return apperror.Persistence("Failed to start transaction", err)
	}
	if err := uow.MessageRepository().DeleteByConversationRowId(ctx, conversation.Id); err != nil {
		_ = uow.Rollback()
		return apperror.Persistence("Failed to delete messages", err)
	}
	if err := uow.ConversationRepository().Delete(ctx, conversation.Id); err != nil {
		_ = uow.Rollback()
		return apperror.Persistence("Failed to delete conversation", err)
	}
	if err := uow.Commit(); err != nil {
		return apperror.Persistence("Failed to commit deletion", err)
	}

	s.logger.Info("CHAT", "Conversation deleted", map[string]interface{}{
		"conversation_id": conversationId,
	})
	s.publish(ctx, events.New(events.ConversationDeleted, map[string]interface{}{
		"conversationId": conversationId,
	}))
	return nil
}

func (s *chatService) ChangeTitle(ctx context.Context, conversationId string, title string) (*dto.ConversationSummary, error) {
	ctx, span := tracer.Start(ctx, "ChatService.ChangeTitle")
	defer span.End()

	if strings.TrimSpace(title) == "" {
		return nil, apperror.InvalidInput("Title cannot be empty")
	}
	if utf8.RuneCountInString(title) > entity.MaxTitleLength {
		return nil, apperror.InvalidInput("Title cannot exceed 63 characters")
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	conversation, err := uow.ConversationRepository().FindOne(ctx,
		specification.ByConversationID{ConversationID: conversationId},
	)
	if err != nil {
		return nil, apperror.Persistence("Failed to load conversation", err)
	}
	if conversation == nil {
		return nil, apperror.ConversationNotFound(conversationId)
	}

	if err := uow.ConversationRepository().UpdateTitle(ctx, conversation.Id, title); err != nil {
		return nil, apperror.Persistence("Failed to update title", err)
	}
	conversation.Title = title

	s.publish(ctx, events.New(events.ConversationRetitled, map[string]interface{}{
		"conversationId": conversationId,
		"title":          title,
	}))
	return toSummary(conversation), nil
}

func (s *chatService) publish(ctx context.Context, evt events.Event) {
	if err := s.eventPublisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("CHAT", "Failed to publish event", map[string]interface{}{
			"event": evt.EventType(),
			"error": err.Error(),
		})
	}
}

func validateUserMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return apperror.InvalidInput("Message cannot be empty")
	}
	if utf8.RuneCountInString(message) > entity.MaxContentLength {
		return apperror.InvalidInput("Message cannot exceed 5000 characters")
	}
	return nil
}

func titleFromMessage(message string) string {
	return truncateRunes(strings.TrimSpace(message), entity.MaxTitleLength)
}

func contextSnapshot(retrieved string) string {
	if retrieved == "" {
		return entity.NoContext
	}
	return truncateRunes(retrieved, entity.MaxContextLength)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func toSummary(c *entity.Conversation) *dto.ConversationSummary {
	return &dto.ConversationSummary{
		ConversationId: c.ConversationId,
		Title:          c.Title,
		StartedAt:      c.StartedAt,
	}
}

// toDetail expects Messages to be loaded; a conversation without messages
// renders an empty list, never null.
func toDetail(c *entity.Conversation) *dto.ConversationDetail {
	messages := make([]*dto.MessageResponse, len(c.Messages))
	for i, m := range c.Messages {
		messages[i] = &dto.MessageResponse{
			Content:     m.Content,
			Role:        string(m.Role),
			Context:     m.Context,
			GeneratedAt: m.GeneratedAt,
		}
	}

	return &dto.ConversationDetail{
		ConversationId: c.ConversationId,
		Title:          c.Title,
		StartedAt:      c.StartedAt,
		Messages:       messages,
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
