package controller

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"llamatalks-be/internal/dto"
	"llamatalks-be/internal/pkg/logger"
	"llamatalks-be/internal/pkg/serverutils"
	"llamatalks-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Chat(ctx *fiber.Ctx) error
	Stream(ctx *fiber.Ctx) error
	GetAll(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	ChangeTitle(ctx *fiber.Ctx) error
	// Shutdown cancels every stream still running so their turns release.
	Shutdown()
}

// defaultStreamStartTimeout bounds how long a streamed turn may wait for
// fasthttp to start writing the response body.
const defaultStreamStartTimeout = 30 * time.Second

type chatController struct {
	service service.IChatService
	logger  logger.ILogger

	shutdownCtx        context.Context
	shutdown           context.CancelFunc
	streamStartTimeout time.Duration
}

func NewChatController(service service.IChatService, log logger.ILogger) IChatController {
	shutdownCtx, shutdown := context.WithCancel(context.Background())
	return &chatController{
		service:            service,
		logger:             log,
		shutdownCtx:        shutdownCtx,
		shutdown:           shutdown,
		streamStartTimeout: defaultStreamStartTimeout,
	}
}

func (c *chatController) Shutdown() {
	c.shutdown()
}

// guardStream derives the context of one streamed turn. It is cancelled on
// Shutdown, and also when started is not called within streamStartTimeout.
func (c *chatController) guardStream(parent context.Context) (ctx context.Context, started func(), cancel context.CancelFunc) {
	ctx, cancelCtx := context.WithCancel(parent)
	stopOnShutdown := context.AfterFunc(c.shutdownCtx, cancelCtx)
	idle := time.AfterFunc(c.streamStartTimeout, func() {
		c.logger.Warn("CHAT", "Stream body writer never started, cancelling turn", map[string]interface{}{
			"timeout": c.streamStartTimeout.String(),
		})
		cancelCtx()
	})

	started = func() { idle.Stop() }
	cancel = func() {
		idle.Stop()
		stopOnShutdown()
		cancelCtx()
	}
	return ctx, started, cancel
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat")
	h.Get("/ws", c.upgrade, websocket.New(c.serveWs))
	h.Post("", c.Chat)
	h.Post("/stream", c.Stream)
	h.Get("", c.GetAll)
	h.Get("/:conversationId", c.Show)
	h.Delete("/:conversationId", c.Delete)
	h.Put("/:conversationId", c.ChangeTitle)
}

func (c *chatController) Chat(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	res, err := c.service.Chat(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success chat", res))
}

// Stream answers with server-sent events: one "data:" event per reply
// fragment, or a final "event: error" carrying the error envelope.
func (c *chatController) Stream(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	streamCtx, started, cancel := c.guardStream(ctx.UserContext())
	events, err := c.service.StreamChat(streamCtx, &req)
	if err != nil {
		cancel()
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		started()
		defer cancel()
		for ev := range events {
			if err := writeSSE(w, ev); err != nil {
				c.logger.Info("CHAT", "Stream client disconnected", map[string]interface{}{
					"conversation_id": ev.ConversationId,
				})
				return
			}
		}
	})
	return nil
}

func writeSSE(w *bufio.Writer, ev dto.StreamEvent) error {
	if ev.Err != nil {
		payload, _ := json.Marshal(serverutils.BuildErrorBody(ev.Err))
		if _, err := fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload); err != nil {
			return err
		}
		return w.Flush()
	}

	payload, err := json.Marshal(dto.ChatResponse{Message: ev.Message, ConversationId: ev.ConversationId})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func (c *chatController) upgrade(ctx *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(ctx) {
		return ctx.Next()
	}
	return fiber.ErrUpgradeRequired
}

// serveWs runs one streamed turn per ChatRequest frame until the peer closes.
func (c *chatController) serveWs(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(c.shutdownCtx)
	defer cancel()

	for {
		var req dto.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("CHAT", "WebSocket read failed", map[string]interface{}{"error": err.Error()})
			}
			return
		}

		if !c.streamToSocket(ctx, conn, &req) {
			return
		}
	}
}

func (c *chatController) streamToSocket(parent context.Context, conn *websocket.Conn, req *dto.ChatRequest) bool {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	events, err := c.service.StreamChat(ctx, req)
	if err != nil {
		return conn.WriteJSON(dto.StreamFrame{Error: serverutils.BuildErrorBody(err)}) == nil
	}

	conversationId := ""
	for ev := range events {
		conversationId = ev.ConversationId
		frame := dto.StreamFrame{Message: ev.Message, ConversationId: ev.ConversationId}
		if ev.Err != nil {
			frame = dto.StreamFrame{ConversationId: ev.ConversationId, Error: serverutils.BuildErrorBody(ev.Err)}
		}
		if err := conn.WriteJSON(frame); err != nil {
			return false
		}
		if ev.Err != nil {
			return true
		}
	}
	return conn.WriteJSON(dto.StreamFrame{ConversationId: conversationId, Done: true}) == nil
}

func (c *chatController) GetAll(ctx *fiber.Ctx) error {
	res, err := c.service.GetAllConversations(ctx.UserContext())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get all conversations", res))
}

func (c *chatController) Show(ctx *fiber.Ctx) error {
	res, err := c.service.GetConversationById(ctx.UserContext(), ctx.Params("conversationId"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show conversation", res))
}

func (c *chatController) Delete(ctx *fiber.Ctx) error {
	if err := c.service.DeleteConversation(ctx.UserContext(), ctx.Params("conversationId")); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete conversation", nil))
}

func (c *chatController) ChangeTitle(ctx *fiber.Ctx) error {
	res, err := c.service.ChangeTitle(ctx.UserContext(), ctx.Params("conversationId"), titleFromBody(ctx.Body()))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success change title", res))
}

// titleFromBody accepts {"title": "..."}, a JSON string, or the raw text.
func titleFromBody(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	switch {
	case bytes.HasPrefix(trimmed, []byte("{")):
		var req dto.ChangeTitleRequest
		if err := json.Unmarshal(trimmed, &req); err == nil {
			return req.Title
		}
	case bytes.HasPrefix(trimmed, []byte(`"`)):
		var title string
		if err := json.Unmarshal(trimmed, &title); err == nil {
			return title
		}
	}
	return string(body)
}
