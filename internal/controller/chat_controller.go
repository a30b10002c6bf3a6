package controller

import (
	"ai-memory-chat-be/internal/dto"
	"ai-memory-chat-be/internal/pkg/logger"
	"ai-memory-chat-be/internal/pkg/serverutils"
	"ai-memory-chat-be/internal/service"
	internalWS "ai-memory-chat-be/internal/websocket"
	"ai-memory-chat-be/pkg/memory"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	GetAll(ctx *fiber.Ctx) error
	Create(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Update(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	Debug(ctx *fiber.Ctx) error
	ServeWs(ctx *fiber.Ctx) error
}

type chatController struct {
	service service.IChatService
	hub     *internalWS.Hub
	logger  logger.ILogger
}

func NewChatController(service service.IChatService, hub *internalWS.Hub, log logger.ILogger) IChatController {
	return &chatController{service: service, hub: hub, logger: log}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chats")
	h.Get("", c.GetAll)
	h.Post("", c.Create)
	h.Get(":id", c.Show)
	h.Put(":id", c.Update)
	h.Delete(":id", c.Delete)
	h.Post(":id/messages", c.SendMessage)
	h.Get(":id/debug", c.Debug)
	h.Get(":id/ws", c.ServeWs)
}

// ownerFromCtx reads the keys set by serverutils.IdentityMiddleware.
func ownerFromCtx(ctx *fiber.Ctx) memory.Owner {
	return memory.Owner{
		UserKey:    serverutils.UserKey(ctx),
		SessionKey: serverutils.SessionKey(ctx),
	}
}

// chatIDParam treats a malformed id like an unknown chat.
func chatIDParam(ctx *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, service.ErrChatNotFound
	}
	return id, nil
}

func parseBody(ctx *fiber.Ctx, out interface{}) error {
	if len(ctx.Body()) == 0 {
		return nil
	}
	if err := ctx.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return nil
}

func (c *chatController) GetAll(ctx *fiber.Ctx) error {
	res, err := c.service.ListChats(ctx.UserContext())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get all chats", res))
}

func (c *chatController) Create(ctx *fiber.Ctx) error {
	var req dto.CreateChatRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.CreateChat(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.Response[*dto.ChatResponse]{
		Success: true,
		Code:    fiber.StatusCreated,
		Message: "Success create chat",
		Data:    res,
	})
}

func (c *chatController) Show(ctx *fiber.Ctx) error {
	id, err := chatIDParam(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.GetChat(ctx.UserContext(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show chat", res))
}

func (c *chatController) Update(ctx *fiber.Ctx) error {
	id, err := chatIDParam(ctx)
	if err != nil {
		return err
	}

	var req dto.UpdateChatRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.UpdateChat(ctx.UserContext(), id, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update chat", res))
}

func (c *chatController) Delete(ctx *fiber.Ctx) error {
	id, err := chatIDParam(ctx)
	if err != nil {
		return err
	}

	if err := c.service.DeleteChat(ctx.UserContext(), id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete chat", nil))
}

func (c *chatController) SendMessage(ctx *fiber.Ctx) error {
	id, err := chatIDParam(ctx)
	if err != nil {
		return err
	}

	var req dto.SendMessageRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	showDebug := ctx.QueryBool("show_memory_response", false)
	res, err := c.service.SendMessage(ctx.UserContext(), ownerFromCtx(ctx), id, &req, showDebug)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success send message", res))
}

func (c *chatController) Debug(ctx *fiber.Ctx) error {
	id, err := chatIDParam(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.GetDebugInfo(ctx.UserContext(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get debug info", res))
}

// ServeWs upgrades to a websocket that receives message.created frames for
// the chat.
func (c *chatController) ServeWs(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}

	id, err := chatIDParam(ctx)
	if err != nil {
		return err
	}
	if _, err := c.service.GetChat(ctx.UserContext(), id); err != nil {
		return err
	}

	return websocket.New(func(conn *websocket.Conn) {
		c.logger.Info("ChatController", "Starting WebSocket session", map[string]interface{}{"chat_id": id})
		internalWS.ServeWs(c.hub, conn, id)
		c.logger.Info("ChatController", "WebSocket session ended", map[string]interface{}{"chat_id": id})
	})(ctx)
}
