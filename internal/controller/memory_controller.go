package controller

import (
	"encoding/json"
	"io"

	"ai-memory-chat-be/internal/dto"
	"ai-memory-chat-be/internal/pkg/serverutils"
	"ai-memory-chat-be/internal/service"
	"ai-memory-chat-be/pkg/memory"

	"github.com/gofiber/fiber/v2"
)

type IMemoryController interface {
	RegisterRoutes(r fiber.Router)
	Index(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Search(ctx *fiber.Ctx) error
	Statistics(ctx *fiber.Ctx) error
	Export(ctx *fiber.Ctx) error
	Import(ctx *fiber.Ctx) error
	ClearSession(ctx *fiber.Ctx) error
	ClearUser(ctx *fiber.Ctx) error
}

type memoryController struct {
	service service.IMemoryService
}

func NewMemoryController(service service.IMemoryService) IMemoryController {
	return &memoryController{service: service}
}

func (c *memoryController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/memories")
	h.Get("", c.Index)
	h.Get("show", c.Show)
	h.Get("search", c.Search)
	h.Get("statistics", c.Statistics)
	h.Get("export", c.Export)
	h.Post("import", c.Import)
	h.Delete("clear_session", c.ClearSession)
	h.Delete("clear_user", c.ClearUser)
}

func (c *memoryController) Index(ctx *fiber.Ctx) error {
	res, err := c.service.GetMemories(ctx.UserContext(), ownerFromCtx(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get memories", res))
}

func (c *memoryController) Show(ctx *fiber.Ctx) error {
	res, err := c.service.GetStats(ctx.UserContext(), ownerFromCtx(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get memory stats", res))
}

func (c *memoryController) Search(ctx *fiber.Ctx) error {
	res, err := c.service.Search(ctx.UserContext(), ownerFromCtx(ctx), ctx.Query("q"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success search memories", res))
}

func (c *memoryController) Statistics(ctx *fiber.Ctx) error {
	res, err := c.service.Statistics(ctx.UserContext(), ownerFromCtx(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get memory statistics", res))
}

func (c *memoryController) Export(ctx *fiber.Ctx) error {
	res, err := c.service.Export(ctx.UserContext(), ownerFromCtx(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success export memories", res))
}

// Import accepts an export document either as the JSON body or as a
// multipart file in memory_file.
func (c *memoryController) Import(ctx *fiber.Ctx) error {
	var doc memory.Export
	if fh, err := ctx.FormFile("memory_file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return err
		}
		defer f.Close()
		if err := decodeJSON(f, &doc); err != nil {
			return serverutils.NewValidationError("memory_file", "must be a JSON export")
		}
	} else if err := ctx.BodyParser(&doc); err != nil {
		return serverutils.NewValidationError("body", "must be a JSON export")
	}

	res, err := c.service.Import(ctx.UserContext(), ownerFromCtx(ctx), &doc)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success import memories", res))
}

func (c *memoryController) ClearSession(ctx *fiber.Ctx) error {
	return c.clear(ctx, memory.ScopeSession, "Session memories cleared")
}

func (c *memoryController) ClearUser(ctx *fiber.Ctx) error {
	return c.clear(ctx, memory.ScopeUser, "User memories cleared")
}

func (c *memoryController) clear(ctx *fiber.Ctx, scope memory.Scope, message string) error {
	if err := c.service.Clear(ctx.UserContext(), ownerFromCtx(ctx), scope); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse(message, &dto.ClearMemoriesResponse{Scope: scope}))
}

func decodeJSON(r io.Reader, out interface{}) error {
	return json.NewDecoder(r).Decode(out)
}
