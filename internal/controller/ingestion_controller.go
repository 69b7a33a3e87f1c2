package controller

import (
	"llamatalks-be/internal/dto"
	"llamatalks-be/internal/entity"
	"llamatalks-be/internal/pkg/serverutils"
	"llamatalks-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IIngestionController interface {
	RegisterRoutes(r fiber.Router)
	Ingest(ctx *fiber.Ctx) error
	GetAll(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Cancel(ctx *fiber.Ctx) error
}

type ingestionController struct {
	service service.IIngestionService
}

func NewIngestionController(service service.IIngestionService) IIngestionController {
	return &ingestionController{service: service}
}

func (c *ingestionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/ingestion")
	h.Post("", c.Ingest)
	h.Get("", c.GetAll)
	h.Get("/:batchId", c.Show)
	h.Delete("/:batchId", c.Cancel)
}

// Ingest queues a batch and answers 202 without waiting for it.
func (c *ingestionController) Ingest(ctx *fiber.Ctx) error {
	var req dto.IngestRequest
	if err := ctx.QueryParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	handle, err := c.service.Ingest(ctx.UserContext(), req.FilePath)
	if err != nil {
		return err
	}

	res := serverutils.SuccessResponse("Ingestion started", &dto.IngestResponse{
		BatchId: handle.BatchId,
		Status:  string(entity.BatchStatusPending),
	})
	res.Code = fiber.StatusAccepted
	return ctx.Status(fiber.StatusAccepted).JSON(res)
}

func (c *ingestionController) GetAll(ctx *fiber.Ctx) error {
	res, err := c.service.ListIngestedFiles(ctx.UserContext())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get ingested files", res))
}

func (c *ingestionController) Show(ctx *fiber.Ctx) error {
	res, err := c.service.GetBatch(ctx.UserContext(), ctx.Params("batchId"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get batch", res))
}

func (c *ingestionController) Cancel(ctx *fiber.Ctx) error {
	res, err := c.service.CancelBatch(ctx.UserContext(), ctx.Params("batchId"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Cancellation requested", res))
}
