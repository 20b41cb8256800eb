package controller

import (
	"github.com/gofiber/fiber/v2"

	"loan-intake-be/internal/dto"
	"loan-intake-be/internal/pkg/serverutils"
	"loan-intake-be/internal/service"
)

type IIntakeController interface {
	RegisterRoutes(r fiber.Router)
	CreateSession(ctx *fiber.Ctx) error
	Turn(ctx *fiber.Ctx) error
	Heartbeat(ctx *fiber.Ctx) error
	Cancel(ctx *fiber.Ctx) error
}

type intakeController struct {
	intakeService service.IIntakeService
}

func NewIntakeController(intakeService service.IIntakeService) IIntakeController {
	return &intakeController{
		intakeService: intakeService,
	}
}

func (c *intakeController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/intake/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("session", c.CreateSession)
	h.Post("turn", c.Turn)
	h.Post("heartbeat", c.Heartbeat)
	h.Delete("session/:id", c.Cancel)
}

func (c *intakeController) CreateSession(ctx *fiber.Ctx) error {
	res, err := c.intakeService.CreateSession(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session created", res))
}

func (c *intakeController) Turn(ctx *fiber.Ctx) error {
	var req dto.TurnRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.intakeService.Turn(ctx.Context(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Turn processed", res))
}

func (c *intakeController) Heartbeat(ctx *fiber.Ctx) error {
	var req dto.HeartbeatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.intakeService.Heartbeat(ctx.Context(), req.SessionId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session extended", res))
}

func (c *intakeController) Cancel(ctx *fiber.Ctx) error {
	id := ctx.Params("id")
	if err := c.intakeService.Cancel(ctx.Context(), id); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session cancelled", nil))
}
