package controller

import (
	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"

	"loan-intake-be/internal/dto"
	"loan-intake-be/internal/entity"
	"loan-intake-be/internal/pkg/logger"
	"loan-intake-be/internal/pkg/serverutils"
	"loan-intake-be/internal/service"
	"loan-intake-be/internal/store"
	"loan-intake-be/internal/stream"
	"loan-intake-be/internal/websocket"
)

type IProcessingController interface {
	RegisterRoutes(r fiber.Router)
	Start(ctx *fiber.Ctx) error
	Snapshot(ctx *fiber.Ctx) error
}

type processingController struct {
	processingService service.IProcessingService
	sessions          *store.SessionStore
	events            *stream.Stream
	streamLogger      logger.ILogger
}

func NewProcessingController(
	processingService service.IProcessingService,
	sessions *store.SessionStore,
	events *stream.Stream,
	streamLogger logger.ILogger,
) IProcessingController {
	return &processingController{
		processingService: processingService,
		sessions:          sessions,
		events:            events,
		streamLogger:      streamLogger,
	}
}

func (c *processingController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/processing/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("start", c.Start)
	h.Get("session/:id", c.Snapshot)
	h.Get("stream/:id", c.upgradeGuard, fiberws.New(c.serveStream))
}

func (c *processingController) Start(ctx *fiber.Ctx) error {
	var req dto.StartProcessingRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, rejection, err := c.processingService.Start(ctx.Context(), req.SessionId)
	if err != nil {
		return err
	}
	if rejection != nil {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(serverutils.APIError{
			Message: "validation failed",
			Detail:  rejection,
		})
	}
	return ctx.JSON(serverutils.SuccessResponse("Processing started", res))
}

func (c *processingController) Snapshot(ctx *fiber.Ctx) error {
	res, err := c.processingService.Snapshot(ctx.Context(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session snapshot", res))
}

// upgradeGuard rejects stream attachment before the websocket handshake when
// the session does not exist or processing has not begun.
func (c *processingController) upgradeGuard(ctx *fiber.Ctx) error {
	if !fiberws.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}

	sess, err := c.sessions.Get(ctx.Params("id"))
	if err != nil {
		return err
	}
	switch sess.Phase {
	case entity.PhaseProcessing, entity.PhaseCompleted, entity.PhaseError:
		ctx.Locals("session_id", sess.Id.String())
		return ctx.Next()
	default:
		return ctx.Status(fiber.StatusConflict).JSON(serverutils.APIError{
			Message: "phase conflict",
			Detail:  fiber.Map{"current": sess.Phase, "expected": entity.PhaseProcessing},
		})
	}
}

func (c *processingController) serveStream(conn *fiberws.Conn) {
	sessionID, _ := conn.Locals("session_id").(string)
	if sessionID == "" {
		conn.Close()
		return
	}
	websocket.ServeStream(c.events, conn, sessionID, c.streamLogger)
}
