package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/dcampos/wagate/internal/domain"
)

// BatchSender schedules an outbound message batch.
type BatchSender interface {
	SendBatch(ctx context.Context, jobs []domain.SendJob) ([]domain.SendResult, error)
}

// PublicationRunner triggers a publication fetch run.
type PublicationRunner interface {
	Run(ctx context.Context) error
}

type MessageHandler struct {
	sender  BatchSender
	fetcher PublicationRunner
	session SessionStatus
}

func NewMessageHandler(sender BatchSender, fetcher PublicationRunner, session SessionStatus) (*MessageHandler, error) {
	if sender == nil {
		return nil, fmt.Errorf("batch sender is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("publication runner is required")
	}
	if session == nil {
		return nil, fmt.Errorf("session status is required")
	}
	return &MessageHandler{sender: sender, fetcher: fetcher, session: session}, nil
}

func RegisterMessageRoutes(router fiber.Router, sender BatchSender, fetcher PublicationRunner, session SessionStatus) error {
	h, err := NewMessageHandler(sender, fetcher, session)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/session", h.GetSession)
	v1.Post("/messages/batch", h.SendBatch)
	v1.Post("/publications/run", h.RunPublicationFetch)

	return nil
}

type sendBatchRequest struct {
	Messages []domain.SendJob `json:"messages"`
}

type sendBatchResponse struct {
	Total   int                 `json:"total"`
	Sent    int                 `json:"sent"`
	Failed  int                 `json:"failed"`
	Results []domain.SendResult `json:"results"`
}

type sessionResponse struct {
	State       string `json:"state"`
	PairingCode string `json:"pairingCode,omitempty"`
}

func (h *MessageHandler) GetSession(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(sessionResponse{
		State:       h.session.State().String(),
		PairingCode: h.session.PairingCode(),
	})
}

func (h *MessageHandler) SendBatch(c *fiber.Ctx) error {
	var req sendBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Messages) == 0 {
		return toHTTPError(fmt.Errorf("%w: messages is required", domain.ErrValidation))
	}

	results, err := h.sender.SendBatch(c.Context(), req.Messages)
	if err != nil {
		return toHTTPError(err)
	}

	sent := 0
	for _, result := range results {
		if result.Sent {
			sent++
		}
	}

	return c.Status(fiber.StatusOK).JSON(sendBatchResponse{
		Total:   len(results),
		Sent:    sent,
		Failed:  len(results) - sent,
		Results: results,
	})
}

// RunPublicationFetch triggers a fetch and waits for it; the response status
// reflects that the run already finished.
func (h *MessageHandler) RunPublicationFetch(c *fiber.Ctx) error {
	if err := h.fetcher.Run(c.Context()); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "completed",
	})
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrLoggedOut):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
