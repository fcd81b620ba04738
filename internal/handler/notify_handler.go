package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/Group592024/petbooking-notifier/internal/domain"
	"github.com/Group592024/petbooking-notifier/internal/queue"
	"github.com/Group592024/petbooking-notifier/internal/service"
	"github.com/gofiber/fiber/v2"
)

// NotifierService is the send entry point the internal API exposes to the
// platform's other services.
type NotifierService interface {
	Send(ctx context.Context, req service.SendRequest) (*domain.Notification, queue.Result, error)
}

type NotifyHandler struct {
	service NotifierService
}

func NewNotifyHandler(service NotifierService) (*NotifyHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notifier service is required")
	}
	return &NotifyHandler{service: service}, nil
}

func RegisterNotifyRoutes(router fiber.Router, service NotifierService) error {
	h, err := NewNotifyHandler(service)
	if err != nil {
		return err
	}

	internal := router.Group("/internal/v1")
	internal.Post("/notifications", h.SendNotification)

	return nil
}

type sendNotificationRequest struct {
	NotiTypeID  string   `json:"notiTypeId"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	ReceiverIDs []string `json:"receiverIds"`
	WithEmail   bool     `json:"withEmail"`
}

type sendNotificationResponse struct {
	NotificationID string `json:"notificationId"`
	Flag           bool   `json:"flag"`
	Message        string `json:"message"`
	Published      int    `json:"published"`
}

func (h *NotifyHandler) SendNotification(c *fiber.Ctx) error {
	var req sendNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notification, result, err := h.service.Send(c.Context(), service.SendRequest{
		NotiTypeID:  req.NotiTypeID,
		Title:       req.Title,
		Content:     req.Content,
		ReceiverIDs: req.ReceiverIDs,
		WithEmail:   req.WithEmail,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	status := fiber.StatusAccepted
	if !result.Flag {
		// Stored but not published; the caller decides whether to replay.
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(sendNotificationResponse{
		NotificationID: notification.ID,
		Flag:           result.Flag,
		Message:        result.Message,
		Published:      result.Published,
	})
}
