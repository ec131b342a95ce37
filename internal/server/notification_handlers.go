package server

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"docket/internal/middleware"
	"docket/internal/models"
)

// ListNotifications returns the caller's notifications, newest first
// @Summary List notifications
// @Tags notifications
// @Security BearerAuth
// @Produce json
// @Param unread query bool false "Only unread"
// @Param limit query int false "Max results (default 50, max 200)"
// @Success 200 {object} map[string]interface{}
// @Router /notifications [get]
func (s *Server) ListNotifications(c *fiber.Ctx) error {
	actor := actorFrom(c)
	list, err := s.notifications.List(c.UserContext(), actor, c.QueryBool("unread", false), c.QueryInt("limit", 0))
	if err != nil {
		return respondError(c, err)
	}
	unread, err := s.notifications.UnreadCount(c.UserContext(), actor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"notifications": list,
		"unread_count":  unread,
	})
}

// MarkNotificationRead acknowledges one notification
// @Summary Mark notification read
// @Tags notifications
// @Security BearerAuth
// @Param id path int true "Notification ID"
// @Success 204
// @Router /notifications/{id}/read [post]
func (s *Server) MarkNotificationRead(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.notifications.MarkRead(c.UserContext(), actorFrom(c), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// WebsocketHandler upgrades an authenticated request into a notification stream. The first frame
// carries the caller's unread count; later frames are notification events.
func (s *Server) WebsocketHandler() fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		uid, ok := conn.Locals("userID").(uint)
		if !ok {
			_ = conn.Close()
			return
		}
		actor, _ := conn.Locals("actor").(models.Actor)

		client, err := s.hub.Register(uid, conn)
		if err != nil {
			middleware.Logger.Warn("websocket: failed to register user", "user_id", uid, "error", err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}
		defer s.hub.UnregisterClient(client)

		if n, err := s.notifications.UnreadCount(context.Background(), actor); err == nil {
			if frame, err := json.Marshal(fiber.Map{"type": "unread_count", "payload": fiber.Map{"count": n}}); err == nil {
				client.TrySend(frame)
			}
		}

		go client.WritePump()
		client.ReadPump()
	})

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return models.RespondWithError(c, fiber.StatusUpgradeRequired,
				models.NewValidationError("WebSocket upgrade required"))
		}
		return upgrade(c)
	}
}
