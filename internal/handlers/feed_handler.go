package handlers

import (
	"errors"
	"strings"

	feedws "github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/internal/websocket"
	"github.com/glossyaggie/rork-hot-temple-wellness-website-sub000/pkg/utils"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type FeedHandler struct {
	hub       *feedws.Hub
	jwtSecret string
}

func NewFeedHandler(hub *feedws.Hub, jwtSecret string) *FeedHandler {
	return &FeedHandler{
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}

// WebSocketAuth accepts the token as ?token= because browsers cannot set headers
// on a websocket handshake.
func (h *FeedHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "websocket_upgrade_required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return notAuthenticated(c)
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *FeedHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	client := feedws.NewClient(h.hub, conn, userID)

	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump()
}

func (h *FeedHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		tokenString, _ = utils.BearerToken(c.Get(fiber.HeaderAuthorization))
	}
	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}
