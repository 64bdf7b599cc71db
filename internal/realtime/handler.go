package realtime

import (
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// UpgradeMiddleware gates /ws: only websocket upgrade requests from an
// allow-listed origin pass through. Requests without an Origin header
// (curl, native apps) are accepted, matching the CORS policy of the REST
// surface.
func UpgradeMiddleware(allowedOrigins []string) fiber.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSpace(o)] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if origin := c.Get("Origin"); origin != "" {
			if _, ok := allowed[origin]; !ok {
				return fiber.ErrForbidden
			}
		}
		return c.Next()
	}
}

// Handler upgrades the connection and parks it on the hub. The channel is
// server-to-client only; inbound frames are drained and ignored.
func Handler(hub *Hub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		s := hub.Attach(c)
		defer hub.Detach(s)

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
}
