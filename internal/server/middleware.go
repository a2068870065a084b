package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/Blackhoodiez/sipcoin/internal/common"
)

const (
	headerRequestID = "X-Request-ID"

	// headerUserID carries the authenticated user identity, injected by the
	// auth layer in front of this service. Authentication itself is out of
	// scope here; an absent or malformed header is simply unauthorized.
	headerUserID = "X-User-ID"

	localUserID = "user_id"
)

// RequestID assigns each request an ID and threads it through the context
// for log correlation.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(headerRequestID, rid)
		c.SetUserContext(common.WithRequestID(c.UserContext(), rid))
		return c.Next()
	}
}

// RequireUser extracts the user identity or rejects the request.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get(headerUserID)
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}
		c.Locals(localUserID, userID)
		c.SetUserContext(common.WithUserID(c.UserContext(), userID))
		return c.Next()
	}
}

func userIDFrom(c *fiber.Ctx) uuid.UUID {
	if id, ok := c.Locals(localUserID).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
