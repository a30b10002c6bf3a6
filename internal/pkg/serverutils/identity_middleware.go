package serverutils

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	SessionHeader = "X-Session-Id"
	UserHeader    = "X-User-Id"
	SessionCookie = "session_id"

	localsSessionKey = "session_key"
	localsUserKey    = "user_key"
)

// IdentityMiddleware resolves the caller's memory owner keys. There is no
// authentication: the session comes from the header or cookie (minted when
// absent) and the user key falls back to anonymous_<session>.
func IdentityMiddleware(ctx *fiber.Ctx) error {
	session := strings.TrimSpace(ctx.Get(SessionHeader))
	if session == "" {
		session = strings.TrimSpace(ctx.Cookies(SessionCookie))
	}
	if session == "" {
		session = uuid.NewString()
		ctx.Cookie(&fiber.Cookie{
			Name:     SessionCookie,
			Value:    session,
			Path:     "/",
			HTTPOnly: true,
			SameSite: "Lax",
			Expires:  time.Now().Add(30 * 24 * time.Hour),
		})
	}

	user := strings.TrimSpace(ctx.Get(UserHeader))
	if user == "" {
		user = "anonymous_" + session
	}

	ctx.Locals(localsSessionKey, session)
	ctx.Locals(localsUserKey, user)
	return ctx.Next()
}

func SessionKey(ctx *fiber.Ctx) string {
	s, _ := ctx.Locals(localsSessionKey).(string)
	return s
}

func UserKey(ctx *fiber.Ctx) string {
	u, _ := ctx.Locals(localsUserKey).(string)
	return u
}
