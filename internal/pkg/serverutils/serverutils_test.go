package serverutils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ai-memory-chat-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: ErrorHandlerMiddleware(logger.NewNopLogger())})
}

func decode(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestIdentityMiddleware(t *testing.T) {
	app := newApp()
	app.Use(IdentityMiddleware)
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user": UserKey(c), "session": SessionKey(c)})
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(SessionHeader, "s-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	body := decode(t, resp.Body)
	assert.Equal(t, "s-1", body["session"])
	assert.Equal(t, "anonymous_s-1", body["user"])

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(UserHeader, "ana")
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "from-cookie"})
	resp, err = app.Test(req)
	require.NoError(t, err)
	body = decode(t, resp.Body)
	assert.Equal(t, "from-cookie", body["session"])
	assert.Equal(t, "ana", body["user"])

	resp, err = app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	body = decode(t, resp.Body)
	minted, _ := body["session"].(string)
	assert.NotEmpty(t, minted)
	assert.Contains(t, resp.Header.Get("Set-Cookie"), SessionCookie+"="+minted)
}

func TestErrorHandlerMapsErrors(t *testing.T) {
	app := newApp()
	app.Get("/validation", func(c *fiber.Ctx) error { return NewValidationError("content", "is required") })
	app.Get("/missing", func(c *fiber.Ctx) error { return &NotFoundError{Resource: "chat"} })
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusBadRequest, "bad body") })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("db down") })

	tests := []struct {
		path    string
		code    int
		message string
	}{
		{"/validation", 422, "Validation failed"},
		{"/missing", 404, "chat not found"},
		{"/fiber", 400, "bad body"},
		{"/boom", 500, "Internal server error"},
	}
	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
		require.NoError(t, err)
		assert.Equal(t, tt.code, resp.StatusCode, tt.path)
		body := decode(t, resp.Body)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, tt.message, body["message"])
	}
}

func TestValidateRequest(t *testing.T) {
	type req struct {
		Content string `validate:"required"`
		Title   string `validate:"max=3"`
	}

	assert.NoError(t, ValidateRequest(req{Content: "hi"}))

	err := ValidateRequest(req{Title: "too long"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "is required", verr.Fields["content"])
	assert.True(t, strings.HasPrefix(verr.Fields["title"], "must be at most 3"))
}
