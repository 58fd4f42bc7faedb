package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avrahamavi/docuquery/internal/sharedchat"
)

// ShareHandler exposes shareable chat links backed by the flat-file store.
type ShareHandler struct {
	Chats *sharedchat.Store
}

func (h *ShareHandler) Register(g *echo.Group) {
	g.POST("/share", h.create)
	g.GET("/share/:chat_id", h.get)
}

type createShareResponse struct {
	Success bool   `json:"success"`
	ChatID  string `json:"chat_id"`
}

func (h *ShareHandler) create(c echo.Context) error {
	var chat sharedchat.Chat
	if err := c.Bind(&chat); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, err := h.Chats.Create(chat)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, createShareResponse{Success: true, ChatID: id})
}

func (h *ShareHandler) get(c echo.Context) error {
	chat, err := h.Chats.Get(c.Param("chat_id"))
	if err != nil {
		if errors.Is(err, sharedchat.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{"success": false, "error": "Chat not found"})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, chat)
}
