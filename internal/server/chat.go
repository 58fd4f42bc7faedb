package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avrahamavi/docuquery/internal/qa"
)

// answerer is the orchestrator slice the chat endpoint depends on.
type answerer interface {
	Answer(ctx context.Context, question, toolName string) (qa.Response, error)
}

// ChatHandler exposes the question-answering API.
type ChatHandler struct {
	Service answerer
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("/chat", h.chat)
}

type chatRequest struct {
	Question string `json:"question"`
	ToolName string `json:"tool_name"`
}

func (h *ChatHandler) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Question == "" || req.ToolName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing question or tool_name")
	}
	resp, err := h.Service.Answer(c.Request().Context(), req.Question, req.ToolName)
	if err != nil {
		if errors.Is(err, qa.ErrBadRequest) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}
