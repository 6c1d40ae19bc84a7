package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	chat_handler "github.com/digitalequity/seasure-sp2/internal/handlers/chat-handler"
	hub_handler "github.com/digitalequity/seasure-sp2/internal/handlers/hub-handler"
	"github.com/digitalequity/seasure-sp2/internal/middleware"
	"github.com/digitalequity/seasure-sp2/internal/websocket"
)

type Deps struct {
	Chat    *chat_handler.ChatHandler
	Hub     *hub_handler.HubHandler
	Gateway *websocket.Gateway
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.WithRequestId)
	ChatRouter(r, deps.Chat)
	HubRouter(r, deps.Hub, deps.Gateway)
	return r
}
