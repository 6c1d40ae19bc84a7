package routers

import (
	"github.com/go-chi/chi/v5"

	"github.com/digitalequity/seasure-sp2/internal/handlers"
	hub_handler "github.com/digitalequity/seasure-sp2/internal/handlers/hub-handler"
	"github.com/digitalequity/seasure-sp2/internal/middleware"
	"github.com/digitalequity/seasure-sp2/internal/websocket"
)

func HubRouter(r chi.Router, hubHandler *hub_handler.HubHandler, gateway *websocket.Gateway) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", hubHandler.HandleHealth)
		r.Get("/stats", handlers.WrapHandler(hubHandler.HandleGetStats))

		r.Route("/users/{userId}", func(r chi.Router) {
			r.Get("/status", handlers.WrapHandler(hubHandler.HandleGetUserStatus))
		})

		r.Group(func(ws chi.Router) {
			ws.Use(middleware.WithIdentity)
			ws.Get("/ws/rooms/{roomId}", gateway.HandleWS)
		})
	})
}
