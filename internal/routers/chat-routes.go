package routers

import (
	"github.com/go-chi/chi/v5"

	"github.com/digitalequity/seasure-sp2/internal/handlers"
	chat_handler "github.com/digitalequity/seasure-sp2/internal/handlers/chat-handler"
	"github.com/digitalequity/seasure-sp2/internal/middleware"
)

func ChatRouter(r chi.Router, h *chat_handler.ChatHandler) {
	r.Group(func(protected chi.Router) {
		protected.Use(middleware.WithIdentity)

		protected.Route("/api/v1/chat/rooms", func(rooms chi.Router) {
			rooms.Post("/", handlers.WrapHandler(h.OpenRoom))
			rooms.Get("/", handlers.WrapHandler(h.ListRooms))

			rooms.Route("/{roomId}", func(room chi.Router) {
				room.Get("/", handlers.WrapHandler(h.GetRoom))
				room.Delete("/", handlers.WrapHandler(h.ArchiveRoom))
				room.Post("/participants", handlers.WrapHandler(h.AddParticipant))
				room.Post("/messages", handlers.WrapHandler(h.SendMessage))
				room.Get("/messages", handlers.WrapHandler(h.GetMessages))
				room.Get("/messages/search", handlers.WrapHandler(h.SearchMessages))
				room.Post("/attachments", handlers.WrapHandler(h.SendAttachment))
				room.Patch("/read", handlers.WrapHandler(h.MarkRead))
			})
		})
	})
}
