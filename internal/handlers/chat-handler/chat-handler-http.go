package chat_handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"github.com/digitalequity/seasure-sp2/internal/chat"
	"github.com/digitalequity/seasure-sp2/internal/dtos/chat_dto"
	"github.com/digitalequity/seasure-sp2/internal/entity"
	app_error "github.com/digitalequity/seasure-sp2/internal/errors"
	"github.com/digitalequity/seasure-sp2/internal/handlers"
	"github.com/digitalequity/seasure-sp2/internal/middleware"
	"github.com/digitalequity/seasure-sp2/internal/queue"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxUploadSize = 32 << 20 // 32 MB

type ChatHandler struct {
	Registry *chat.Registry
	Pipeline *chat.Pipeline
	Tracker  *chat.Tracker
	Producer queue.Producer
	Validate *validator.Validate
}

func NewChatHandler(registry *chat.Registry, pipeline *chat.Pipeline, tracker *chat.Tracker, producer queue.Producer) *ChatHandler {
	return &ChatHandler{
		Registry: registry,
		Pipeline: pipeline,
		Tracker:  tracker,
		Producer: producer,
		Validate: validator.New(),
	}
}

// OpenRoom returns the room for a subject, creating it on first contact.
func (h *ChatHandler) OpenRoom(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	var req chat_dto.OpenRoomRequest
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return app_error.NewAppError(http.StatusBadRequest, "Invalid JSON", "body")
	}
	if err := h.Validate.Struct(req); err != nil {
		return app_error.NewAppError(http.StatusBadRequest, fmt.Sprintf("Invalid fields: %v", err), "validation")
	}

	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		return app_error.NewAppError(http.StatusUnauthorized, "caller identity is not found in context", "context")
	}

	// The caller always ends up a participant of the room it opens.
	participants := append([]string{id.ID}, req.Participants...)
	room, appErr := h.Registry.GetOrCreate(r.Context(), entity.SubjectType(req.SubjectType), req.SubjectID, req.DisplayName, participants)
	if appErr != nil {
		return appErr
	}

	writeData(w, "room ready", chat_dto.FromRoom(room, id.ID), handlers.RequestID(r))
	return nil
}

// ListRooms returns the caller's active rooms, most recently touched first.
func (h *ChatHandler) ListRooms(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		return app_error.NewAppError(http.StatusUnauthorized, "caller identity is not found in context", "context")
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rooms, appErr := h.Registry.ListForUser(r.Context(), id.ID, limit)
	if appErr != nil {
		return appErr
	}

	out := make([]chat_dto.RoomResponse, 0, len(rooms))
	for i := range rooms {
		out = append(out, chat_dto.FromRoom(&rooms[i], id.ID))
	}
	writeData(w, "rooms fetched successfully", out, handlers.RequestID(r))
	return nil
}

func (h *ChatHandler) GetRoom(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	id, room, appErr := h.roomForCaller(r)
	if appErr != nil {
		return appErr
	}
	writeData(w, "room fetched successfully", chat_dto.FromRoom(room, id.ID), handlers.RequestID(r))
	return nil
}

func (h *ChatHandler) AddParticipant(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	var req chat_dto.AddParticipantRequest
	defer r.Body.Close()

	_, room, appErr := h.roomForCaller(r)
	if appErr != nil {
		return appErr
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return app_error.NewAppError(http.StatusBadRequest, "Invalid JSON", "body")
	}
	if err := h.Validate.Struct(req); err != nil {
		return app_error.NewAppError(http.StatusBadRequest, fmt.Sprintf("Invalid fields: %v", err), "validation")
	}

	if appErr := h.Registry.AddParticipant(r.Context(), room.ID, req.UserID); appErr != nil {
		return appErr
	}

	writeData(w, "participant added successfully", "OK", handlers.RequestID(r))
	return nil
}

// ArchiveRoom deactivates the room. Messages stay readable; sends into an
// archived room keep working, only listings hide it.
func (h *ChatHandler) ArchiveRoom(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	_, room, appErr := h.roomForCaller(r)
	if appErr != nil {
		return appErr
	}

	if appErr := h.Registry.Archive(r.Context(), room.ID); appErr != nil {
		return appErr
	}

	writeData(w, "room archived successfully", "OK", handlers.RequestID(r))
	return nil
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	var req chat_dto.SendMessageRequest
	defer r.Body.Close()

	roomID := chi.URLParam(r, "roomId")
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return app_error.NewAppError(http.StatusBadRequest, "Invalid JSON", "body")
	}
	if err := h.Validate.Struct(req); err != nil {
		return app_error.NewAppError(http.StatusBadRequest, fmt.Sprintf("Invalid fields: %v", err), "validation")
	}

	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		return app_error.NewAppError(http.StatusUnauthorized, "caller identity is not found in context", "context")
	}

	msg, appErr := h.Pipeline.Send(r.Context(), roomID, id.ID, id.Name, req.Content, nil, req.ReplyTo)
	if appErr != nil {
		return appErr
	}

	writeData(w, "message sent successfully", chat_dto.FromMessage(msg), handlers.RequestID(r))

	go h.enqueueNotify(msg)

	return nil
}

// SendAttachment accepts one multipart file under the "file" field and
// sends it as an attachment message.
func (h *ChatHandler) SendAttachment(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	roomID := chi.URLParam(r, "roomId")

	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		return app_error.NewAppError(http.StatusUnauthorized, "caller identity is not found in context", "context")
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return app_error.NewAppError(http.StatusBadRequest, fmt.Sprintf("Invalid multipart form: %v", err), "form")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return app_error.NewAppError(http.StatusBadRequest, "file field is required", "file")
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	msg, appErr := h.Pipeline.SendFile(r.Context(), roomID, id.ID, id.Name, chat.FileUpload{
		Name:     header.Filename,
		MimeType: mimeType,
		Size:     header.Size,
		Content:  file,
	})
	if appErr != nil {
		return appErr
	}

	writeData(w, "attachment sent successfully", chat_dto.FromMessage(msg), handlers.RequestID(r))

	go h.enqueueNotify(msg)

	return nil
}

// GetMessages serves one backward page: newest first, cursor for the next
// older page.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	_, room, appErr := h.roomForCaller(r)
	if appErr != nil {
		return appErr
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	cursor := r.URL.Query().Get("cursor")

	page, appErr := h.Pipeline.FetchPage(r.Context(), room.ID, limit, cursor)
	if appErr != nil {
		return appErr
	}

	resp := chat_dto.MessagePageResponse{
		Messages:   chat_dto.FromMessages(page.Messages),
		NextCursor: page.NextCursor,
	}
	writeData(w, "messages fetched successfully", resp, handlers.RequestID(r))
	return nil
}

// MarkRead zeroes the caller's unread counter and stamps every unseen
// message in the room.
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	id, room, appErr := h.roomForCaller(r)
	if appErr != nil {
		return appErr
	}

	if appErr := h.Tracker.MarkRead(r.Context(), room.ID, id.ID); appErr != nil {
		return appErr
	}

	writeData(w, "room marked as read successfully", "OK", handlers.RequestID(r))
	return nil
}

func (h *ChatHandler) SearchMessages(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	_, room, appErr := h.roomForCaller(r)
	if appErr != nil {
		return appErr
	}

	term := r.URL.Query().Get("q")
	msgs, appErr := h.Pipeline.Search(r.Context(), room.ID, term)
	if appErr != nil {
		return appErr
	}

	writeData(w, "messages searched successfully", chat_dto.FromMessages(msgs), handlers.RequestID(r))
	return nil
}

// roomForCaller loads the room from the URL and enforces membership.
func (h *ChatHandler) roomForCaller(r *http.Request) (middleware.Identity, *entity.ChatRoom, *app_error.AppError) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		return middleware.Identity{}, nil, app_error.NewAppError(http.StatusUnauthorized, "caller identity is not found in context", "context")
	}

	roomID := chi.URLParam(r, "roomId")
	room, appErr := h.Registry.Get(r.Context(), roomID)
	if appErr != nil {
		return id, nil, appErr
	}
	if !room.HasParticipant(id.ID) {
		return id, nil, app_error.New(app_error.KindPermissionDenied, "caller is not a participant of this room", "roomId")
	}
	return id, room, nil
}

// enqueueNotify schedules the push fan-out for a freshly sent message. The
// HTTP response never waits on it.
func (h *ChatHandler) enqueueNotify(msg *entity.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	room, appErr := h.Registry.Get(ctx, msg.ChatRoomID)
	if appErr != nil {
		log.Error().Err(appErr).Str("roomID", msg.ChatRoomID).Msg("chat: failed to load room for notify job")
		return
	}

	preview := msg.Content
	if preview == "" && len(msg.Attachments) > 0 {
		preview = msg.Attachments[0].Name
	}

	job := queue.NewJob(queue.JobTypeMessageNotify, queue.MessageNotifyPayload{
		RoomID:     room.ID,
		RoomName:   room.DisplayName,
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Preview:    preview,
		Recipients: room.Participants,
		SentAt:     msg.CreatedAt,
	}, 1, 3, time.Hour)

	if err := h.Producer.Enqueue(ctx, job); err != nil {
		log.Error().Err(err).Str("messageID", msg.ID).Msg("chat: failed to enqueue notify job")
	}
}

func writeData[T any](w http.ResponseWriter, message string, data T, reqID string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(handlers.CreateResponse(message, data, reqID))
}
