package chat

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/digitalequity/seasure-sp2/internal/entity"
	app_error "github.com/digitalequity/seasure-sp2/internal/errors"
	"github.com/digitalequity/seasure-sp2/internal/store"
)

// SessionState tracks the facade lifecycle: Idle until Open, Subscribed
// while the live feed runs, Unsubscribed after Close. Unsubscribed is
// terminal; a new room means a new Session.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionSubscribed
	SessionUnsubscribed
)

// Update is what the session pushes to its consumer on every change: the
// full chronological message window, the latest room snapshot and
// pagination/health signals. Consumers reconcile by wholesale replacement.
type Update struct {
	RoomID   string
	Room     *entity.ChatRoom
	Messages []entity.Message
	HasMore  bool
	// Degraded is set while the most recent backend operation failed with a
	// transient store error, so the UI can show a stale-data hint.
	Degraded bool
}

// Session binds the registry, pipeline and tracker to one active room for
// one user. The live subscription is the single source of truth for what is
// displayed: a locally sent message only appears once the feed delivers it.
type Session struct {
	registry *Registry
	pipeline *Pipeline
	tracker  *Tracker

	mu         sync.Mutex
	state      SessionState
	roomID     string
	userID     string
	userName   string
	onUpdate   func(Update)
	cancelMsgs store.CancelFunc
	cancelRoom store.CancelFunc

	live     []entity.Message // authoritative window from the subscription
	older    []entity.Message // pages scrolled in via LoadMore
	room     *entity.ChatRoom
	cursor   string
	hasMore  bool
	degraded bool
	loading  bool
}

func NewSession(registry *Registry, pipeline *Pipeline, tracker *Tracker) *Session {
	return &Session{registry: registry, pipeline: pipeline, tracker: tracker}
}

// Open subscribes to the room's live feed and issues the initial page
// fetch. onUpdate fires at least once before Open returns.
func (s *Session) Open(ctx context.Context, roomID, userID, userName string, onUpdate func(Update)) *app_error.AppError {
	s.mu.Lock()
	if s.state != SessionIdle {
		s.mu.Unlock()
		return app_error.New(app_error.KindInvalidState, "session already opened", "")
	}
	s.mu.Unlock()

	room, appErr := s.registry.Get(ctx, roomID)
	if appErr != nil {
		return appErr
	}
	if !room.HasParticipant(userID) {
		return app_error.New(app_error.KindPermissionDenied, "user is not a participant of this room", "userId")
	}

	s.mu.Lock()
	s.state = SessionSubscribed
	s.roomID = roomID
	s.userID = userID
	s.userName = userName
	s.onUpdate = onUpdate
	s.room = room
	s.hasMore = true
	s.mu.Unlock()

	cancelMsgs, appErr := s.pipeline.Subscribe(ctx, roomID, func(msgs []entity.Message) {
		s.handleFeed(ctx, roomID, msgs)
	})
	if appErr != nil {
		s.mu.Lock()
		s.state = SessionUnsubscribed
		s.mu.Unlock()
		return appErr
	}

	cancelRoom, err := s.registry.rooms.SubscribeDoc(ctx, roomID, func(updated *entity.ChatRoom) {
		s.handleRoom(roomID, updated)
	})
	if err != nil {
		cancelMsgs()
		s.mu.Lock()
		s.state = SessionUnsubscribed
		s.mu.Unlock()
		return storeErr(err, "failed to watch chat room")
	}

	s.mu.Lock()
	if s.state != SessionSubscribed {
		// Closed while we were subscribing; release immediately.
		s.mu.Unlock()
		cancelMsgs()
		cancelRoom()
		return app_error.New(app_error.KindInvalidState, "session closed during open", "")
	}
	s.cancelMsgs = cancelMsgs
	s.cancelRoom = cancelRoom
	s.mu.Unlock()

	// Bootstrap the pagination cursor; the subscription already delivered
	// the current window. A failed Open must not leave the subscriptions
	// running, the caller owns no session to close.
	if appErr := s.LoadMore(ctx); appErr != nil {
		s.Close()
		return appErr
	}
	return nil
}

// Close tears the session down. Idempotent; safe to call while fetches or
// sends for this room are still in flight; their results get discarded.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == SessionUnsubscribed {
		s.mu.Unlock()
		return
	}
	s.state = SessionUnsubscribed
	cancelMsgs := s.cancelMsgs
	cancelRoom := s.cancelRoom
	s.cancelMsgs = nil
	s.cancelRoom = nil
	s.mu.Unlock()

	if cancelMsgs != nil {
		cancelMsgs()
	}
	if cancelRoom != nil {
		cancelRoom()
	}
}

// Send submits a text message to the active room.
func (s *Session) Send(ctx context.Context, content, replyTo string) (*entity.Message, *app_error.AppError) {
	roomID, userID, userName, appErr := s.active()
	if appErr != nil {
		return nil, appErr
	}
	msg, appErr := s.pipeline.Send(ctx, roomID, userID, userName, content, nil, replyTo)
	s.noteHealth(appErr)
	return msg, appErr
}

// SendFile uploads the attachment and submits the resulting file message.
func (s *Session) SendFile(ctx context.Context, file FileUpload) (*entity.Message, *app_error.AppError) {
	roomID, userID, userName, appErr := s.active()
	if appErr != nil {
		return nil, appErr
	}
	msg, appErr := s.pipeline.SendFile(ctx, roomID, userID, userName, file)
	s.noteHealth(appErr)
	return msg, appErr
}

// LoadMore fetches the next older page and prepends it to the window.
// Serialized: a second call while one is in flight is a quiet no-op.
func (s *Session) LoadMore(ctx context.Context) *app_error.AppError {
	s.mu.Lock()
	if s.state != SessionSubscribed {
		s.mu.Unlock()
		return app_error.New(app_error.KindInvalidState, "session is not open", "")
	}
	if s.loading || !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	roomID := s.roomID
	cursor := s.cursor
	s.mu.Unlock()

	page, appErr := s.pipeline.FetchPage(ctx, roomID, defaultPageSize, cursor)

	s.mu.Lock()
	s.loading = false
	if s.state != SessionSubscribed || s.roomID != roomID {
		// Closed while the fetch was in flight; drop the result.
		s.mu.Unlock()
		return nil
	}
	if appErr != nil {
		s.degraded = true
		s.mu.Unlock()
		return appErr
	}
	s.degraded = false
	s.older = mergeMessages(s.older, page.Messages)
	s.cursor = page.NextCursor
	s.hasMore = page.NextCursor != ""
	s.emitLocked()
	s.mu.Unlock()
	return nil
}

// MarkAsRead resets the user's unread counter and stamps read receipts. The
// session also calls this automatically on every inbound feed update, since
// an open session means the user is looking at the conversation.
func (s *Session) MarkAsRead(ctx context.Context) *app_error.AppError {
	roomID, userID, _, appErr := s.active()
	if appErr != nil {
		return appErr
	}
	appErr = s.tracker.MarkRead(ctx, roomID, userID)
	s.noteHealth(appErr)
	return appErr
}

// State reports the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) active() (roomID, userID, userName string, appErr *app_error.AppError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionSubscribed {
		return "", "", "", app_error.New(app_error.KindInvalidState, "session is not open", "")
	}
	return s.roomID, s.userID, s.userName, nil
}

func (s *Session) noteHealth(appErr *app_error.AppError) {
	s.mu.Lock()
	s.degraded = appErr != nil && appErr.Kind == app_error.KindStoreUnavailable
	s.mu.Unlock()
}

// handleFeed is the live-subscription callback. The delivered set replaces
// the live window wholesale; a guard drops deliveries that raced Close.
func (s *Session) handleFeed(ctx context.Context, roomID string, msgs []entity.Message) {
	s.mu.Lock()
	if s.state != SessionSubscribed || s.roomID != roomID {
		s.mu.Unlock()
		return
	}
	s.live = msgs
	s.degraded = false
	userID := s.userID
	unread := unreadForUser(msgs, userID)
	s.emitLocked()
	s.mu.Unlock()

	if unread {
		go func() {
			if s.State() != SessionSubscribed {
				return
			}
			if appErr := s.tracker.MarkRead(ctx, roomID, userID); appErr != nil {
				log.Error().Err(appErr).Str("roomID", roomID).Str("userID", userID).Msg("chat: auto mark-read failed")
			}
		}()
	}
}

func (s *Session) handleRoom(roomID string, room *entity.ChatRoom) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionSubscribed || s.roomID != roomID {
		return
	}
	if room != nil {
		s.room = room
	}
	s.emitLocked()
}

// emitLocked pushes the merged window to the consumer. Callers hold s.mu,
// which keeps updates ordered.
func (s *Session) emitLocked() {
	if s.onUpdate == nil {
		return
	}
	s.onUpdate(Update{
		RoomID:   s.roomID,
		Room:     s.room,
		Messages: mergeMessages(s.older, s.live),
		HasMore:  s.hasMore,
		Degraded: s.degraded,
	})
}

// mergeMessages combines two windows into one chronological slice with no
// duplicates. Later sources win on id collisions, so the live feed's view
// of readBy supersedes a stale page.
func mergeMessages(a, b []entity.Message) []entity.Message {
	byID := make(map[string]entity.Message, len(a)+len(b))
	for _, m := range a {
		byID[m.ID] = m
	}
	for _, m := range b {
		byID[m.ID] = m
	}
	out := make([]entity.Message, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Before(&out[j])
	})
	return out
}

func unreadForUser(msgs []entity.Message, userID string) bool {
	for i := range msgs {
		if _, ok := msgs[i].ReadBy[userID]; !ok {
			return true
		}
	}
	return false
}
