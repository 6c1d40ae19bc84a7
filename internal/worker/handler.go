package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/digitalequity/seasure-sp2/internal/chat"
	"github.com/digitalequity/seasure-sp2/internal/push"
	"github.com/digitalequity/seasure-sp2/internal/queue"
)

// JobHandler dispatches queued chat jobs to their side effects.
type JobHandler struct {
	Push    *push.Client
	Tracker *chat.Tracker
}

func NewJobHandler(pushClient *push.Client, tracker *chat.Tracker) *JobHandler {
	return &JobHandler{Push: pushClient, Tracker: tracker}
}

func (h *JobHandler) Handle(ctx context.Context, job queue.Job) error {
	switch job.Type {
	case queue.JobTypeMessageNotify:
		return h.handleMessageNotify(ctx, job.Payload)
	case queue.JobTypeUnreadRetry:
		return h.handleUnreadRetry(ctx, job.Payload)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (h *JobHandler) handleMessageNotify(ctx context.Context, payload json.RawMessage) error {
	var p queue.MessageNotifyPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	if !h.Push.Enabled() {
		return nil
	}

	data := map[string]string{
		"room_id":    p.RoomID,
		"message_id": p.MessageID,
	}
	var failed int
	for _, userID := range p.Recipients {
		if userID == p.SenderID {
			continue
		}
		err := h.Push.Notify(ctx, push.NotifyRequest{
			UserID: userID,
			Title:  p.RoomName,
			Body:   fmt.Sprintf("%s: %s", p.SenderName, p.Preview),
			Data:   data,
		})
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Str("message_id", p.MessageID).Msg("push notify failed")
			failed++
		}
	}
	if failed == len(p.Recipients) && failed > 0 {
		return fmt.Errorf("push notify failed for all %d recipients", failed)
	}
	return nil
}

func (h *JobHandler) handleUnreadRetry(ctx context.Context, payload json.RawMessage) error {
	var p queue.UnreadRetryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	if appErr := h.Tracker.IncrementUnread(ctx, p.RoomID, p.UserID); appErr != nil {
		return appErr
	}
	return nil
}
