package chat_dto

type OpenRoomRequest struct {
	SubjectType  string   `json:"subject_type" validate:"required,oneof=boat support request"`
	SubjectID    string   `json:"subject_id" validate:"required,min=1"`
	DisplayName  string   `json:"display_name" validate:"required,min=1"`
	Participants []string `json:"participants" validate:"required,min=1,dive,min=1"`
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"required,min=1"`
	ReplyTo string `json:"reply_to,omitempty"`
}

type AddParticipantRequest struct {
	UserID string `json:"user_id" validate:"required,min=1"`
}

type GetMessagesRequest struct {
	Limit  int    `json:"limit" validate:"omitempty,min=1,max=100"`
	Cursor string `json:"cursor,omitempty"`
}
