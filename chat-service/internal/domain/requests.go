package domain

// ListMessagesRequest binds the paged history query.
type ListMessagesRequest struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

// LatestMessagesRequest binds the latest-N query.
type LatestMessagesRequest struct {
	Limit int `form:"limit"`
}

// SendMessageRequest is the REST body for posting a message. Content is
// validated by the service so that empty content reports EMPTY_CONTENT.
type SendMessageRequest struct {
	Content     string `json:"content"`
	MessageType string `json:"messageType" binding:"omitempty,oneof=text file system"`
	FileURL     string `json:"fileUrl"`
	ReplyTo     string `json:"replyTo" binding:"omitempty,max=36"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

type AddReactionRequest struct {
	Emoji string `json:"emoji" binding:"required,max=32"`
}
