// Package model defines data structures for the tutoring platform.
package model

import (
	"time"
)

// Conversation represents a conversation thread owned by one client.
type Conversation struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	Title string `json:"title,omitempty"`
}

// ConversationListItem is a conversation summary for list responses.
type ConversationListItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Preview   string    `json:"preview,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []ConversationListItem `json:"conversations"`
	Total         int                    `json:"total"`
}

// ConversationDetailResponse is a conversation with its messages, oldest first.
type ConversationDetailResponse struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
}
