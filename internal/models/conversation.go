package models

import "time"

// Conversation is the per-contact session record. It is keyed by phone number
// and only ever upserted.
type Conversation struct {
	ID               int64     `json:"id"`
	PhoneNumber      string    `json:"phoneNumber"`
	ContactName      string    `json:"contactName,omitempty"`
	LastMessageAt    time.Time `json:"lastMessageAt"`
	IsActive         bool      `json:"isActive"`
	TemplateRequired bool      `json:"templateRequired"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
