package models

import (
	"errors"
	"strings"
	"time"
)

// ErrDuplicateMessage reports that a message id was already recorded.
var ErrDuplicateMessage = errors.New("message already recorded")

type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

type MessageType string

const (
	MessageTypeText        MessageType = "TEXT"
	MessageTypeImage       MessageType = "IMAGE"
	MessageTypeDocument    MessageType = "DOCUMENT"
	MessageTypeAudio       MessageType = "AUDIO"
	MessageTypeVideo       MessageType = "VIDEO"
	MessageTypeInteractive MessageType = "INTERACTIVE"
	MessageTypeTemplate    MessageType = "TEMPLATE"
)

type DeliveryStatus string

const (
	DeliveryStatusSent      DeliveryStatus = "SENT"
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
	DeliveryStatusRead      DeliveryStatus = "READ"
	DeliveryStatusFailed    DeliveryStatus = "FAILED"
)

// ParseDeliveryStatus maps a provider status string ("sent", "delivered",
// "read", "failed") to a DeliveryStatus.
func ParseDeliveryStatus(s string) (DeliveryStatus, bool) {
	switch status := DeliveryStatus(strings.ToUpper(s)); status {
	case DeliveryStatusSent, DeliveryStatusDelivered, DeliveryStatusRead, DeliveryStatusFailed:
		return status, true
	}
	return "", false
}

// Message is an append-only record of one inbound or outbound message.
type Message struct {
	ID             int64          `json:"id"`
	MessageID      string         `json:"messageId"`
	ConversationID int64          `json:"conversationId"`
	Direction      Direction      `json:"direction"`
	Type           MessageType    `json:"type"`
	Content        string         `json:"content"`
	TemplateName   string         `json:"templateName,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Status         DeliveryStatus `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// InboundRecord carries everything needed to persist one inbound message.
type InboundRecord struct {
	PhoneNumber string
	ContactName string
	MessageID   string
	Type        MessageType
	Content     string
	Timestamp   time.Time
}

// OutboundRecord carries everything needed to persist one accepted send.
type OutboundRecord struct {
	PhoneNumber  string
	MessageID    string
	Type         MessageType
	Content      string
	TemplateName string
	Timestamp    time.Time
}
