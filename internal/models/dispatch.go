package models

// SendMode is the outbound path chosen by the dispatcher.
type SendMode string

const (
	SendModeText     SendMode = "text"
	SendModeTemplate SendMode = "template"
)

// DispatchResult describes an accepted outbound message.
type DispatchResult struct {
	MessageID    string   `json:"message_id"`
	To           string   `json:"to"`
	Mode         SendMode `json:"mode"`
	TemplateName string   `json:"template_name,omitempty"`
}
