package types

// Graph API endpoint templates, relative to {base}/{version}.
const (
	EndpointMessages        = "/%s/messages"      // phone number id
	EndpointSystemUserToken = "/%s/access_tokens" // system user id
	EndpointOAuthToken      = "/oauth/access_token"
	EndpointDebugToken      = "/debug_token"
)

const (
	MessagingProduct    = "whatsapp"
	RecipientIndividual = "individual"
	ReadStatus          = "read"
)

// MessageKind is the closed set of inbound/outbound message types the gateway
// understands. Anything else the provider sends maps to MessageKindUnknown.
type MessageKind string

const (
	MessageKindText        MessageKind = "text"
	MessageKindImage       MessageKind = "image"
	MessageKindDocument    MessageKind = "document"
	MessageKindAudio       MessageKind = "audio"
	MessageKindVideo       MessageKind = "video"
	MessageKindInteractive MessageKind = "interactive"
	MessageKindButton      MessageKind = "button"
	MessageKindTemplate    MessageKind = "template"
	MessageKindUnknown     MessageKind = "unknown"
)

// ParseMessageKind maps a provider type string onto the closed enum.
func ParseMessageKind(s string) MessageKind {
	switch MessageKind(s) {
	case MessageKindText, MessageKindImage, MessageKindDocument, MessageKindAudio,
		MessageKindVideo, MessageKindInteractive, MessageKindButton, MessageKindTemplate:
		return MessageKind(s)
	default:
		return MessageKindUnknown
	}
}

// IsMedia reports whether the kind carries a media attachment.
func (k MessageKind) IsMedia() bool {
	switch k {
	case MessageKindImage, MessageKindDocument, MessageKindAudio, MessageKindVideo:
		return true
	}
	return false
}

// ChangeField identifies what a webhook change carries.
type ChangeField string

const (
	ChangeFieldMessages             ChangeField = "messages"
	ChangeFieldTemplateStatusUpdate ChangeField = "message_template_status_update"
	ChangeFieldUnknown              ChangeField = "unknown"
)

// ParseChangeField maps a webhook change.field onto the closed enum.
func ParseChangeField(s string) ChangeField {
	switch ChangeField(s) {
	case ChangeFieldMessages, ChangeFieldTemplateStatusUpdate:
		return ChangeField(s)
	default:
		return ChangeFieldUnknown
	}
}

// Template component and parameter kinds
const (
	ComponentBody    = "body"
	ComponentButton  = "button"
	ParameterText    = "text"
	ButtonSubTypeURL = "url"
)
