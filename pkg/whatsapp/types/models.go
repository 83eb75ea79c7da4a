package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OutboundMessage is the body posted to /{phone-number-id}/messages.
type OutboundMessage struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type,omitempty"`
	To               string           `json:"to"`
	Type             MessageKind      `json:"type"`
	Text             *TextPayload     `json:"text,omitempty"`
	Template         *TemplatePayload `json:"template,omitempty"`
}

type TextPayload struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type TemplatePayload struct {
	Name       string              `json:"name"`
	Language   TemplateLanguage    `json:"language"`
	Components []TemplateComponent `json:"components,omitempty"`
}

type TemplateLanguage struct {
	Code string `json:"code"`
}

// TemplateComponent is either a body component (positional placeholders) or a
// button component (sub_type + index). The two are not interchangeable.
type TemplateComponent struct {
	Type       string              `json:"type"`
	SubType    string              `json:"sub_type,omitempty"`
	Index      string              `json:"index,omitempty"`
	Parameters []TemplateParameter `json:"parameters,omitempty"`
}

type TemplateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ReadReceipt marks an inbound message as read.
type ReadReceipt struct {
	MessagingProduct string `json:"messaging_product"`
	Status           string `json:"status"`
	MessageID        string `json:"message_id"`
}

// SendMessageResponse is the synchronous accept response of the send endpoint.
type SendMessageResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns messages[0].id or an empty string.
func (r *SendMessageResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// StatusResponse is returned by the mark-read call.
type StatusResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the Graph API error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode,omitempty"`
	FbtraceID    string `json:"fbtrace_id,omitempty"`
}

// AccessTokenResponse is returned by both the OAuth app-token call and the
// system-user token exchange.
type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// DebugTokenResponse is the token introspection payload.
type DebugTokenResponse struct {
	Data DebugTokenData `json:"data"`
}

type DebugTokenData struct {
	AppID       string   `json:"app_id"`
	Type        string   `json:"type"`
	Application string   `json:"application"`
	ExpiresAt   int64    `json:"expires_at"`
	IsValid     bool     `json:"is_valid"`
	IssuedAt    int64    `json:"issued_at,omitempty"`
	Scopes      []string `json:"scopes"`
	UserID      string   `json:"user_id,omitempty"`
}

// UnixTime decodes the provider's epoch-seconds timestamps, which arrive as
// either JSON strings or numbers.
type UnixTime struct {
	time.Time
}

func (t *UnixTime) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid unix timestamp %q: %w", raw, err)
	}
	t.Time = time.Unix(secs, 0).UTC()
	return nil
}

func (t UnixTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(t.Unix(), 10))
}

// WebhookEnvelope is the top-level callback body.
type WebhookEnvelope struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange keeps its value raw so that each field kind is decoded into
// its own shape and a malformed sibling cannot poison the rest.
type WebhookChange struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// Kind returns the closed-enum form of Field.
func (c WebhookChange) Kind() ChangeField {
	return ParseChangeField(c.Field)
}

// MessagesValue is change.value for field=messages.
type MessagesValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         ValueMetadata    `json:"metadata"`
	Contacts         []WebhookContact `json:"contacts,omitempty"`
	Messages         []InboundMessage `json:"messages,omitempty"`
	Statuses         []StatusUpdate   `json:"statuses,omitempty"`
}

type ValueMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type WebhookContact struct {
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
	WaID string `json:"wa_id"`
}

// ContactName returns the profile name for the contact whose wa_id matches from.
func (v *MessagesValue) ContactName(from string) string {
	for _, c := range v.Contacts {
		if c.WaID == from {
			return c.Profile.Name
		}
	}
	return ""
}

// DecodeMessagesValue decodes a messages change one array element at a time.
// A contact, message or status that fails to decode is left out of value and
// reported in skipped, so one bad entry does not hide its siblings. err is set
// only when raw is not a messages value at all.
func DecodeMessagesValue(raw []byte) (value *MessagesValue, skipped []error, err error) {
	var envelope struct {
		MessagingProduct string            `json:"messaging_product"`
		Metadata         ValueMetadata     `json:"metadata"`
		Contacts         []json.RawMessage `json:"contacts,omitempty"`
		Messages         []json.RawMessage `json:"messages,omitempty"`
		Statuses         []json.RawMessage `json:"statuses,omitempty"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, nil, err
	}

	value = &MessagesValue{
		MessagingProduct: envelope.MessagingProduct,
		Metadata:         envelope.Metadata,
	}
	value.Contacts, skipped = decodeEach[WebhookContact]("contacts", envelope.Contacts, skipped)
	value.Messages, skipped = decodeEach[InboundMessage]("messages", envelope.Messages, skipped)
	value.Statuses, skipped = decodeEach[StatusUpdate]("statuses", envelope.Statuses, skipped)
	return value, skipped, nil
}

func decodeEach[T any](field string, items []json.RawMessage, skipped []error) ([]T, []error) {
	out := make([]T, 0, len(items))
	for i, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			skipped = append(skipped, fmt.Errorf("%s[%d]: %w", field, i, err))
			continue
		}
		out = append(out, v)
	}
	return out, skipped
}

// TemplateStatusValue is change.value for field=message_template_status_update.
type TemplateStatusValue struct {
	Event                   string `json:"event"`
	MessageTemplateID       int64  `json:"message_template_id"`
	MessageTemplateName     string `json:"message_template_name"`
	MessageTemplateLanguage string `json:"message_template_language"`
	Reason                  string `json:"reason,omitempty"`
}

// StatusUpdate is a delivery receipt for an outbound message.
type StatusUpdate struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	Timestamp   UnixTime `json:"timestamp"`
	RecipientID string   `json:"recipient_id"`
	Errors      []struct {
		Code  int    `json:"code"`
		Title string `json:"title"`
	} `json:"errors,omitempty"`
}

// InboundMessage is one element of value.messages.
type InboundMessage struct {
	ID          string              `json:"id"`
	From        string              `json:"from"`
	Type        string              `json:"type"`
	Timestamp   UnixTime            `json:"timestamp"`
	Text        *InboundText        `json:"text,omitempty"`
	Image       *InboundMedia       `json:"image,omitempty"`
	Document    *InboundMedia       `json:"document,omitempty"`
	Audio       *InboundMedia       `json:"audio,omitempty"`
	Video       *InboundMedia       `json:"video,omitempty"`
	Interactive *InboundInteractive `json:"interactive,omitempty"`
	Button      *InboundButton      `json:"button,omitempty"`
}

// InboundButton is a tap on a quick-reply button of a template message.
type InboundButton struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

type InboundText struct {
	Body string `json:"body"`
}

type InboundMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Sha256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type InboundInteractive struct {
	Type        string `json:"type"`
	ButtonReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"button_reply,omitempty"`
	ListReply *struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description,omitempty"`
	} `json:"list_reply,omitempty"`
}

// Kind returns the closed-enum form of Type.
func (m *InboundMessage) Kind() MessageKind {
	return ParseMessageKind(m.Type)
}

// Body is the sealed union of per-kind payloads.
type Body interface {
	isBody()
}

type TextBody struct{ Text string }

type MediaBody struct {
	Kind    MessageKind
	MediaID string
	Mime    string
	Caption string
}

type InteractiveBody struct {
	ReplyType  string
	SelectedID string
	Title      string
}

type UnknownBody struct{ RawType string }

func (TextBody) isBody()        {}
func (MediaBody) isBody()       {}
func (InteractiveBody) isBody() {}
func (UnknownBody) isBody()     {}

// Body decodes the type-specific payload. A message whose declared type has no
// matching payload is an error.
func (m *InboundMessage) Body() (Body, error) {
	switch kind := m.Kind(); kind {
	case MessageKindText:
		if m.Text == nil {
			return nil, fmt.Errorf("text message %s has no text payload", m.ID)
		}
		return TextBody{Text: m.Text.Body}, nil
	case MessageKindImage, MessageKindDocument, MessageKindAudio, MessageKindVideo:
		media := m.media(kind)
		if media == nil {
			return nil, fmt.Errorf("%s message %s has no media payload", kind, m.ID)
		}
		return MediaBody{Kind: kind, MediaID: media.ID, Mime: media.MimeType, Caption: media.Caption}, nil
	case MessageKindInteractive:
		if m.Interactive == nil {
			return nil, fmt.Errorf("interactive message %s has no interactive payload", m.ID)
		}
		body := InteractiveBody{ReplyType: m.Interactive.Type}
		switch {
		case m.Interactive.ButtonReply != nil:
			body.SelectedID = m.Interactive.ButtonReply.ID
			body.Title = m.Interactive.ButtonReply.Title
		case m.Interactive.ListReply != nil:
			body.SelectedID = m.Interactive.ListReply.ID
			body.Title = m.Interactive.ListReply.Title
		}
		return body, nil
	case MessageKindButton:
		if m.Button == nil {
			return nil, fmt.Errorf("button message %s has no button payload", m.ID)
		}
		return InteractiveBody{ReplyType: string(MessageKindButton), SelectedID: m.Button.Payload, Title: m.Button.Text}, nil
	case MessageKindTemplate, MessageKindUnknown:
		return UnknownBody{RawType: m.Type}, nil
	}
	return UnknownBody{RawType: m.Type}, nil
}

func (m *InboundMessage) media(kind MessageKind) *InboundMedia {
	switch kind {
	case MessageKindImage:
		return m.Image
	case MessageKindDocument:
		return m.Document
	case MessageKindAudio:
		return m.Audio
	case MessageKindVideo:
		return m.Video
	}
	return nil
}
