package integration_test

import (
	"encoding/json"
	"strconv"
	"time"
)

// Webhook payload builders shaped like real Cloud API callbacks.

func envelope(field string, value map[string]interface{}) []byte {
	payload := map[string]interface{}{
		"object": "whatsapp_business_account",
		"entry": []interface{}{
			map[string]interface{}{
				"id": "102290129340398",
				"changes": []interface{}{
					map[string]interface{}{"field": field, "value": value},
				},
			},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return data
}

func messagesValue(contacts, messages, statuses []interface{}) map[string]interface{} {
	value := map[string]interface{}{
		"messaging_product": "whatsapp",
		"metadata": map[string]interface{}{
			"display_phone_number": "15550783881",
			"phone_number_id":      testPhoneNumberID,
		},
	}
	if contacts != nil {
		value["contacts"] = contacts
	}
	if messages != nil {
		value["messages"] = messages
	}
	if statuses != nil {
		value["statuses"] = statuses
	}
	return value
}

func unix(ts time.Time) string {
	return strconv.FormatInt(ts.Unix(), 10)
}

// TextMessageWebhook is an inbound text message from a named contact.
func TextMessageWebhook(from, name, messageID, text string, ts time.Time) []byte {
	return envelope("messages", messagesValue(
		[]interface{}{map[string]interface{}{"profile": map[string]interface{}{"name": name}, "wa_id": from}},
		[]interface{}{map[string]interface{}{
			"from":      from,
			"id":        messageID,
			"timestamp": unix(ts),
			"type":      "text",
			"text":      map[string]interface{}{"body": text},
		}},
		nil,
	))
}

// ButtonReplyWebhook is an interactive button reply.
func ButtonReplyWebhook(from, messageID, buttonID, title string, ts time.Time) []byte {
	return envelope("messages", messagesValue(nil,
		[]interface{}{map[string]interface{}{
			"from":      from,
			"id":        messageID,
			"timestamp": unix(ts),
			"type":      "interactive",
			"interactive": map[string]interface{}{
				"type":         "button_reply",
				"button_reply": map[string]interface{}{"id": buttonID, "title": title},
			},
		}},
		nil,
	))
}

// StatusWebhook is a delivery receipt for an outbound message.
func StatusWebhook(messageID, recipient, status string, ts time.Time) []byte {
	return envelope("messages", messagesValue(nil, nil,
		[]interface{}{map[string]interface{}{
			"id":           messageID,
			"status":       status,
			"timestamp":    unix(ts),
			"recipient_id": recipient,
		}},
	))
}

// TemplateStatusWebhook is a template review outcome.
func TemplateStatusWebhook(name, event string) []byte {
	return envelope("message_template_status_update", map[string]interface{}{
		"event":                     event,
		"message_template_id":       594425479261596,
		"message_template_name":     name,
		"message_template_language": "en",
	})
}
