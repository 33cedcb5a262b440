// Package classifier turns failed wallet responses into a short reason the
// buyer can act on.
package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/starsgate/golang_services/internal/fulfillment_service/domain"
)

// MaxMessageRunes bounds provider text passed through to the buyer.
const MaxMessageRunes = 200

var messages = map[domain.ErrorCategory]string{
	domain.CategoryRateLimited:           "The stars provider is rate limiting requests, please try again later.",
	domain.CategoryProviderUnavailable:   "The stars provider is temporarily unavailable.",
	domain.CategoryAuthorizationRequired: "The stars provider rejected our authorization.",
	domain.CategoryInvalidRecipient:      "Invalid Telegram username.",
	domain.CategoryQuantityBelowMinimum:  "The minimum purchase is 50 ⭐.",
	domain.CategoryInsufficientBalance:   "Insufficient funds on the seller wallet.",
	domain.CategoryWrongVersion:          "Wallet version mismatch on the seller side.",
	domain.CategoryRecipientNotFound:     "Telegram user not found.",
	domain.CategoryGeneric:               "Order processing error.",
}

type pattern struct {
	category domain.ErrorCategory
	needles  []string
}

var patterns = []pattern{
	{domain.CategoryInsufficientBalance, []string{"not enough funds", "not enough balance", "insufficient funds", "insufficient balance"}},
	{domain.CategoryWrongVersion, []string{"version mismatch", "wrong version", "invalid version", "wallet version", "unsupported version"}},
	{domain.CategoryRecipientNotFound, []string{"user not found", "username not found", "recipient not found", "no such user", "unknown user", "does not exist"}},
}

// Message returns the buyer-facing text for a category.
func Message(category domain.ErrorCategory) string {
	if m, ok := messages[category]; ok {
		return m
	}
	return messages[domain.CategoryGeneric]
}

// Classify maps a failed delivery response to a category. Status codes are
// checked before the body because malformed bodies accompany any status.
func Classify(status int, body string) domain.Classification {
	switch status {
	case http.StatusTooManyRequests:
		return of(domain.CategoryRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return of(domain.CategoryProviderUnavailable)
	case http.StatusUnauthorized, http.StatusForbidden:
		return of(domain.CategoryAuthorizationRequired)
	}

	trimmed := strings.TrimSpace(body)
	var decoded any
	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.UseNumber()
	if trimmed == "" || dec.Decode(&decoded) != nil {
		if c, ok := matchKnown(trimmed); ok {
			return c
		}
		return of(domain.CategoryGeneric)
	}

	switch t := decoded.(type) {
	case map[string]any:
		return classifyMapping(t)
	case []any:
		if text := joinFirst(t, 3); text != "" {
			return domain.Classification{Category: domain.CategoryProviderMessage, Message: truncate(text)}
		}
	}
	return of(domain.CategoryGeneric)
}

func classifyMapping(m map[string]any) domain.Classification {
	if _, ok := m["username"]; ok {
		return of(domain.CategoryInvalidRecipient)
	}
	if _, ok := m["quantity"]; ok {
		return of(domain.CategoryQuantityBelowMinimum)
	}
	for _, key := range []string{"message", "detail", "error"} {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return passThrough(s)
		}
	}
	if list, ok := m["errors"].([]any); ok {
		msgs := make([]string, 0, 3)
		for _, item := range list {
			if len(msgs) == 3 {
				break
			}
			if s := entryMessage(item); s != "" {
				msgs = append(msgs, s)
			}
		}
		if len(msgs) > 0 {
			return passThrough(strings.Join(msgs, " | "))
		}
	}
	return of(domain.CategoryGeneric)
}

func passThrough(text string) domain.Classification {
	if c, ok := matchKnown(text); ok {
		return c
	}
	return domain.Classification{Category: domain.CategoryProviderMessage, Message: truncate(text)}
}

func matchKnown(text string) (domain.Classification, bool) {
	lower := strings.ToLower(text)
	if lower == "" {
		return domain.Classification{}, false
	}
	for _, p := range patterns {
		for _, n := range p.needles {
			if strings.Contains(lower, n) {
				return of(p.category), true
			}
		}
	}
	return domain.Classification{}, false
}

func entryMessage(item any) string {
	switch t := item.(type) {
	case string:
		return t
	case map[string]any:
		for _, key := range []string{"error", "message", "detail"} {
			if s, ok := t[key].(string); ok && s != "" {
				return s
			}
		}
		b, _ := json.Marshal(t)
		return string(b)
	}
	return ""
}

func joinFirst(list []any, n int) string {
	parts := make([]string, 0, n)
	for i, item := range list {
		if i == n {
			break
		}
		if s, ok := item.(string); ok {
			parts = append(parts, s)
			continue
		}
		b, err := json.Marshal(item)
		if err != nil {
			parts = append(parts, fmt.Sprint(item))
			continue
		}
		parts = append(parts, string(b))
	}
	return strings.Join(parts, " | ")
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxMessageRunes {
		return s
	}
	return string(r[:MaxMessageRunes])
}

func of(c domain.ErrorCategory) domain.Classification {
	return domain.Classification{Category: c, Message: Message(c)}
}
