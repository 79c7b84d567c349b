package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("tenant: not found")

const (
	DefaultDisplayName = "Unknown Business"
	DefaultAIModel     = "gpt-4o-mini-realtime-preview"
	DefaultVoiceID     = "alloy"
)

// Resolver looks up a tenant profile. It never mutates the store.
// ErrNotFound is the normal outcome for unknown ids and must not be retried.
type Resolver interface {
	Resolve(ctx context.Context, tenantID string) (Profile, error)
}

// Profile is the per-call view of a tenant. Immutable once resolved.
type Profile struct {
	TenantID    string  `json:"tenant_id"`
	DisplayName string  `json:"display_name"`
	Contact     Contact `json:"contact"`

	// ScheduleFacts and CatalogFacts are passed verbatim into the AI persona.
	ScheduleFacts json.RawMessage `json:"schedule_facts"`
	CatalogFacts  json.RawMessage `json:"catalog_facts"`

	AIModel string `json:"ai_model"`
	VoiceID string `json:"voice_id"`
}

type Contact struct {
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// WithDefaults fills every optional field that is empty.
func (p Profile) WithDefaults() Profile {
	if strings.TrimSpace(p.DisplayName) == "" {
		p.DisplayName = DefaultDisplayName
	}
	if len(p.ScheduleFacts) == 0 || string(p.ScheduleFacts) == "null" {
		p.ScheduleFacts = json.RawMessage(`{}`)
	}
	if len(p.CatalogFacts) == 0 || string(p.CatalogFacts) == "null" {
		p.CatalogFacts = json.RawMessage(`[]`)
	}
	if p.AIModel == "" {
		p.AIModel = DefaultAIModel
	}
	if p.VoiceID == "" {
		p.VoiceID = DefaultVoiceID
	}
	return p
}

// ProfileFromDocument maps a stored tenant document onto a Profile.
// Documents were written by several generations of the dashboard, so both
// snake_case and camelCase keys are accepted; the first non-empty key wins.
func ProfileFromDocument(tenantID string, doc []byte) (Profile, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return Profile{}, fmt.Errorf("tenant: decode document %s: %w", tenantID, err)
	}

	p := Profile{
		TenantID:    tenantID,
		DisplayName: firstString(fields, "name", "displayName", "display_name"),
		Contact: Contact{
			Phone:   firstString(fields, "phone"),
			Email:   firstString(fields, "email"),
			Address: firstString(fields, "location", "address"),
		},
		ScheduleFacts: firstRaw(fields, "business_hours", "businessHours"),
		CatalogFacts:  firstRaw(fields, "menu_items", "menuItems", "catalog"),
		AIModel:       firstString(fields, "aiModel", "ai_model"),
		VoiceID:       firstString(fields, "voiceName", "voice_name", "voiceId"),
	}
	return p.WithDefaults(), nil
}

func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func firstRaw(fields map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok || len(raw) == 0 || string(raw) == "null" {
			continue
		}
		return raw
	}
	return nil
}
