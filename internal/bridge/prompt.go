package bridge

import (
	"fmt"
	"strings"

	"merxus-voice-bridge/internal/tenant"
)

// BuildInstructions renders the persona the AI adopts for a tenant.
// Schedule and catalog facts are embedded verbatim as JSON.
func BuildInstructions(p tenant.Profile) string {
	p = p.WithDefaults()

	var b strings.Builder
	fmt.Fprintf(&b, "You are the AI phone assistant for %s.\n", p.DisplayName)
	fmt.Fprintf(&b, "Location: %s.\n", orNotSpecified(p.Contact.Address))
	fmt.Fprintf(&b, "Business phone: %s.\n", orNotSpecified(p.Contact.Phone))
	fmt.Fprintf(&b, "Contact email: %s.\n\n", orNotSpecified(p.Contact.Email))
	fmt.Fprintf(&b, "Business hours (JSON): %s.\n", p.ScheduleFacts)
	fmt.Fprintf(&b, "Offerings (JSON): %s.\n\n", p.CatalogFacts)
	b.WriteString("Behaviors:\n")
	fmt.Fprintf(&b, "- Greet callers as the real host or receptionist of %s.\n", p.DisplayName)
	b.WriteString("- Answer questions about hours, location, and the offerings listed above.\n")
	b.WriteString("- Help callers decide based on their preferences.\n")
	b.WriteString("- Be concise, friendly, and professional.\n")
	b.WriteString("- If you cannot handle a request, such as a complex complaint, politely say a staff member will follow up.\n")
	return b.String()
}

func orNotSpecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Not specified"
	}
	return s
}
