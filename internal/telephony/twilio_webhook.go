package telephony

import (
	"net/http"
	"strings"
	"time"

	"github.com/twilio/twilio-go/client"
)

// TwilioInboundForm captures the subset of voice webhook fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml
type TwilioInboundForm struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	Direction  string
	CallStatus string
	CallerName string
}

// ParseTwilioInboundCall reads the webhook form. It also returns the flat
// parameter map Twilio signs.
func ParseTwilioInboundCall(r *http.Request) (TwilioInboundForm, map[string]string, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioInboundForm{}, nil, err
	}
	f := TwilioInboundForm{
		CallSid:    strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid: strings.TrimSpace(r.PostFormValue("AccountSid")),
		From:       normalizePhone(r.PostFormValue("From")),
		To:         normalizePhone(r.PostFormValue("To")),
		Direction:  r.PostFormValue("Direction"),
		CallStatus: r.PostFormValue("CallStatus"),
		CallerName: r.PostFormValue("CallerName"),
	}

	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return f, params, nil
}

func normalizePhone(s string) string {
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return strings.TrimSpace(s)
}

func (f TwilioInboundForm) ToInboundCall(tenantID string, receivedAt time.Time) InboundCall {
	return InboundCall{
		TenantID:   tenantID,
		CallSid:    f.CallSid,
		AccountSid: f.AccountSid,
		From:       f.From,
		To:         f.To,
		ReceivedAt: receivedAt,
	}
}

// SignatureVerifier checks the X-Twilio-Signature header against the request.
type SignatureVerifier interface {
	Validate(url string, params map[string]string, signature string) bool
}

// NewTwilioSignatureVerifier returns the SDK validator bound to authToken.
func NewTwilioSignatureVerifier(authToken string) SignatureVerifier {
	v := client.NewRequestValidator(authToken)
	return &v
}
