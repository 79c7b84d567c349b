package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"merxus-voice-bridge/internal/tenant"
	"merxus-voice-bridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

// StreamPath is where the carrier opens the media stream.
const StreamPath = "/twilio/stream"

// Correlation keys carried in the stream URL query and echoed as stream parameters.
const (
	ParamTenantID = "tenantId"
	ParamCallSid  = "callSid"
	ParamToken    = "token"
)

const signatureHeader = "X-Twilio-Signature"

// StreamTokenIssuer mints the correlation token embedded in the stream URL.
type StreamTokenIssuer interface {
	IssueStream(now time.Time, tenantID, callSid string) (string, error)
}

// InboundCallHandler answers the carrier's call-setup webhook with TwiML.
// It never touches the AI provider.
type InboundCallHandler struct {
	Resolver      tenant.Resolver
	ServiceDomain string

	// Tokens is optional; without it the stream URL carries no token.
	Tokens StreamTokenIssuer
	// Signatures is optional; when set, unsigned requests are rejected.
	Signatures SignatureVerifier

	Now func() time.Time
}

func (h InboundCallHandler) HandleInboundCall(c *gin.Context) {
	log := logger.FromGin(c)

	form, params, err := ParseTwilioInboundCall(c.Request)
	if err != nil {
		log.Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	if h.Signatures != nil {
		signed := "https://" + h.ServiceDomain + c.Request.URL.RequestURI()
		if !h.Signatures.Validate(signed, params, c.GetHeader(signatureHeader)) {
			log.Warn("twilio signature rejected", "call_sid", form.CallSid)
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
	}

	call := form.ToInboundCall(strings.TrimSpace(c.Param("tenant_id")), h.now())
	d := h.Handshake(c.Request.Context(), call)

	twiml, err := RenderTwiML(d)
	if err != nil {
		log.Error("twiml render failed", "err", err)
		twiml, _ = ApologyTwiML(MessageInternalError)
	}

	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(twiml))
}

// Handshake decides how to answer one inbound call. Tenant lookup failures
// produce an apology; they are never surfaced to the carrier as HTTP errors.
func (h InboundCallHandler) Handshake(ctx context.Context, call InboundCall) CallDirective {
	log := logger.From(ctx).With("tenant_id", call.TenantID, "call_sid", call.CallSid)

	if h.Resolver == nil {
		log.Error("tenant resolver not configured")
		return CallDirective{Action: DirectiveHangup, Apology: MessageInternalError}
	}

	profile, err := h.Resolver.Resolve(ctx, call.TenantID)
	switch {
	case errors.Is(err, tenant.ErrNotFound):
		log.Error("tenant not found")
		return CallDirective{Action: DirectiveHangup, Apology: MessageTenantUnavailable}
	case err != nil:
		log.Error("tenant lookup failed", "err", err)
		return CallDirective{Action: DirectiveHangup, Apology: MessageInternalError}
	}

	stream := map[string]string{ParamTenantID: profile.TenantID}
	if call.CallSid != "" {
		stream[ParamCallSid] = call.CallSid
	}
	if h.Tokens != nil {
		tok, err := h.Tokens.IssueStream(h.now(), profile.TenantID, call.CallSid)
		if err != nil {
			log.Error("stream token issue failed", "err", err)
			return CallDirective{Action: DirectiveHangup, Apology: MessageInternalError}
		}
		stream[ParamToken] = tok
	}

	log.Info("connecting inbound call", "display_name", profile.DisplayName)
	return CallDirective{
		Action:           DirectiveStream,
		Greeting:         "Connecting you to " + profile.DisplayName + ".",
		StreamURL:        StreamURL(h.ServiceDomain, stream),
		StreamParameters: stream,
		Apology:          MessageAssistantLost,
	}
}

func (h InboundCallHandler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// StreamURL builds wss://{domain}/twilio/stream?{params}.
func StreamURL(domain string, params map[string]string) string {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	u := url.URL{Scheme: "wss", Host: domain, Path: StreamPath, RawQuery: q.Encode()}
	return u.String()
}
