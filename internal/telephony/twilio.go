package telephony

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// callUpdater is the slice of the Twilio REST API used for live call control.
type callUpdater interface {
	UpdateCall(sid string, params *openapi.UpdateCallParams) (*openapi.ApiV2010Call, error)
}

// TwilioCallControl redirects live calls through the Twilio REST API.
type TwilioCallControl struct {
	api callUpdater
}

func NewTwilioCallControl(accountSID, authToken string) (*TwilioCallControl, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("telephony: twilio account sid and auth token are required")
	}
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioCallControl{api: rc.Api}, nil
}

func (t *TwilioCallControl) EndWithMessage(ctx context.Context, callSid, message string) error {
	if callSid == "" {
		return errors.New("telephony: call sid required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := ApologyTwiML(message)
	if err != nil {
		return err
	}

	params := &openapi.UpdateCallParams{}
	params.SetTwiml(doc)
	if _, err := t.api.UpdateCall(callSid, params); err != nil {
		return fmt.Errorf("telephony: twilio update call %s: %w", callSid, err)
	}
	return nil
}
