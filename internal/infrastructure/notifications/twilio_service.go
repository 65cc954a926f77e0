package notifications

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioService delivers SMS through Twilio
type TwilioService struct {
	client     *twilio.RestClient
	fromNumber string
	log        *logrus.Entry
}

// NewTwilioService creates a new Twilio SMS sender
func NewTwilioService(accountSID, authToken, fromNumber string, log *logrus.Entry) *TwilioService {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioService{
		client:     client,
		fromNumber: fromNumber,
		log:        log.WithField("sender", "twilio"),
	}
}

// SendSMS sends message to the E.164 number to
func (t *TwilioService) SendSMS(to, message string) error {
	// If credentials are not configured, log instead of sending
	if t.fromNumber == "" {
		t.log.WithFields(logrus.Fields{"to": to, "body": message}).Warn("twilio not configured, SMS not sent")
		return nil
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.fromNumber)
	params.SetBody(message)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	if resp.Sid != nil {
		t.log.WithField("sid", *resp.Sid).Debug("SMS queued")
	}

	return nil
}
