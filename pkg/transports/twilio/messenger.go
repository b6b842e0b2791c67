// Package twilio sends outbound SMS through the Twilio REST API.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harunnryd/pluma/pkg/errorsx"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type Config struct {
	AccountSID     string `mapstructure:"account_sid"`
	AuthToken      string `mapstructure:"auth_token"`
	From           string `mapstructure:"from"`
	StatusCallback string `mapstructure:"status_callback"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.AccountSID) == "" || strings.TrimSpace(c.AuthToken) == "" {
		return errors.New("missing twilio credentials")
	}
	if strings.TrimSpace(c.From) == "" {
		return errors.New("missing twilio sender number")
	}
	return nil
}

type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// Messenger sends SMS messages. The REST client is built per send from the
// config it is given, so one Messenger serves any number of accounts.
type Messenger struct {
	client messageCreator
}

func NewMessenger() *Messenger {
	return &Messenger{}
}

// Send delivers body to the given number and returns the message SID.
func (m *Messenger) Send(ctx context.Context, cfg Config, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := cfg.Validate(); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonConfig)
	}
	to, body = strings.TrimSpace(to), strings.TrimSpace(body)
	if to == "" || body == "" {
		return "", errors.New("to/body required")
	}
	client := m.client
	if client == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
		client = rest.Api
	}
	params := &api.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(cfg.From)
	params.SetBody(body)
	if cfg.StatusCallback != "" {
		params.SetStatusCallback(cfg.StatusCallback)
	}
	resp, err := client.CreateMessage(params)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	if resp == nil || resp.Sid == nil {
		return "", fmt.Errorf("missing message sid")
	}
	return *resp.Sid, nil
}
