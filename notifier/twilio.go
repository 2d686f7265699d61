package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

const DefaultTwilioBaseURL = "https://api.twilio.com"

// TwilioSender sends through the Twilio Messages API.
type TwilioSender struct {
	from   string
	client *twilio.RestClient
}

// NewTwilioSender builds the REST client. A baseURL other than the Twilio API host routes
// every request to that host instead (local stubs, tests).
func NewTwilioSender(accountSID, authToken, from, baseURL string, timeout time.Duration) (*TwilioSender, error) {
	httpClient := &http.Client{Timeout: timeout}
	if baseURL != "" && baseURL != DefaultTwilioBaseURL {
		target, err := url.Parse(baseURL)
		if err != nil || target.Host == "" {
			return nil, fmt.Errorf("invalid TWILIO_BASE_URL %q", baseURL)
		}
		httpClient.Transport = &baseURLTransport{target: target, next: http.DefaultTransport}
	}

	base := &twclient.Client{
		Credentials: twclient.NewCredentials(accountSID, authToken),
		HTTPClient:  httpClient,
	}
	base.SetAccountSid(accountSID)

	if normalized, err := NormalizePhone(from); err == nil {
		from = normalized
	}
	return &TwilioSender{
		from:   from,
		client: twilio.NewRestClientWithParams(twilio.ClientParams{Client: base}),
	}, nil
}

func (s *TwilioSender) Name() string { return "twilio" }

type twilioResult struct {
	sid string
	err error
}

func (s *TwilioSender) Send(ctx context.Context, to, body string) (string, error) {
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	// the client has no context support; the http timeout bounds the abandoned call
	done := make(chan twilioResult, 1)
	go func() {
		resp, err := s.client.Api.CreateMessage(params)
		if err != nil {
			done <- twilioResult{err: err}
			return
		}
		if resp.Sid == nil {
			done <- twilioResult{err: errors.New("twilio response has no message sid")}
			return
		}
		done <- twilioResult{sid: *resp.Sid}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("SMS send failed: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			var restErr *twclient.TwilioRestError
			if errors.As(res.err, &restErr) {
				return "", fmt.Errorf("twilio returned status %d (code %d): %s", restErr.Status, restErr.Code, restErr.Message)
			}
			return "", fmt.Errorf("SMS send failed: %w", res.err)
		}
		return res.sid, nil
	}
}

// baseURLTransport rewrites the scheme and host of outgoing requests.
type baseURLTransport struct {
	target *url.URL
	next   http.RoundTripper
}

func (t *baseURLTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	out.Host = t.target.Host
	return t.next.RoundTrip(out)
}
