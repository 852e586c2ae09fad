package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

const expoBatchSize = 100

// IsExpoToken reports whether token looks like an Expo push token.
func IsExpoToken(token string) bool {
	return (strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]")
}

// ExpoClient sends through the Expo push HTTP API.
type ExpoClient struct {
	url         string
	accessToken string
	http        *http.Client
}

// NewExpoClient creates an Expo client. accessToken may be empty when the
// Expo project does not enforce push security.
func NewExpoClient(url, accessToken string, httpClient *http.Client) *ExpoClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &ExpoClient{url: url, accessToken: accessToken, http: httpClient}
}

func (c *ExpoClient) Name() model.PushProvider { return model.PushProviderExpo }

func (c *ExpoClient) BatchSize() int { return expoBatchSize }

type expoMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound"`
}

type expoTicket struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type expoResponse struct {
	Data   []expoTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Send posts one batch. Tickets come back in request order; any ticket with
// status "error" rejects its token.
func (c *ExpoClient) Send(ctx context.Context, tokens []string, msg Message) ([]Rejection, error) {
	payload := make([]expoMessage, 0, len(tokens))
	for _, t := range tokens {
		payload = append(payload, expoMessage{To: t, Title: msg.Title, Body: msg.Body, Data: msg.Data, Sound: "default"})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: expo: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: expo status %d: %s", ErrProviderUnavailable, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out expoResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: expo response: %v", ErrProviderUnavailable, err)
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("%w: expo: %s", ErrProviderUnavailable, out.Errors[0].Message)
	}

	var rejected []Rejection
	for i, ticket := range out.Data {
		if i >= len(tokens) || ticket.Status != "error" {
			continue
		}
		reason := ticket.Details.Error
		if reason == "" {
			reason = ticket.Message
		}
		rejected = append(rejected, Rejection{Token: tokens[i], Reason: reason})
	}
	return rejected, nil
}
