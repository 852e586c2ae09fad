package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

const (
	fcmEndpoint = "https://fcm.googleapis.com"
	fcmScope    = "https://www.googleapis.com/auth/firebase.messaging"
)

// NewFCMHTTPClient returns an HTTP client authorised with the service account
// stored in credentialsFile.
func NewFCMHTTPClient(ctx context.Context, credentialsFile string) (*http.Client, error) {
	raw, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read fcm credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, fcmScope)
	if err != nil {
		return nil, fmt.Errorf("parse fcm credentials: %w", err)
	}
	return oauth2.NewClient(ctx, creds.TokenSource), nil
}

// FCMClient sends through the FCM HTTP v1 API, one request per token.
type FCMClient struct {
	projectID string
	endpoint  string
	http      *http.Client
}

// NewFCMClient creates an FCM client. An empty endpoint uses Google's.
func NewFCMClient(projectID, endpoint string, httpClient *http.Client) *FCMClient {
	if endpoint == "" {
		endpoint = fcmEndpoint
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &FCMClient{projectID: projectID, endpoint: endpoint, http: httpClient}
}

func (c *FCMClient) Name() model.PushProvider { return model.PushProviderFCM }

func (c *FCMClient) BatchSize() int { return 1 }

type fcmRequest struct {
	Message struct {
		Token        string            `json:"token"`
		Notification fcmNotification   `json:"notification"`
		Data         map[string]string `json:"data,omitempty"`
	} `json:"message"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// Send delivers to each token in turn. Unregistered or invalid tokens are
// rejected; authentication, quota and server errors fail the call.
func (c *FCMClient) Send(ctx context.Context, tokens []string, msg Message) ([]Rejection, error) {
	var rejected []Rejection
	for _, token := range tokens {
		reason, err := c.sendOne(ctx, token, msg)
		if err != nil {
			return rejected, err
		}
		if reason != "" {
			rejected = append(rejected, Rejection{Token: token, Reason: reason})
		}
	}
	return rejected, nil
}

func (c *FCMClient) sendOne(ctx context.Context, token string, msg Message) (string, error) {
	var payload fcmRequest
	payload.Message.Token = token
	payload.Message.Notification = fcmNotification{Title: msg.Title, Body: msg.Body}
	payload.Message.Data = msg.Data
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", c.endpoint, c.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fcm: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode == http.StatusOK {
		return "", nil
	}

	var fe fcmError
	_ = json.Unmarshal(raw, &fe)
	code := fe.Error.Status
	for _, d := range fe.Error.Details {
		if d.ErrorCode != "" {
			code = d.ErrorCode
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound, code == "UNREGISTERED":
		return "UNREGISTERED", nil
	case resp.StatusCode == http.StatusBadRequest, code == "INVALID_ARGUMENT", code == "SENDER_ID_MISMATCH":
		if code == "" {
			code = "INVALID_ARGUMENT"
		}
		return code, nil
	}
	return "", fmt.Errorf("%w: fcm status %d %s", ErrProviderUnavailable, resp.StatusCode, code)
}
