package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Client is the subset of the Matrix client-server API the bridge uses.
type Client interface {
	SendMessage(ctx context.Context, req SendMessageRequest) (string, error)
	CreateRoom(ctx context.Context, req CreateRoomRequest) (string, error)
	InviteUser(ctx context.Context, roomID, userID, asUserID string) error
}

type HTTPClient struct {
	baseURL     string
	accessToken string
	client      *http.Client
	logger      *logrus.Logger
}

func NewClient(baseURL, accessToken string, httpClient *http.Client) Client {
	return NewClientWithLogger(baseURL, accessToken, httpClient, nil)
}

func NewClientWithLogger(baseURL, accessToken string, httpClient *http.Client, logger *logrus.Logger) Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	return &HTTPClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		accessToken: accessToken,
		client:      httpClient,
		logger:      logger,
	}
}

// SendMessage sends an m.room.message event and returns its event ID. The
// transaction ID makes retried PUTs idempotent on the homeserver side.
func (c *HTTPClient) SendMessage(ctx context.Context, req SendMessageRequest) (string, error) {
	msgType := MsgTypeText
	if req.IsNotice {
		msgType = MsgTypeNotice
	}

	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/m.room.message/%s",
		url.PathEscape(req.RoomID), uuid.NewString())

	c.logger.WithFields(logrus.Fields{
		"roomId":  req.RoomID,
		"msgtype": msgType,
		"asUser":  req.AsUserID,
	}).Debug("Sending room message")

	var resp sendEventResponse
	err := c.doRequest(ctx, http.MethodPut, path, req.AsUserID, messageEventContent{
		MsgType: msgType,
		Body:    req.Body,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.EventID, nil
}

// CreateRoom creates a room, inviting all requested participants up-front.
func (c *HTTPClient) CreateRoom(ctx context.Context, req CreateRoomRequest) (string, error) {
	c.logger.WithFields(logrus.Fields{
		"name":    req.Name,
		"invites": len(req.Invite),
		"preset":  req.Preset,
	}).Debug("Creating room")

	var resp createRoomResponse
	err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/createRoom", "", createRoomPayload{
		Name:   req.Name,
		Invite: req.Invite,
		Preset: req.Preset,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.RoomID, nil
}

// InviteUser invites userID to the room. When asUserID is set the invite is
// issued as that application-service user instead of the bot.
func (c *HTTPClient) InviteUser(ctx context.Context, roomID, userID, asUserID string) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/invite", url.PathEscape(roomID))

	c.logger.WithFields(logrus.Fields{
		"roomId": roomID,
		"userId": userID,
		"asUser": asUserID,
	}).Debug("Inviting user to room")

	return c.doRequest(ctx, http.MethodPost, path, asUserID, invitePayload{UserID: userID}, nil)
}

func (c *HTTPClient) doRequest(ctx context.Context, method, path, asUserID string, payload, result interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + path
	if asUserID != "" {
		endpoint += "?user_id=" + url.QueryEscape(asUserID)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		matrixErr := &Error{Code: ErrCodeUnknown}
		if jsonErr := json.Unmarshal(body, matrixErr); jsonErr != nil {
			matrixErr.Message = fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body))
		}
		matrixErr.StatusCode = resp.StatusCode
		return matrixErr
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
