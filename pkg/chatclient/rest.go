package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"crm_chat/internal/domain"
	apperrors "crm_chat/pkg/errors"
)

// RESTClient - клиент data API чата. Источник истины для начальных
// загрузок и запасной путь для мутаций, когда сокет недоступен.
type RESTClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewRESTClient(baseURL, token string) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type apiError struct {
	Error string `json:"error"`
}

func (c *RESTClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.errorFromResponse(resp)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *RESTClient) errorFromResponse(resp *http.Response) error {
	var payload apiError
	_ = json.NewDecoder(resp.Body).Decode(&payload)

	var sentinel error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		sentinel = apperrors.ErrValidation
	case http.StatusUnauthorized:
		sentinel = apperrors.ErrUnauthorized
	case http.StatusForbidden:
		sentinel = apperrors.ErrForbidden
	case http.StatusNotFound:
		sentinel = apperrors.ErrNotFound
	case http.StatusConflict:
		sentinel = apperrors.ErrConflict
	default:
		sentinel = apperrors.ErrInternalServer
	}

	if payload.Error != "" {
		return fmt.Errorf("%w: %s", sentinel, payload.Error)
	}
	return sentinel
}

func (c *RESTClient) ListConversations(ctx context.Context) ([]*domain.Conversation, error) {
	var conversations []*domain.Conversation
	err := c.do(ctx, http.MethodGet, "/api/v1/conversations", nil, &conversations)
	return conversations, err
}

type CreateConversationRequest struct {
	Name          *string     `json:"name,omitempty"`
	TeamID        *uuid.UUID  `json:"team_id,omitempty"`
	IsTeamChannel bool        `json:"is_team_channel"`
	IsChannelType bool        `json:"is_channel_type"`
	ChannelTag    *string     `json:"channel_tag,omitempty"`
	IsPublic      bool        `json:"is_public"`
	MemberIDs     []uuid.UUID `json:"member_ids,omitempty"`
}

func (c *RESTClient) CreateConversation(ctx context.Context, req CreateConversationRequest) (*domain.Conversation, error) {
	conversation := &domain.Conversation{}
	err := c.do(ctx, http.MethodPost, "/api/v1/conversations", req, conversation)
	return conversation, err
}

func (c *RESTClient) DeleteConversation(ctx context.Context, conversationID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/conversations/"+conversationID.String(), nil, nil)
}

func (c *RESTClient) ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]*domain.Participant, error) {
	var participants []*domain.Participant
	err := c.do(ctx, http.MethodGet, "/api/v1/conversations/"+conversationID.String()+"/participants", nil, &participants)
	return participants, err
}

func (c *RESTClient) AddParticipant(ctx context.Context, conversationID, userID uuid.UUID, isAdmin bool) (*domain.Participant, error) {
	participant := &domain.Participant{}
	err := c.do(ctx, http.MethodPost, "/api/v1/conversations/"+conversationID.String()+"/participants",
		map[string]interface{}{"user_id": userID, "is_admin": isAdmin}, participant)
	return participant, err
}

func (c *RESTClient) RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete,
		"/api/v1/conversations/"+conversationID.String()+"/participants/"+userID.String(), nil, nil)
}

func (c *RESTClient) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	path := fmt.Sprintf("/api/v1/conversations/%s/messages?limit=%d&offset=%d", conversationID, limit, offset)
	var messages []*domain.Message
	err := c.do(ctx, http.MethodGet, path, nil, &messages)
	return messages, err
}

func (c *RESTClient) PostMessage(ctx context.Context, conversationID uuid.UUID, content string, isUrgent bool, attachmentURL *string) (*domain.Message, error) {
	message := &domain.Message{}
	err := c.do(ctx, http.MethodPost, "/api/v1/conversations/"+conversationID.String()+"/messages",
		map[string]interface{}{"content": content, "is_urgent": isUrgent, "attachment_url": attachmentURL}, message)
	return message, err
}

func (c *RESTClient) DeleteMessage(ctx context.Context, messageID int64) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/messages/"+strconv.FormatInt(messageID, 10), nil, nil)
}

func (c *RESTClient) MarkRead(ctx context.Context, conversationID uuid.UUID) error {
	return c.do(ctx, http.MethodPut, "/api/v1/conversations/"+conversationID.String()+"/read", nil, nil)
}

func (c *RESTClient) UnreadCount(ctx context.Context) (int64, error) {
	var payload struct {
		Count int64 `json:"count"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/chat/unread-count", nil, &payload)
	return payload.Count, err
}
