package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dodo5517/shop-chat/internal/types"
)

const (
	currentUserPath = "/user/me"
	chatRoomsPath   = "/chat/rooms/"
	chatLogPath     = "/chat/log/"

	defaultTimeout = 15 * time.Second
)

type ChatAPI interface {
	CurrentUser(ctx context.Context) (types.User, error)
	ChatRooms(ctx context.Context, id int64) ([]types.ChatRoom, error)
	ChatLog(ctx context.Context, roomId int64) ([]types.ChatLogEntry, error)
}

type Client struct {
	log         *log.Logger
	baseURL     *url.URL
	accessToken string
	httpClient  *http.Client
	now         func() time.Time
}

func NewClient(logger *log.Logger, baseURL, accessToken string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	return &Client{
		log:         logger,
		baseURL:     u,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		now:         time.Now,
	}, nil
}

func (c *Client) CurrentUser(ctx context.Context) (types.User, error) {
	var user types.User
	if err := c.getJson(ctx, currentUserPath, &user); err != nil {
		return types.User{}, fmt.Errorf("get current user: %w", err)
	}

	return user, nil
}

func (c *Client) ChatRooms(ctx context.Context, id int64) ([]types.ChatRoom, error) {
	var rooms []types.ChatRoom
	if err := c.getJson(ctx, chatRoomsPath+strconv.FormatInt(id, 10), &rooms); err != nil {
		return nil, fmt.Errorf("get chat rooms: %w", err)
	}

	return rooms, nil
}

func (c *Client) ChatLog(ctx context.Context, roomId int64) ([]types.ChatLogEntry, error) {
	var entries []types.ChatLogEntry
	if err := c.getJson(ctx, chatLogPath+strconv.FormatInt(roomId, 10), &entries); err != nil {
		return nil, fmt.Errorf("get chat log: %w", err)
	}

	return entries, nil
}

func (c *Client) getJson(ctx context.Context, path string, v any) error {
	if err := checkToken(c.accessToken, c.now()); err != nil {
		return err
	}

	endpoint := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newApiError(resp)
		c.log.Printf("GET %s: %d %s", endpoint.Path, apiErr.StatusCode, apiErr.Message)
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
