package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketClient is the wire connection to the dispatch server.
type WebSocketClient struct {
	url    string
	token  string
	conn   *websocket.Conn
	logger *slog.Logger
}

// Signal is a message from the dispatch server.
type Signal struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Command is a message to the dispatch server.
type Command struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

func NewWebSocketClient(serverURL, token string, logger *slog.Logger) *WebSocketClient {
	return &WebSocketClient{
		url:    serverURL,
		token:  token,
		logger: logger,
	}
}

// Connect dials the dispatch server, authenticating with a bearer token.
func (c *WebSocketClient) Connect(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	c.logger.Debug("Connecting to dispatch server", slog.String("url", u.String()))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.logger.Info("Dispatch connection established", slog.String("url", c.url))
	return nil
}

func (c *WebSocketClient) ReadSignal(ctx context.Context) (*Signal, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	var signal Signal
	if err := c.conn.ReadJSON(&signal); err != nil {
		return nil, fmt.Errorf("failed to read signal: %w", err)
	}

	c.logger.Debug("Received signal", slog.String("type", signal.Type))
	return &signal, nil
}

func (c *WebSocketClient) WriteCommand(ctx context.Context, cmd *Command) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	c.logger.Debug("Sending command", slog.String("type", cmd.Type))

	if err := c.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}
	return nil
}

func (c *WebSocketClient) Close() error {
	if c.conn == nil {
		return nil
	}

	c.logger.Info("Closing dispatch connection")
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *WebSocketClient) Ping(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}
