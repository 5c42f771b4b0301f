package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const DefaultServerURL = "wss://sim3.psim.us/showdown/websocket"

// ShowdownClient is a websocket connection to a Showdown server. Send is
// safe for concurrent use; Receive must be called from one goroutine.
type ShowdownClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
	log  logrus.FieldLogger
}

func Dial(ctx context.Context, serverURL string, log logrus.FieldLogger) (*ShowdownClient, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing server url: %w", err)
	}

	log.WithField("server", u.String()).Info("connecting")
	c, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("error connecting to websocket: %w", err)
	}

	log.Info("connected to showdown server")
	return &ShowdownClient{conn: c, log: log}, nil
}

// Receive blocks for the next frame. A frame may carry several
// newline-separated protocol lines.
func (sc *ShowdownClient) Receive() (string, error) {
	_, message, err := sc.conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}
	sc.log.Debugf("received: %s", message)
	return string(message), nil
}

func (sc *ShowdownClient) Send(message string) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.log.Debugf("sending: %s", message)
	if err := sc.conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	return nil
}

// SendTo sends a command to a room; an empty room targets the global room.
func (sc *ShowdownClient) SendTo(room string, commands ...string) error {
	return sc.Send(room + "|" + strings.Join(commands, "\n"))
}

func (sc *ShowdownClient) JoinRoom(roomID string) error {
	return sc.SendTo("", "/join "+roomID)
}

func (sc *ShowdownClient) Close() error {
	sc.mu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = sc.conn.WriteMessage(websocket.CloseMessage, msg)
	sc.mu.Unlock()
	return sc.conn.Close()
}
