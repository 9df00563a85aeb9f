package client

import (
	"context"
	"fmt"

	"github.com/inercia/inferstream/internal/logging"
	"github.com/inercia/inferstream/internal/session"
	"github.com/inercia/inferstream/internal/transport"
)

// TransportConfig returns the websocket settings derived from the client
// configuration.
func (c *Client) TransportConfig() transport.Config {
	return transport.Config{
		Endpoint:       c.cfg.WebsocketURL,
		APIKey:         c.cfg.APIKey,
		Workspace:      c.cfg.Workspace,
		DataInspection: c.cfg.DataInspection,
		Logger:         logging.Transport(),
	}
}

// Connect opens the inference websocket and returns a session ready for
// Call. A rejected upgrade is returned as a *transport.DialError.
func (c *Client) Connect(ctx context.Context, opts ...session.Option) (*session.Session, error) {
	conn, err := transport.Dial(ctx, c.TransportConfig())
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	all := append(append([]session.Option(nil), c.sessionOpts...), opts...)
	return session.New(conn, all...), nil
}

// Stream connects and drives h until the session ends.
func (c *Client) Stream(ctx context.Context, h session.Handler, opts ...session.Option) error {
	s, err := c.Connect(ctx, opts...)
	if err != nil {
		return err
	}
	return s.Call(ctx, h)
}
