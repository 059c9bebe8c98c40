package internal

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// Transport performs the three connection steps separately so each failure
// can be reported with its step name.
type Transport interface {
	Resolve(ctx context.Context, host, port string) ([]string, error)
	Connect(ctx context.Context, addrs []string) (net.Conn, error)
	Handshake(ctx context.Context, nc net.Conn, host string) (Conn, error)
}

// Conn is an upgraded message connection.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

type WebsocketTransport struct {
	Resolver    *net.Resolver
	DialTimeout time.Duration
	ReadLimit   int64
}

func (t *WebsocketTransport) Resolve(ctx context.Context, host, port string) ([]string, error) {
	resolver := t.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	ips, err := resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	addrs := make([]string, len(ips))
	for i, ip := range ips {
		addrs[i] = net.JoinHostPort(ip, port)
	}
	return addrs, nil
}

// Connect dials the resolved addresses in order and returns the first that
// answers.
func (t *WebsocketTransport) Connect(ctx context.Context, addrs []string) (net.Conn, error) {
	timeout := t.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}
	var errs []error
	for _, addr := range addrs {
		nc, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return nc, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, errors.New("no addresses")
	}
	return nil, errors.Join(errs...)
}

// Handshake upgrades an established connection. The HTTP client hands the
// already connected socket to the websocket dialer exactly once.
func (t *WebsocketTransport) Handshake(ctx context.Context, nc net.Conn, host string) (Conn, error) {
	var once sync.Once
	client := &http.Client{Transport: &http.Transport{
		DialContext: func(context.Context, string, string) (net.Conn, error) {
			var c net.Conn
			once.Do(func() { c = nc })
			if c == nil {
				return nil, errors.New("connection already upgraded")
			}
			return c, nil
		},
	}}

	ws, _, err := websocket.Dial(ctx, "ws://"+host+"/", &websocket.DialOptions{
		HTTPClient:      client,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		nc.Close()
		return nil, err
	}
	if t.ReadLimit > 0 {
		ws.SetReadLimit(t.ReadLimit)
	}
	return &websocketConn{ws: ws}, nil
}

type websocketConn struct {
	ws *websocket.Conn
}

func (c *websocketConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	return data, err
}

func (c *websocketConn) Write(ctx context.Context, data []byte) error {
	return c.ws.Write(ctx, websocket.MessageBinary, data)
}

func (c *websocketConn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}
