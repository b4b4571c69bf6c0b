package client

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// UnixPrefix marks a server address as a unix socket path.
	UnixPrefix = "unix://"

	defaultTimeout = 30 * time.Second
)

// Client talks to a reading server, ours or any server speaking the same
// upload contract.
type Client struct {
	addr string
	rc   *resty.Client
	// stream has no overall timeout, for the event stream.
	stream *resty.Client
}

// NewClient accepts "unix:///path/to.sock", "host:port" or a full http(s) URL.
func NewClient(addr string) *Client {
	network, socketPath, baseURL := "tcp", "", strings.TrimRight(addr, "/")
	switch {
	case strings.HasPrefix(addr, UnixPrefix):
		network, socketPath, baseURL = "unix", strings.TrimPrefix(addr, UnixPrefix), "http://unix"
	case !strings.Contains(addr, "://"):
		baseURL = "http://" + baseURL
	}

	dialer := &net.Dialer{Timeout: 5 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, hostport string) (net.Conn, error) {
			target := hostport
			if network == "unix" {
				target = socketPath
			}
			conn, err := dialer.DialContext(ctx, network, target)
			if err != nil {
				return nil, dialError(err)
			}
			return conn, nil
		},
		MaxIdleConns:    4,
		IdleConnTimeout: 90 * time.Second,
	}

	rc := resty.NewWithClient(&http.Client{Transport: transport}).
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetLogger(logrus.StandardLogger())

	stream := resty.NewWithClient(&http.Client{Transport: transport}).
		SetBaseURL(baseURL).
		SetLogger(logrus.StandardLogger())

	return &Client{addr: addr, rc: rc, stream: stream}
}

func dialError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ECONNREFUSED):
		return ErrServerNotRunning
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	}
	logrus.Errorf("failed to connect to reading server: %v", err)
	return err
}

// Addr is the address the client was created with.
func (c *Client) Addr() string {
	return c.addr
}

// Send executes req and decodes a 2xx JSON body into result, which may be nil.
func (c *Client) Send(req *resty.Request, method, path string, result any) error {
	logrus.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"server": c.addr,
	}).Debug("sending request")

	resp, err := req.Execute(method, path)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to send request")
	}

	if !resp.IsSuccess() {
		return decodeError(resp.StatusCode(), resp.Body())
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		return pkgerrors.Wrapf(err, "failed to decode response of %s %s", method, path)
	}
	return nil
}

// Get sends a GET request with no body.
func (c *Client) Get(ctx context.Context, path string, result any) error {
	return c.Send(c.rc.R().SetContext(ctx), http.MethodGet, path, result)
}

// Put sends a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, result any) error {
	return c.Send(c.rc.R().SetContext(ctx).SetBody(body), http.MethodPut, path, result)
}

// Post sends a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, result any) error {
	return c.Send(c.rc.R().SetContext(ctx).SetBody(body), http.MethodPost, path, result)
}

// decodeError understands the {"error","code"} body, a bare JSON string, or
// plain text.
func decodeError(status int, body []byte) error {
	if status == http.StatusNotFound {
		return ErrNotFound
	}

	apiErr := &APIError{StatusCode: status}

	var er ErrorResponse
	var s string
	switch {
	case json.Unmarshal(body, &er) == nil && er.Error != "":
		apiErr.Message, apiErr.Code = er.Error, er.Code
	case json.Unmarshal(body, &s) == nil:
		apiErr.Message = s
	default:
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
