// Package authclient sends HTTP requests on behalf of the signed-in user.
//
// Every request carries the stored access token as a bearer token. A token
// close to expiry is refreshed before the request is sent, and a request
// rejected with 401 gets exactly one refresh and one retry. When the session
// cannot be recovered it is cleared and the termination handler is told.
package authclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fxsound/soundstudio/pkg/errs"
	"github.com/fxsound/soundstudio/pkg/session"
	"github.com/fxsound/soundstudio/pkg/token"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	RefreshPath = "/auth/refresh"

	DefaultThreshold = 5 * time.Minute

	refreshKey = "refresh"
)

// Options describe the request to send. Body is kept as bytes so the
// request can be replayed after a refresh.
type Options struct {
	Method string
	Header http.Header
	Body   []byte
}

type Requester interface {
	Request(ctx context.Context, url string, opts Options) (*http.Response, error)
}

var _ Requester = &Client{}

type Client struct {
	client     *http.Client
	apiURL     string
	store      session.Store
	terminator session.TerminationHandler
	threshold  time.Duration
	now        func() time.Time
	metrics    *Metrics
	log        zerolog.Logger

	group singleflight.Group
}

// Request sends the request described by opts to url. A url starting with
// "/" is resolved against the API URL.
//
// The returned response is the first response when it was not a 401, or the
// response to the single retry otherwise. The caller must close its body.
func (c *Client) Request(ctx context.Context, url string, opts Options) (*http.Response, error) {
	const op errs.Op = "authclient.Request"

	url = c.resolve(url)

	access, ok, err := c.store.Get(session.KeyAccessToken)
	if err != nil {
		return nil, errs.E(errs.IO, op, err)
	}

	if !ok || access == "" {
		noSession := &NoSessionError{}
		c.terminate(ctx, ReasonNoSession, noSession)

		return nil, noSession
	}

	if token.NearingExpiry(access, c.now(), c.threshold) {
		c.log.Debug().Str("url", url).Msg("access token nearing expiry, refreshing before request")

		f, err := c.refresh(ctx, TriggerPreflight)
		if err != nil {
			return nil, c.failAuthentication(ctx, f, err)
		}

		access = f.access
	}

	res, err := c.send(ctx, url, opts, access)
	if err != nil {
		return nil, err
	}

	if res.StatusCode != http.StatusUnauthorized {
		return res, nil
	}

	discard(res)
	c.log.Debug().Str("url", url).Msg("request rejected with 401, refreshing and retrying once")

	f, err := c.refresh(ctx, TriggerReactive)
	if err != nil {
		return nil, c.failAuthentication(ctx, f, err)
	}

	access = f.access

	res, err = c.send(ctx, url, opts, access)
	if err != nil {
		return nil, err
	}

	if !isSuccessful(res.StatusCode) {
		discard(res)

		authFailed := &AuthenticationFailedError{StatusCode: res.StatusCode}
		c.terminate(ctx, ReasonRetryRejected, authFailed)

		return nil, authFailed
	}

	return res, nil
}

// failAuthentication terminates the session after a failed refresh, once per
// exchange however many callers shared it. A refresh abandoned because the
// caller's context ended leaves the session alone.
func (c *Client) failAuthentication(ctx context.Context, f *flight, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	authFailed := &AuthenticationFailedError{Err: err}

	f.terminate.Do(func() {
		c.terminate(ctx, ReasonRefreshFailed, authFailed)
	})

	return authFailed
}

func (c *Client) terminate(ctx context.Context, reason string, err error) {
	c.log.Info().Str("reason", reason).Err(err).Msg("session terminated")
	c.metrics.terminated(reason)
	c.terminator.Terminate(ctx, err)
}

// flight is the outcome of one refresh exchange, shared by every caller that
// joined it.
type flight struct {
	access    string
	terminate sync.Once
}

// refresh runs one refresh exchange. Concurrent callers on the same client
// share a single exchange and its outcome. The flight is returned with the
// error too, so a failure is acted on once.
func (c *Client) refresh(ctx context.Context, trigger string) (*flight, error) {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		access, err := c.exchange(context.WithoutCancel(ctx))

		return &flight{access: access}, err
	})

	select {
	case <-ctx.Done():
		return &flight{}, ctx.Err()
	case r := <-ch:
		f := r.Val.(*flight)

		if r.Err != nil {
			c.metrics.refreshed(trigger, OutcomeFailure)
			c.log.Info().Str("trigger", trigger).Err(r.Err).Msg("refreshing access token")

			return f, r.Err
		}

		c.metrics.refreshed(trigger, OutcomeSuccess)

		return f, nil
	}
}

func (c *Client) exchange(ctx context.Context) (string, error) {
	refreshToken, ok, err := c.store.Get(session.KeyRefreshToken)
	if err != nil {
		return "", &RefreshFailedError{Err: err}
	}

	if !ok || refreshToken == "" {
		return "", &RefreshFailedError{Err: ErrNoRefreshToken}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+RefreshPath, nil)
	if err != nil {
		return "", &RefreshFailedError{Err: err}
	}

	req.Header.Set("Authorization", "Bearer "+refreshToken)
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return "", &RefreshFailedError{Err: err}
	}
	defer res.Body.Close()

	if !isSuccessful(res.StatusCode) {
		return "", &RefreshFailedError{StatusCode: res.StatusCode}
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}

	err = json.NewDecoder(res.Body).Decode(&body)
	if err != nil {
		return "", &RefreshFailedError{StatusCode: res.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}

	if body.AccessToken == "" {
		return "", &RefreshFailedError{StatusCode: res.StatusCode, Err: ErrEmptyAccessToken}
	}

	err = c.store.Set(session.KeyAccessToken, body.AccessToken)
	if err != nil {
		return "", &RefreshFailedError{StatusCode: res.StatusCode, Err: fmt.Errorf("storing access token: %w", err)}
	}

	return body.AccessToken, nil
}

func (c *Client) send(ctx context.Context, url string, opts Options, accessToken string) (*http.Response, error) {
	const op errs.Op = "authclient.send"

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errs.E(errs.InvalidRequest, op, err)
	}

	for key, values := range opts.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Err: err}
	}

	return res, nil
}

func (c *Client) resolve(url string) string {
	if strings.HasPrefix(url, "/") {
		return c.apiURL + url
	}

	return url
}

func discard(res *http.Response) {
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}

func isSuccessful(statusCode int) bool {
	return statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices
}

// WithClock replaces the clock used to judge token expiry.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now

	return c
}

func (c *Client) WithMetrics(m *Metrics) *Client {
	c.metrics = m

	return c
}

// New returns a client for the API at apiURL. A zero threshold means
// DefaultThreshold.
func New(
	apiURL string,
	client *http.Client,
	store session.Store,
	terminator session.TerminationHandler,
	threshold time.Duration,
	log zerolog.Logger,
) *Client {
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	return &Client{
		client:     client,
		apiURL:     strings.TrimSuffix(apiURL, "/"),
		store:      store,
		terminator: terminator,
		threshold:  threshold,
		now:        time.Now,
		metrics:    NewMetrics("soundstudio"),
		log:        log,
	}
}
