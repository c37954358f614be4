package tankutility

import (
	"context"
	"net/http"
)

// Token returns the cached bearer token, exchanging the credentials for a
// new one when none is cached or forceRefresh is set.
//
// Refresh follows check → lock → re-check → fetch. A caller that asked for a
// forced refresh and finds, once it holds the lock, that another caller has
// already replaced the token it saw, takes that newer token instead of
// issuing another request. N concurrent forced refreshes therefore cost one
// request and all return the same token.
//
// Errors:
//   - ErrInvalidAuth: the token endpoint answered 401
//   - *APIError: any other status, a body without a token, an undecodable
//     body, or a transport failure
func (c *Client) Token(ctx context.Context, forceRefresh bool) (string, error) {
	token, _, err := c.currentToken(ctx, forceRefresh)
	return token, err
}

// currentToken is Token plus the generation of the returned token, which
// callers use to refresh or invalidate exactly the token they used.
func (c *Client) currentToken(ctx context.Context, forceRefresh bool) (string, uint64, error) {
	token, gen := c.cachedToken()
	if token != "" && !forceRefresh {
		return token, gen, nil
	}
	return c.refreshToken(ctx, gen, forceRefresh)
}

// refreshToken acquires a new token unless the cached one already differs
// from generation seenGen. The refresh lock is released on every path,
// including context cancellation mid-request.
func (c *Client) refreshToken(ctx context.Context, seenGen uint64, force bool) (string, uint64, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	token, gen := c.cachedToken()
	if token != "" && (!force || gen != seenGen) {
		return token, gen, nil
	}

	c.log().Debug("requesting new API token")
	fresh, err := c.requestToken(ctx)
	if err != nil {
		if IsAuthFailure(err) {
			c.invalidateToken(gen)
		}
		return "", gen, err
	}

	gen = c.storeToken(fresh)
	c.log().Debug("obtained API token")
	return fresh, gen, nil
}

// requestToken performs the credential exchange.
func (c *Client) requestToken(ctx context.Context) (string, error) {
	resp, err := c.get(ctx, opToken, c.tokenURL(), true)
	if err != nil {
		return "", err
	}

	switch resp.status {
	case http.StatusOK:
	case http.StatusUnauthorized:
		c.log().Error("Tank Utility authentication failed (HTTP 401)")
		return "", authError(opToken)
	default:
		c.logFailure(opToken, resp)
		return "", statusError(opToken, resp.status)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := c.decode(opToken, resp.body, &payload); err != nil {
		return "", err
	}
	if payload.Token == "" {
		c.log().Error("no token received from Tank Utility API")
		return "", &APIError{Op: opToken, StatusCode: resp.status, Message: "no token in response"}
	}

	return payload.Token, nil
}

func (c *Client) cachedToken() (string, uint64) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.token, c.tokenGen
}

// storeToken replaces the cached token and returns its generation.
func (c *Client) storeToken(token string) uint64 {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.token = token
	c.tokenGen++
	return c.tokenGen
}

// invalidateToken drops the cached token if it is still generation gen.
func (c *Client) invalidateToken(gen uint64) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.tokenGen == gen {
		c.token = ""
	}
}
