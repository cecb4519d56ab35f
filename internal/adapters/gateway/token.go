package gateway

import (
	"context"
	"encoding/json"
)

// CreateToken fetches a fresh map access token.
func (c *Client) CreateToken(ctx context.Context) (string, error) {
	body, err := c.get(ctx, PathToken)
	if err != nil {
		return "", err
	}
	var wire struct {
		Token *string `json:"token"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return "", &ParseError{Endpoint: PathToken, Err: err}
	}
	if wire.Token == nil || *wire.Token == "" {
		return "", missing(PathToken, "token")
	}
	return *wire.Token, nil
}
