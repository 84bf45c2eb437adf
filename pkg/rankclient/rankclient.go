// Package rankclient talks to the rank service, which owns per-profile privilege limits.
package rankclient

import (
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var ErrNoRank = errors.New("profile has no active rank")

type Settings struct {
	BonusAccountLimit decimal.Decimal `json:"bonus_account_limit"`
}

type Client struct {
	http *resty.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("X-Api-Key", apiKey)
	}
	return &Client{http: client}
}

func (c *Client) Settings(ctx context.Context, profileID int64) (Settings, error) {
	var settings Settings
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(profileID, 10)).
		SetResult(&settings).
		Get("/profiles/{id}/rank-settings")
	if err != nil {
		return Settings{}, errors.Wrapf(err, "rank settings request for profile %d", profileID)
	}
	if resp.StatusCode() == 404 {
		return Settings{}, errors.Wrapf(ErrNoRank, "profile %d", profileID)
	}
	if resp.IsError() {
		return Settings{}, errors.Errorf("rank service answered %d for profile %d", resp.StatusCode(), profileID)
	}
	return settings, nil
}

// BonusCeiling returns the rank's bonus account limit.
func (c *Client) BonusCeiling(ctx context.Context, profileID int64) (decimal.Decimal, error) {
	settings, err := c.Settings(ctx, profileID)
	if err != nil {
		return decimal.Zero, err
	}
	return settings.BonusAccountLimit, nil
}
