package cpa

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"pix-subscription-billing/internal/domain/ports/adapter"
)

var _ adapter.ConversionNotifier = (*PostbackClient)(nil)

// PostbackClient reports conversions to an ad-network postback URL via a
// GET with query parameters, the shape CPA networks conventionally accept.
type PostbackClient struct {
	postbackURL string
	client      *http.Client
	log         *zerolog.Logger
}

func NewPostbackClient(postbackURL string, timeout time.Duration, logger *zerolog.Logger) *PostbackClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := logger.With().Str("component", "CPAPostback").Logger()
	return &PostbackClient{
		postbackURL: postbackURL,
		client:      &http.Client{Timeout: timeout},
		log:         &l,
	}
}

func (c *PostbackClient) NotifyConversion(ctx context.Context, userID, campaign string, amount int64) error {
	u, err := url.Parse(c.postbackURL)
	if err != nil {
		return fmt.Errorf("postback url: %w", err)
	}
	q := u.Query()
	q.Set("subid", userID)
	q.Set("campaign", campaign)
	q.Set("amount", fmt.Sprintf("%d.%02d", amount/100, amount%100))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("postback status %d", resp.StatusCode)
	}
	c.log.Debug().Str("campaign", campaign).Msg("conversion reported")
	return nil
}
