package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

type ClientConfig interface {
	GetExpiryThreshold() time.Duration
	GetRefreshTimeout() time.Duration
	GetRequestTimeout() time.Duration
	GetRateLimit() float64
	GetRateBurst() int
}

type Client struct {
	k *koanf.Koanf
}

var _ ClientConfig = Client{}

// GetExpiryThreshold is how close to exp a token may get before it is renewed up front
func (c Client) GetExpiryThreshold() time.Duration {
	return c.k.Duration("client.expiry_threshold")
}

// GetRefreshTimeout bounds a single refresh call; waiters are released with an error when it elapses
func (c Client) GetRefreshTimeout() time.Duration {
	return c.k.Duration("client.refresh_timeout")
}

func (c Client) GetRequestTimeout() time.Duration {
	return c.k.Duration("client.request_timeout")
}

// GetRateLimit is requests per second, 0 disables limiting
func (c Client) GetRateLimit() float64 {
	return c.k.Float64("client.rate_limit")
}

func (c Client) GetRateBurst() int {
	if burst := c.k.Int("client.rate_burst"); burst > 0 {
		return burst
	}
	return 1
}
