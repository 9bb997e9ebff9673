package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// robotsCache fetches and caches robots.txt per host. Fetch failures are
// treated as allow-all so an unreachable robots.txt does not stall a run.
type robotsCache struct {
	client *Client
	cache  sync.Map // host -> *robotstxt.RobotsData (nil entry = allow all)
}

func newRobotsCache(c *Client) *robotsCache {
	return &robotsCache{client: c}
}

func (r *robotsCache) allowed(ctx context.Context, u *url.URL) bool {
	data := r.load(ctx, u)
	if data == nil {
		return true
	}
	group := data.FindGroup(r.client.userAgent)
	if group == nil {
		return true
	}
	return group.Test(u.Path)
}

func (r *robotsCache) load(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	host := strings.ToLower(u.Host)
	if cached, ok := r.cache.Load(host); ok {
		data, _ := cached.(*robotstxt.RobotsData)
		return data
	}

	data := r.fetch(ctx, u)
	r.cache.Store(host, data)
	return data
}

// fetch retrieves robots.txt directly via the underlying HTTP client; it
// must not go through Client.Get or it would recurse into robots checks.
func (r *robotsCache) fetch(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.client.userAgent)

	resp, err := r.client.http.Do(req)
	if err != nil {
		zap.L().Debug("robots.txt fetch failed, allowing host",
			zap.String("host", u.Host),
			zap.Error(err),
		)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		zap.L().Debug("robots.txt parse failed, allowing host",
			zap.String("host", u.Host),
			zap.Error(err),
		)
		return nil
	}
	return data
}
