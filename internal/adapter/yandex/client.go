package yandex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MeshkovD/star-burger/internal/domain"
	"golang.org/x/time/rate"
)

// Client implements domain.Geocoder using the Yandex Geocoder HTTP API.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Yandex geocoding client. Requests are bounded by timeout
// and throttled to rps requests per second; rps <= 0 disables throttling.
func NewClient(apiKey string, timeout time.Duration, rps float64, logger *slog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://geocode-maps.yandex.ru/1.x",
		limiter: newLimiter(rps),
		logger:  logger,
	}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// Geocode returns the coordinates of the first match for address.
func (c *Client) Geocode(ctx context.Context, address string) (domain.Point, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Point{}, false, fmt.Errorf("geocode rate limit: %w", err)
	}

	params := url.Values{
		"apikey":  {c.apiKey},
		"geocode": {address},
		"format":  {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.Point{}, false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Point{}, false, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return domain.Point{}, false, fmt.Errorf("yandex API error: status %d: %s", resp.StatusCode, body)
	}

	var yandexResp response
	if err := json.NewDecoder(resp.Body).Decode(&yandexResp); err != nil {
		return domain.Point{}, false, fmt.Errorf("decode response: %w", err)
	}

	members := yandexResp.Response.GeoObjectCollection.FeatureMember
	if len(members) == 0 {
		return domain.Point{}, false, nil
	}

	point, err := parsePos(members[0].GeoObject.Point.Pos)
	if err != nil {
		return domain.Point{}, false, err
	}
	c.logger.Debug("address geocoded", "address", address, "lat", point.Lat, "lng", point.Lng)
	return point, true, nil
}

// parsePos parses a Yandex "lng lat" position string.
func parsePos(pos string) (domain.Point, error) {
	fields := strings.Fields(pos)
	if len(fields) != 2 {
		return domain.Point{}, fmt.Errorf("malformed position %q", pos)
	}
	lng, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return domain.Point{}, fmt.Errorf("parse longitude %q: %w", fields[0], err)
	}
	lat, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return domain.Point{}, fmt.Errorf("parse latitude %q: %w", fields[1], err)
	}
	return domain.Point{Lat: lat, Lng: lng}, nil
}

// Yandex API response types.

type response struct {
	Response struct {
		GeoObjectCollection struct {
			FeatureMember []featureMember `json:"featureMember"`
		} `json:"GeoObjectCollection"`
	} `json:"response"`
}

type featureMember struct {
	GeoObject struct {
		Name  string `json:"name"`
		Point struct {
			Pos string `json:"pos"` // "lng lat"
		} `json:"Point"`
	} `json:"GeoObject"`
}
