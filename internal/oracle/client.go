package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Zyptonix/Traffic-Rewards/internal/location"
	"github.com/Zyptonix/Traffic-Rewards/internal/session"
	"github.com/Zyptonix/Traffic-Rewards/internal/shared/geo"
)

const (
	defaultTrafficInterval = 45 * time.Second
	defaultRoadInterval    = 2 * time.Minute
	defaultCheckDistanceM  = 200.0
	defaultOnRoadWithinM   = 25.0
	defaultHeavyRatio      = 2.0
	defaultModerateRatio   = 1.4
	defaultTimeout         = 10 * time.Second
)

// Client wraps the two external mapping oracles behind independent
// throttle gates backed by the session store. Zero-value fields fall
// back to the defaults above, so callers set only what they need.
type Client struct {
	Sessions *session.Store

	HTTPClient *http.Client
	TrafficURL string
	RoadURL    string
	APIKey     string

	TrafficInterval time.Duration
	RoadInterval    time.Duration
	CheckDistanceM  float64
	OnRoadWithinM   float64
	HeavyRatio      float64
	ModerateRatio   float64

	Now func() time.Time
}

// RefreshTraffic returns the congestion classification for the fix,
// calling the travel-time oracle at most once per throttle window.
// Failures degrade to ERROR and are logged, never returned: the award
// policy is starved of freshness, not of a classification. The
// throttle timestamp advances only when a call completed, so a
// transport failure does not delay the retry.
func (c *Client) RefreshTraffic(ctx context.Context, userID string, fix location.Sample) session.Severity {
	st, err := c.Sessions.Load(ctx, userID)
	if err != nil {
		log.Printf("oracle: session load failed for %s: %v", userID, err)
	}

	now := c.now()
	if now.Sub(st.TrafficCheckedAt) < c.effectiveTrafficInterval() {
		return st.Severity
	}

	destLat, destLng := geo.ProjectPoint(fix.Lat, fix.Lng, fix.HeadingDeg, c.effectiveCheckDistance())
	ratio, completed, err := c.fetchTravelRatio(ctx, fix, destLat, destLng, now)

	severity := session.SeverityError
	if err == nil {
		severity = classify(ratio, c.effectiveHeavyRatio(), c.effectiveModerateRatio())
	} else {
		log.Printf("oracle: traffic check failed for %s: %v", userID, err)
	}

	if err := c.Sessions.SaveSeverity(ctx, userID, severity); err != nil {
		log.Printf("oracle: persist severity failed for %s: %v", userID, err)
	}
	if completed {
		if err := c.Sessions.SaveTrafficCheckedAt(ctx, userID, now); err != nil {
			log.Printf("oracle: persist traffic timestamp failed for %s: %v", userID, err)
		}
	}
	return severity
}

// RefreshOnRoad reports whether the fix lies on a mapped road, calling
// the road-snap oracle at most once per throttle window. On failure
// the cached flag is returned unchanged.
func (c *Client) RefreshOnRoad(ctx context.Context, userID string, fix location.Sample) bool {
	st, err := c.Sessions.Load(ctx, userID)
	if err != nil {
		log.Printf("oracle: session load failed for %s: %v", userID, err)
	}

	now := c.now()
	if now.Sub(st.RoadCheckedAt) < c.effectiveRoadInterval() {
		return st.OnRoad
	}

	snapped, completed, err := c.fetchRoadSnap(ctx, fix)
	if err != nil {
		log.Printf("oracle: road check failed for %s: %v", userID, err)
		if completed {
			if err := c.Sessions.SaveRoadCheckedAt(ctx, userID, now); err != nil {
				log.Printf("oracle: persist road timestamp failed for %s: %v", userID, err)
			}
		}
		return st.OnRoad
	}

	onRoad := false
	if snapped != nil {
		onRoad = geo.DistanceMeters(fix.Lat, fix.Lng, snapped.Lat, snapped.Lng) < c.effectiveOnRoadWithin()
	}
	if err := c.Sessions.SaveRoadResult(ctx, userID, onRoad, snapped); err != nil {
		log.Printf("oracle: persist road result failed for %s: %v", userID, err)
	}
	if err := c.Sessions.SaveRoadCheckedAt(ctx, userID, now); err != nil {
		log.Printf("oracle: persist road timestamp failed for %s: %v", userID, err)
	}
	return onRoad
}

type travelTimeResponse struct {
	DurationSec          float64 `json:"duration_sec"`
	DurationInTrafficSec float64 `json:"duration_in_traffic_sec"`
}

// fetchTravelRatio reports completed=true once any response arrived,
// regardless of status or payload validity.
func (c *Client) fetchTravelRatio(ctx context.Context, fix location.Sample, destLat, destLng float64, departAt time.Time) (float64, bool, error) {
	q := url.Values{}
	q.Set("origin_lat", formatCoord(fix.Lat))
	q.Set("origin_lng", formatCoord(fix.Lng))
	q.Set("dest_lat", formatCoord(destLat))
	q.Set("dest_lng", formatCoord(destLng))
	q.Set("depart_at", strconv.FormatInt(departAt.Unix(), 10))
	if c.APIKey != "" {
		q.Set("key", c.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.TrafficURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := c.effectiveHTTP().Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, true, fmt.Errorf("traffic oracle status %d", resp.StatusCode)
	}
	var body travelTimeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, true, fmt.Errorf("traffic oracle decode: %w", err)
	}
	if body.DurationSec <= 0 {
		return 1, true, nil
	}
	return body.DurationInTrafficSec / body.DurationSec, true, nil
}

type roadSnapResponse struct {
	Points []session.LatLng `json:"points"`
}

func (c *Client) fetchRoadSnap(ctx context.Context, fix location.Sample) (*session.LatLng, bool, error) {
	q := url.Values{}
	q.Set("lat", formatCoord(fix.Lat))
	q.Set("lng", formatCoord(fix.Lng))
	if c.APIKey != "" {
		q.Set("key", c.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RoadURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.effectiveHTTP().Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, true, fmt.Errorf("road oracle status %d", resp.StatusCode)
	}
	var body roadSnapResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, true, fmt.Errorf("road oracle decode: %w", err)
	}
	if len(body.Points) == 0 {
		return nil, true, nil
	}
	return &body.Points[0], true, nil
}

func classify(ratio, heavy, moderate float64) session.Severity {
	switch {
	case ratio > heavy:
		return session.SeverityHeavy
	case ratio > moderate:
		return session.SeverityModerate
	default:
		return session.SeverityFreeFlow
	}
}

func (c *Client) effectiveHTTP() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func (c *Client) effectiveTrafficInterval() time.Duration {
	if c.TrafficInterval > 0 {
		return c.TrafficInterval
	}
	return defaultTrafficInterval
}

func (c *Client) effectiveRoadInterval() time.Duration {
	if c.RoadInterval > 0 {
		return c.RoadInterval
	}
	return defaultRoadInterval
}

func (c *Client) effectiveCheckDistance() float64 {
	if c.CheckDistanceM > 0 {
		return c.CheckDistanceM
	}
	return defaultCheckDistanceM
}

func (c *Client) effectiveOnRoadWithin() float64 {
	if c.OnRoadWithinM > 0 {
		return c.OnRoadWithinM
	}
	return defaultOnRoadWithinM
}

func (c *Client) effectiveHeavyRatio() float64 {
	if c.HeavyRatio > 0 {
		return c.HeavyRatio
	}
	return defaultHeavyRatio
}

func (c *Client) effectiveModerateRatio() float64 {
	if c.ModerateRatio > 0 {
		return c.ModerateRatio
	}
	return defaultModerateRatio
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
