package session

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Severity classifies ambient congestion from the travel-time ratio.
type Severity string

const (
	SeverityUnknown  Severity = "UNKNOWN"
	SeverityFreeFlow Severity = "FREE_FLOW"
	SeverityModerate Severity = "MODERATE"
	SeverityHeavy    Severity = "HEAVY"
	SeverityError    Severity = "ERROR"
)

// ParseSeverity maps a stored string back to the enum; anything
// unrecognized reads as UNKNOWN.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityFreeFlow, SeverityModerate, SeverityHeavy, SeverityError:
		return Severity(s)
	default:
		return SeverityUnknown
	}
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Reference is the anchor sample for stuck-distance comparison. It is
// only replaced when the user moves past the stuck-distance threshold,
// so stationary time keeps accumulating against the same anchor.
type Reference struct {
	Lat float64
	Lng float64
	At  time.Time
}

// State is everything persisted per user between samples. Missing and
// corrupt fields read as the zero values below, never as errors, so a
// process restart or a cleared hash always yields a workable state.
type State struct {
	Reference        *Reference
	TrafficCheckedAt time.Time
	RoadCheckedAt    time.Time
	LastAwardAt      time.Time
	Severity         Severity
	OnRoad           bool
	Snapped          *LatLng
	Stuck            bool
}

// Store keeps one Redis hash per user under session:{userID}.
type Store struct {
	redis *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{redis: client}
}

func sessionKey(userID string) string {
	return "session:" + userID
}

func (s *Store) Load(ctx context.Context, userID string) (State, error) {
	st := State{Severity: SeverityUnknown}

	fields, err := s.redis.HGetAll(ctx, sessionKey(userID)).Result()
	if err != nil {
		return st, err
	}

	st.Severity = ParseSeverity(fields["severity"])
	st.OnRoad = fields["on_road"] == "1"
	st.Stuck = fields["stuck"] == "1"

	if lat, okLat := parseFloat(fields["ref_lat"]); okLat {
		if lng, okLng := parseFloat(fields["ref_lng"]); okLng {
			if at, okAt := parseMillis(fields["ref_at"]); okAt {
				st.Reference = &Reference{Lat: lat, Lng: lng, At: at}
			}
		}
	}
	if at, ok := parseMillis(fields["traffic_checked_at"]); ok {
		st.TrafficCheckedAt = at
	}
	if at, ok := parseMillis(fields["road_checked_at"]); ok {
		st.RoadCheckedAt = at
	}
	if at, ok := parseMillis(fields["award_at"]); ok {
		st.LastAwardAt = at
	}
	if lat, okLat := parseFloat(fields["snap_lat"]); okLat {
		if lng, okLng := parseFloat(fields["snap_lng"]); okLng {
			st.Snapped = &LatLng{Lat: lat, Lng: lng}
		}
	}
	return st, nil
}

func (s *Store) SaveReference(ctx context.Context, userID string, ref Reference) error {
	return s.redis.HSet(ctx, sessionKey(userID),
		"ref_lat", formatFloat(ref.Lat),
		"ref_lng", formatFloat(ref.Lng),
		"ref_at", formatMillis(ref.At),
	).Err()
}

func (s *Store) SaveSeverity(ctx context.Context, userID string, severity Severity) error {
	return s.redis.HSet(ctx, sessionKey(userID), "severity", string(severity)).Err()
}

func (s *Store) SaveTrafficCheckedAt(ctx context.Context, userID string, at time.Time) error {
	return s.redis.HSet(ctx, sessionKey(userID), "traffic_checked_at", formatMillis(at)).Err()
}

func (s *Store) SaveRoadCheckedAt(ctx context.Context, userID string, at time.Time) error {
	return s.redis.HSet(ctx, sessionKey(userID), "road_checked_at", formatMillis(at)).Err()
}

// SaveRoadResult persists the on-road flag and the snapped coordinate;
// a nil snap clears any previous one.
func (s *Store) SaveRoadResult(ctx context.Context, userID string, onRoad bool, snapped *LatLng) error {
	key := sessionKey(userID)
	if snapped == nil {
		if err := s.redis.HDel(ctx, key, "snap_lat", "snap_lng").Err(); err != nil {
			return err
		}
		return s.redis.HSet(ctx, key, "on_road", formatBool(onRoad)).Err()
	}
	return s.redis.HSet(ctx, key,
		"on_road", formatBool(onRoad),
		"snap_lat", formatFloat(snapped.Lat),
		"snap_lng", formatFloat(snapped.Lng),
	).Err()
}

func (s *Store) SaveAwardAt(ctx context.Context, userID string, at time.Time) error {
	return s.redis.HSet(ctx, sessionKey(userID), "award_at", formatMillis(at)).Err()
}

func (s *Store) SaveStuck(ctx context.Context, userID string, stuck bool) error {
	return s.redis.HSet(ctx, sessionKey(userID), "stuck", formatBool(stuck)).Err()
}

// Reset drops the whole session hash.
func (s *Store) Reset(ctx context.Context, userID string) error {
	return s.redis.Del(ctx, sessionKey(userID)).Err()
}

func parseFloat(v string) (float64, bool) {
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseMillis(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
