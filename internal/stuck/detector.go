package stuck

import (
	"time"

	"github.com/Zyptonix/Traffic-Rewards/internal/location"
	"github.com/Zyptonix/Traffic-Rewards/internal/session"
	"github.com/Zyptonix/Traffic-Rewards/internal/shared/geo"
)

// Thresholds tune the dual distance/time verdict.
type Thresholds struct {
	DistanceM     float64
	StationaryFor time.Duration
}

// Result of evaluating one sample against the stored reference.
type Result struct {
	Stuck bool
	// Reference after evaluation. It is replaced whenever the sample
	// moved at least DistanceM from the previous anchor, or when no
	// anchor existed yet; otherwise the old anchor is kept so the
	// stationary timer keeps accumulating.
	Reference         session.Reference
	ReferenceReplaced bool
	DistanceM         float64
	Stationary        time.Duration
}

// Evaluate classifies one sample as stuck or moving. It is a pure
// function of its inputs, so the verdict is always re-derivable from
// persisted state after a restart. Callers persist Result.Reference
// when ReferenceReplaced is set.
//
// A sample whose timestamp is not newer than the reference is a
// duplicate or out-of-order delivery. Its coordinates cannot be
// trusted to restart the stationary timer, so the reference stays put
// and the verdict is re-derived from the reference age alone.
func Evaluate(ref *session.Reference, fix location.Sample, now time.Time, th Thresholds) Result {
	if ref == nil {
		return Result{
			Reference:         session.Reference{Lat: fix.Lat, Lng: fix.Lng, At: fix.RecordedAt},
			ReferenceReplaced: true,
		}
	}

	if !fix.RecordedAt.After(ref.At) {
		stationary := now.Sub(ref.At)
		return Result{
			Stuck:      stationary >= th.StationaryFor,
			Reference:  *ref,
			Stationary: stationary,
		}
	}

	d := geo.DistanceMeters(ref.Lat, ref.Lng, fix.Lat, fix.Lng)
	if d >= th.DistanceM {
		return Result{
			Reference:         session.Reference{Lat: fix.Lat, Lng: fix.Lng, At: fix.RecordedAt},
			ReferenceReplaced: true,
			DistanceM:         d,
		}
	}

	stationary := now.Sub(ref.At)
	return Result{
		Stuck:      stationary >= th.StationaryFor,
		Reference:  *ref,
		DistanceM:  d,
		Stationary: stationary,
	}
}
