package telemetry

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// coordEpsilon rejects positions indistinguishable from the 0,0 origin.
const coordEpsilon = 1e-6

// Normalize validates and cleans a batch of fixes from one frame: invalid
// positions are dropped, scalar fields are clamped to physical ranges and
// the survivors are sorted by timestamp ascending.
func Normalize(fixes []Fix) []Fix {
	out := make([]Fix, 0, len(fixes))
	for _, f := range fixes {
		if !f.Positioned {
			continue
		}
		if !ValidCoordinates(f.Latitude, f.Longitude) {
			continue
		}

		f.Speed = clamp(f.Speed, 0, 1000)
		f.Altitude = clamp(f.Altitude, -1000, 20000)
		f.Course = math.Mod(f.Course, 360)
		if f.Course < 0 {
			f.Course += 360
		}

		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	return out
}

// Consolidate applies stationary consolidation to a normalized batch:
// when every record in the batch reports speed zero, only the most recent
// is worth emitting. Mixed batches pass through unchanged.
func Consolidate(fixes []Fix) []Fix {
	if len(fixes) < 2 {
		return fixes
	}

	for _, f := range fixes {
		if f.Speed != 0 {
			return fixes
		}
	}

	// Normalize sorted ascending; the last record is the newest.
	return fixes[len(fixes)-1:]
}

// ValidCoordinates applies the coordinate sanity filters. Tracker modules
// under GPS denial emit patterned garbage that passes simple range checks;
// the textual filters catch the common fabrications.
func ValidCoordinates(lat, lon float64) bool {
	if garbageScalar(lat) || garbageScalar(lon) {
		return false
	}
	if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return false
	}
	if math.Abs(lat)+math.Abs(lon) <= coordEpsilon {
		return false
	}

	// Whole-degree graticule corners: a position whose whole degrees land
	// on a multiple of 90 latitude and 180 longitude at the same time
	// (the null-island neighbourhood and the poles) is a fabrication.
	if int64(lat)%90 == 0 && int64(lon)%180 == 0 {
		return false
	}

	if fmt.Sprintf("%.4f", lat) == fmt.Sprintf("%.4f", lon) {
		return false
	}

	text := digitsOnly(strconv.FormatFloat(lat, 'f', -1, 64) + strconv.FormatFloat(lon, 'f', -1, 64))
	if hasTripletRepetition(text) {
		return false
	}

	return true
}

// garbageScalar detects values that cannot be a measurement: float
// sentinel extremes, exact powers of two (uninitialized registers) and
// single-repeated-digit patterns.
func garbageScalar(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return true
	}

	abs := math.Abs(v)
	if abs == math.MaxFloat64 || abs == math.MaxFloat32 {
		return true
	}

	if abs != 0 {
		if frac, _ := math.Frexp(abs); frac == 0.5 {
			return true
		}
	}

	digits := digitsOnly(strconv.FormatFloat(v, 'f', -1, 64))
	if len(digits) > 1 && allSameDigit(digits) {
		return true
	}

	return false
}

// hasTripletRepetition reports whether any three-digit run is immediately
// repeated, e.g. "123123" or "777777".
func hasTripletRepetition(s string) bool {
	for i := 0; i+6 <= len(s); i++ {
		if s[i:i+3] == s[i+3:i+6] {
			return true
		}
	}
	return false
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func allSameDigit(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
