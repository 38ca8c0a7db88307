package domain

import (
	"math"
	"strconv"
)

const (
	// AddressErrorLabel marks an order whose delivery address cannot be geocoded.
	AddressErrorLabel = "Ошибка определения координат"

	distanceUnit = "км."
)

// Candidate is one line of an order's ranked restaurant list: either
// [Eligible] or [Unreachable].
type Candidate interface {
	// Distance is the delivery distance in kilometers, +Inf when unknown.
	Distance() float64
	// String renders the candidate for the manager report.
	String() string

	isCandidate()
}

// Eligible is a restaurant that can cook the order at a known distance.
type Eligible struct {
	RestaurantID int64
	Name         string
	DistanceKm   float64
}

func (e Eligible) Distance() float64 { return e.DistanceKm }

func (e Eligible) String() string {
	return e.Name + ", " + strconv.FormatFloat(e.DistanceKm, 'f', -1, 64) + " " + distanceUnit
}

func (Eligible) isCandidate() {}

// Unreachable is a candidate without a distance. RestaurantID is zero when the
// order's own address is the one that failed.
type Unreachable struct {
	RestaurantID int64
	Label        string
}

func (Unreachable) Distance() float64 { return math.Inf(1) }

func (u Unreachable) String() string { return u.Label + ", -" }

func (Unreachable) isCandidate() {}

// unreachableRestaurant labels a restaurant whose address cannot be geocoded.
func unreachableRestaurant(r Restaurant) Unreachable {
	return Unreachable{
		RestaurantID: r.ID,
		Label:        r.Name + " (ошибка определения координат)",
	}
}

// CandidateRestaurantID returns the restaurant behind a candidate, or zero for
// the order-level sentinel.
func CandidateRestaurantID(c Candidate) int64 {
	switch v := c.(type) {
	case Eligible:
		return v.RestaurantID
	case Unreachable:
		return v.RestaurantID
	}
	return 0
}
