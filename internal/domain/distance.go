package domain

import (
	"math"

	"github.com/jftuga/geodist"
)

// Distance returns the ellipsoidal distance between a and b in kilometers,
// rounded to three decimals.
func Distance(a, b Point) float64 {
	from := geodist.Coord{Lat: a.Lat, Lon: a.Lng}
	to := geodist.Coord{Lat: b.Lat, Lon: b.Lng}

	_, km, err := geodist.VincentyDistance(from, to)
	if err != nil {
		// Vincenty does not converge for nearly antipodal points.
		_, km = geodist.HaversineDistance(from, to)
	}
	return math.Round(km*1000) / 1000
}
