package domain

import "context"

// Geocoder resolves a free-text address through an external provider.
type Geocoder interface {
	// Geocode returns the coordinates of the most relevant match. ok is false
	// when the provider has no match for the address.
	Geocode(ctx context.Context, address string) (point Point, ok bool, err error)
}

// PlaceCache persists address resolutions between runs.
type PlaceCache interface {
	// GetPlace looks up a place by normalized address. found is false on a miss.
	GetPlace(ctx context.Context, address string) (place Place, found bool, err error)

	// PutPlace inserts or replaces the place for place.Address.
	PutPlace(ctx context.Context, place Place) error
}
