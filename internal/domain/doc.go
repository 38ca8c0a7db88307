// Package domain models the star-burger ordering core: products, restaurant
// menus, customer orders, and the matching of orders to restaurants that can
// cook them.
//
// # Matching
//
// A restaurant can fulfil an order when every distinct product on the order
// is on its menu and marked available. Quantities do not matter. See
// [IsEligible].
//
// Eligible restaurants are ranked by the distance from the delivery address
// to the restaurant address:
//
//	delivery address ──Resolve──▶ Point ─┐
//	                                     ├─ Distance (km, 3 decimals)
//	restaurant address ─Resolve─▶ Point ─┘
//
// # Coordinates
//
// Addresses are resolved by [Resolver], which consults a persistent
// [PlaceCache] before calling the external [Geocoder]. A cached place with both
// coordinates is reused forever. A failed lookup is written back without
// coordinates and retried on the next miss.
//
// # Degradation
//
// Address problems never fail a ranking. An unresolvable delivery address
// yields a single [Unreachable] candidate; an unresolvable restaurant address
// keeps the restaurant in the list as [Unreachable] with an infinite distance
// so it sorts last. Only storage errors escape [Ranker.Rank].
//
// # Rendering
//
// Candidates render for the manager report as
//
//	"Star Burger Arbat, 1.278 км."
//	"Star Burger Taganka (ошибка определения координат), -"
package domain
