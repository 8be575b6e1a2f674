// README: Common value objects shared across modules.
package types

// ID identifies jobs and technicians across stores.
type ID string

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}
