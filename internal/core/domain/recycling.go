package domain

// RecyclingCenter is an entry of the read-only catalogue offered to recycle jobs.
type RecyclingCenter struct {
	ID      string  `json:"id" yaml:"id"`
	Name    string  `json:"name" yaml:"name"`
	Address string  `json:"address" yaml:"address"`
	Lat     float64 `json:"lat" yaml:"lat"`
	Lng     float64 `json:"lng" yaml:"lng"`
}

func (c RecyclingCenter) Location() Location {
	return Location{Address: c.Address, Lat: c.Lat, Lng: c.Lng}
}
