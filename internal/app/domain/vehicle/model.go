package vehicle

import "time"

// Vehicle is a listing a renter can book by the day.
type Vehicle struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	Year         int       `json:"year"`
	VehicleType  string    `json:"vehicle_type"` // car, scooter, golf-cart, boat
	Island       string    `json:"island"`
	Description  string    `json:"description"`
	PricePerDay  float64   `json:"price_per_day"`
	PhotoURLs    []string  `json:"photo_urls"`
	Available    bool      `json:"available"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SearchFilter narrows a vehicle search. Zero values mean "any".
type SearchFilter struct {
	Island      string
	VehicleType string
	MinPrice    float64
	MaxPrice    float64
	// When both are set, only vehicles free over [Start, End) are returned.
	Start time.Time
	End   time.Time
}
