package domain

// Vehicle is a recommendation item returned by the gateway. Ranking and
// filtering happen on the gateway side; this service only carries the
// results through.
type Vehicle struct {
	ID           int     `json:"id"`
	Make         string  `json:"make"`
	Model        string  `json:"model"`
	Year         int     `json:"year"`
	Price        float64 `json:"price"`
	Mileage      int     `json:"mileage"`
	FuelType     string  `json:"fuelType"`
	VehicleType  string  `json:"vehicleType"`
	Transmission string  `json:"transmission,omitempty"`
	ImageURL     string  `json:"imageUrl,omitempty"`
}
