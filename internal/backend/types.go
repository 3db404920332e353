package backend

// ArduinoDevice is a registered device as reported by the data store.
type ArduinoDevice struct {
	ArduinoID int    `json:"arduino_id"`
	IPAddress string `json:"ip_address"`
	Location  string `json:"location"`
	Status    string `json:"status"`
}

// Sensor is a single sensor attached to a device.
type Sensor struct {
	SensorID    int     `json:"sensor_id"`
	ArduinoID   int     `json:"arduino_id"`
	SensorType  string  `json:"sensor_type"`
	SensorRange float64 `json:"sensor_range"`
	Status      string  `json:"status"`
}

// SensorTypeUltrasonic is the only sensor type the bridge routes readings to.
const SensorTypeUltrasonic = "ultrasonic"

// Availability is the slot/hold aggregate computed by the data store.
type Availability struct {
	TotalSlots          int `json:"totalSlots"`
	AvailableSlots      int `json:"availableSlots"`
	OccupiedSlots       int `json:"occupiedSlots"`
	MaintenanceSlots    int `json:"maintenanceSlots"`
	PendingHolds        int `json:"pendingHolds"`
	CompletedHolds      int `json:"completedHolds"`
	AvailableForHolding int `json:"availableForHolding"`
}

// Service is a parking service record, matched by vehicle type.
type Service struct {
	ServiceID   int     `json:"service_id"`
	ServiceName string  `json:"service_name"`
	VehicleType string  `json:"vehicle_type"`
	Price       float64 `json:"price"`
}

// User is the data store's user record, keyed by plate number.
type User struct {
	UserID      int    `json:"user_id"`
	PlateNumber string `json:"plate_number"`
	ServiceID   *int   `json:"service_id"`
}

// HoldPayment is a provisional reservation awaiting admin slot assignment.
type HoldPayment struct {
	HoldPaymentID int     `json:"hold_payment_id"`
	UserID        int     `json:"user_id"`
	Amount        float64 `json:"amount"`
	PaymentMethod string  `json:"payment_method"`
}

// HoldPaymentResult is the create-hold response; the data store may attach a
// fresh availability snapshot.
type HoldPaymentResult struct {
	HoldPayment  HoldPayment
	Availability *Availability
}
