package models

// Client represents an АЗС network known to Palantír
type Client struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TerminalInfo describes a single terminal (station site) of a client
type TerminalInfo struct {
	ClientName string  `json:"client_name"`
	TerminalID int64   `json:"terminal_id"`
	Address    string  `json:"adress"` // spelled this way by the backend
	Phone      string  `json:"phone"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// HasLocation reports whether the backend returned coordinates for the terminal
func (t TerminalInfo) HasLocation() bool {
	return t.Latitude != 0 || t.Longitude != 0
}

// Station is one entry of a client's АЗС listing
type Station struct {
	TerminalID int64  `json:"terminal_id"`
	Name       string `json:"name"`
}

// Reservoir is a fuel tank at a terminal
type Reservoir struct {
	TankID      int64   `json:"tank_id"`
	FuelName    string  `json:"fuel_name"`
	Volume      float64 `json:"volume"`
	Capacity    float64 `json:"capacity"`
	Level       float64 `json:"level"`
	Temperature float64 `json:"temperature"`
}

// Dispenser is a PRK (fuel dispenser) configured at a terminal
type Dispenser struct {
	DispenserID int64    `json:"prk_id"`
	Model       string   `json:"model"`
	Protocol    string   `json:"protocol"`
	Nozzles     int      `json:"nozzles"`
	Fuels       []string `json:"fuels"`
}

// PosData is an RRO (fiscal register / point of sale) at a terminal
type PosData struct {
	PosID         int64  `json:"pos_id"`
	Model         string `json:"model"`
	FactoryNumber string `json:"factory_number"`
	RegNumber     string `json:"reg_number"`
	Status        string `json:"status"`
}

// UserRecord is an approved bot user with an optional human-readable note
type UserRecord struct {
	ID         int64
	Annotation string
}
