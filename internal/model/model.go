package model

// Roles assigned by the backend.
const (
	RoleStudent = "student"
	RoleDriver  = "driver"
	RoleAdmin   = "admin"
)

type User struct {
	ID        int     `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Avatar    *string `json:"avatar"`
	Role      string  `json:"role"`
	Phone     string  `json:"phone"`
}

// FullName is the display name used when announcing a driver.
func (u User) FullName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Username
	}
	return u.FirstName + " " + u.LastName
}

type Student struct {
	ID        int      `json:"id"`
	User      User     `json:"user"`
	StudentID string   `json:"student_id"`
	HomeLat   *float64 `json:"home_lat"`
	HomeLon   *float64 `json:"home_lon"`
	BusID     *int     `json:"bus_id"`
}

type Driver struct {
	ID         int    `json:"id"`
	User       User   `json:"user"`
	EmployeeID string `json:"employee_id"`
	LicenseID  string `json:"license_id"`
}

type Bus struct {
	ID                 int     `json:"id"`
	Name               string  `json:"name"`
	RegistrationNumber string  `json:"registration_number"`
	DriverID           *int    `json:"driver_id"`
	Driver             *Driver `json:"driver,omitempty"`
	Capacity           *int    `json:"capacity"`
	IsActive           bool    `json:"is_active"`
	Route              *Route  `json:"route,omitempty"`
}

// Route is a static polyline the bus follows. Path points are [lng, lat]
// pairs, matching the GeoJSON coordinate order the map layer expects.
type Route struct {
	ID       int          `json:"id"`
	RouteStr string       `json:"route_str"`
	Path     [][2]float64 `json:"path"`
}

// BusLocation is the single most recent position published for a bus.
// Timestamp is client-clock epoch millis; Speed is km/h.
type BusLocation struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp int64   `json:"timestamp"`
	Heading   float64 `json:"heading"`
	Speed     float64 `json:"speed"`
}

// ActiveStatus is stored independently of location, keyed per bus.
type ActiveStatus struct {
	IsActive    bool  `json:"isActive"`
	LastUpdated int64 `json:"lastUpdated"`
}

// BusDriver is the identity announced once per tracking session.
type BusDriver struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Profile is the cached {user, student, driver} blob persisted alongside
// the session token.
type Profile struct {
	User    *User    `json:"user"`
	Student *Student `json:"student,omitempty"`
	Driver  *Driver  `json:"driver,omitempty"`
}
