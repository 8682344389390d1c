package devserver

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/abdullahnizamani/Bus-Tracking-App/internal/model"
)

// SeedFixtures populates a store with a student, a driver, and two buses
// on the H-12 campus route. Passwords are "password123" for both accounts.
func SeedFixtures(store *Store) error {
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	capacity := 40
	driverID := 10
	busID := 42

	route := &model.Route{
		ID:       1,
		RouteStr: "H-12 Gate 1 - Kashmir Highway - Faizabad",
		Path: [][2]float64{
			{72.9910, 33.6420},
			{73.0479, 33.6844},
			{73.0838, 33.6616},
		},
	}

	driverUser := model.User{
		ID:        2,
		Username:  "driver1",
		Email:     "driver1@example.com",
		FirstName: "Asad",
		LastName:  "Khan",
		Role:      model.RoleDriver,
		Phone:     "+92-300-1234567",
	}
	store.AddAccount(Account{
		User:         driverUser,
		PasswordHash: hash,
		Driver: &model.Driver{
			ID:         driverID,
			User:       driverUser,
			EmployeeID: "EMP-10",
			LicenseID:  "LIC-2209",
		},
	})

	studentUser := model.User{
		ID:        1,
		Username:  "student1",
		Email:     "student1@example.com",
		FirstName: "Sara",
		LastName:  "Ahmed",
		Role:      model.RoleStudent,
		Phone:     "+92-321-7654321",
	}
	homeLat, homeLon := 33.6616, 73.0838
	store.AddAccount(Account{
		User:         studentUser,
		PasswordHash: hash,
		Student: &model.Student{
			ID:        5,
			User:      studentUser,
			StudentID: "STD-2021-114",
			HomeLat:   &homeLat,
			HomeLon:   &homeLon,
			BusID:     &busID,
		},
	})

	store.AddBus(model.Bus{
		ID:                 busID,
		Name:               "Route 3 Morning",
		RegistrationNumber: "ICT-4821",
		DriverID:           &driverID,
		Capacity:           &capacity,
		Route:              route,
	})
	store.AddBus(model.Bus{
		ID:                 43,
		Name:               "Route 7 Evening",
		RegistrationNumber: "ICT-5130",
		Capacity:           &capacity,
	})
	return nil
}
