package stores

import "time"

// Fixed datasets served in demo mode. Positions are around Lima.

func ptr[T any](v T) *T { return &v }

func demoVehicles(companyID string) []Vehicle {
	return []Vehicle{
		{ID: "demo-vehicle-1", CompanyID: companyID, Plate: "ABC-123", Brand: "Volvo", Model: "FH16", Year: 2021,
			Type: "truck", Capacity: 18000, Status: VehicleInTransit, DriverID: ptr("demo-driver-1"),
			Latitude: ptr(-12.0464), Longitude: ptr(-77.0428), Speed: ptr(12.5), Heading: ptr(90.0), IsActive: true},
		{ID: "demo-vehicle-2", CompanyID: companyID, Plate: "DEF-456", Brand: "Mercedes-Benz", Model: "Sprinter", Year: 2022,
			Type: "van", Capacity: 1500, Status: VehicleAvailable,
			Latitude: ptr(-12.1211), Longitude: ptr(-77.0297), IsActive: true},
		{ID: "demo-vehicle-3", CompanyID: companyID, Plate: "GHI-789", Brand: "Hino", Model: "300", Year: 2019,
			Type: "truck", Capacity: 4500, Status: VehicleMaintenance, IsActive: true},
	}
}

func demoDrivers(companyID string, now time.Time) []Driver {
	today := DateOf(now)
	return []Driver{
		{ID: "demo-driver-1", CompanyID: companyID, FirstName: "Carlos", LastName: "Quispe", DocumentNumber: "45871236",
			LicenseNumber: "Q45871236", LicenseCategory: "A-IIIc", LicenseExpiry: DateOf(today.AddDate(1, 0, 0)),
			Phone: "+51987654321", VehicleID: "demo-vehicle-1", IsActive: true},
		{ID: "demo-driver-2", CompanyID: companyID, FirstName: "María", LastName: "Flores", DocumentNumber: "41236987",
			LicenseNumber: "F41236987", LicenseCategory: "A-IIb", LicenseExpiry: DateOf(today.AddDate(0, 0, 20)),
			IsActive: true},
		{ID: "demo-driver-3", CompanyID: companyID, FirstName: "Jorge", LastName: "Huamán", DocumentNumber: "40125874",
			LicenseNumber: "H40125874", LicenseCategory: "A-IIIb", LicenseExpiry: DateOf(today.AddDate(0, -2, 0)),
			IsActive: true},
	}
}

func demoRoutes(companyID string) []Route {
	return []Route{
		{ID: "demo-route-1", CompanyID: companyID, Name: "Lima - Callao", VehicleID: "demo-vehicle-1", DriverID: "demo-driver-1",
			Status: RouteInProgress, Origin: Waypoint{Name: "Almacén Central", Latitude: -12.0464, Longitude: -77.0428},
			Destination: Waypoint{Name: "Puerto del Callao", Latitude: -12.0500, Longitude: -77.1450},
			Progress:    35, DistanceRemaining: 7200, TimeRemaining: 1500},
		{ID: "demo-route-2", CompanyID: companyID, Name: "Lima - Miraflores", Status: RoutePlanned,
			Origin:      Waypoint{Name: "Almacén Central", Latitude: -12.0464, Longitude: -77.0428},
			Destination: Waypoint{Name: "Tienda Miraflores", Latitude: -12.1211, Longitude: -77.0297}},
	}
}

func demoPositions(warehouseID string) []WarehousePosition {
	return []WarehousePosition{
		{ID: "demo-pos-a1", WarehouseID: warehouseID, Code: "A-01-01", Zone: "A", Aisle: "01", Rack: "01", Level: "1",
			ProductID: ptr("demo-product-1"), Quantity: 120, Capacity: 200, IsActive: true},
		{ID: "demo-pos-a2", WarehouseID: warehouseID, Code: "A-01-02", Zone: "A", Aisle: "01", Rack: "02", Level: "1",
			Capacity: 200, IsActive: true},
		{ID: "demo-pos-b1", WarehouseID: warehouseID, Code: "B-02-01", Zone: "B", Aisle: "02", Rack: "01", Level: "2",
			Capacity: 80, IsActive: true},
	}
}

func demoStock(productID string) []StockLevel {
	return []StockLevel{
		{WarehouseID: "demo-warehouse-1", WarehouseName: "Almacén Central", Quantity: 120, Reserved: 15, MinStock: 20},
		{WarehouseID: "demo-warehouse-2", WarehouseName: "Almacén Norte", Quantity: 40, MinStock: 10},
	}
}

func demoRates(companyID string, now time.Time) []ExchangeRate {
	today := DateOf(now)
	return []ExchangeRate{
		{ID: "demo-rate-usd-pen", CompanyID: companyID, FromCurrency: "USD", ToCurrency: "PEN", Rate: 3.75, Date: today, Source: "SBS"},
		{ID: "demo-rate-pen-usd", CompanyID: companyID, FromCurrency: "PEN", ToCurrency: "USD", Rate: 0.266667, Date: today,
			Source: "SBS", InverseOf: ptr("demo-rate-usd-pen")},
		{ID: "demo-rate-eur-pen", CompanyID: companyID, FromCurrency: "EUR", ToCurrency: "PEN", Rate: 4.05, Date: today, Source: "SBS"},
	}
}
