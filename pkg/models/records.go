package models

// Customer is a buyer of cars.
type Customer struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	IdentDocument string  `json:"ident_document"`
	BirthDate     Date    `json:"birth_date"`
	StreetName    string  `json:"street_name"`
	HouseNumber   string  `json:"house_number"`
	Complements   *string `json:"complements"`
	Neighborhood  string  `json:"neighborhood"`
	Municipality  string  `json:"municipality"`
	State         string  `json:"state"`
	Phone         string  `json:"phone"`
	Email         string  `json:"email"`
}

// Salesperson is a member of the sales staff, linked to a principal.
type Salesperson struct {
	ID            int64   `json:"id"`
	UserID        int64   `json:"user_id"`
	BirthDate     Date    `json:"birth_date"`
	IdentDocument string  `json:"ident_document"`
	Salary        float64 `json:"salary"`
	Phone         string  `json:"phone"`
	DateOfHire    Date    `json:"date_of_hire"`
}

// Car is a vehicle in stock or sold to a customer.
type Car struct {
	ID              int64    `json:"id"`
	Brand           string   `json:"brand"`
	Model           string   `json:"model"`
	Color           string   `json:"color"`
	YearManufacture Date     `json:"year_manufacture"`
	Imported        bool     `json:"imported"`
	Plates          string   `json:"plates"`
	SellingDate     Date     `json:"selling_date"`
	SellingPrice    *float64 `json:"selling_price"`
	CustomerID      *int64   `json:"customer_id"`
}
