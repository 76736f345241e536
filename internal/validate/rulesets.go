package validate

import (
	"time"

	"github.com/org/dealership/pkg/models"
)

// DefaultHireEpoch is the earliest hire date accepted for sales staff.
var DefaultHireEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// RulesConfig parameterizes the business rules that are not fixed constants.
type RulesConfig struct {
	HireEpoch time.Time
}

// Rules holds the rule set of every entity kind. Build it once at startup.
type Rules struct {
	Customer     *RuleSet[models.Customer]
	Salesperson  *RuleSet[models.Salesperson]
	Car          *RuleSet[models.Car]
	Registration *RuleSet[models.Registration]
}

// NewRules builds the rule sets.
func NewRules(cfg RulesConfig) *Rules {
	if cfg.HireEpoch.IsZero() {
		cfg.HireEpoch = DefaultHireEpoch
	}
	return &Rules{
		Customer:     customerRules(),
		Salesperson:  salespersonRules(cfg.HireEpoch),
		Car:          carRules(),
		Registration: registrationRules(),
	}
}

func customerRules() *RuleSet[models.Customer] {
	return NewRuleSet("customer",
		Text("name", func(c *models.Customer) *string { return &c.Name },
			MinLen(5, "must have at least 5 characters"),
			MaxLen(100, "must have at most 100 characters"),
			Contains(" ", "must separate first and last name with a space"),
		),
		Text("ident_document", func(c *models.Customer) *string { return &c.IdentDocument },
			Len(14, "is incomplete"),
			CPF("is not a valid CPF"),
		),
		OptionalDate("birth_date", func(c *models.Customer) *models.Date { return &c.BirthDate },
			MaxAge(120, "is too far in the past"),
			MinAge(18, "customer must be at least 18 years old"),
		),
		Text("street_name", func(c *models.Customer) *string { return &c.StreetName },
			MaxLen(40, "must have at most 40 characters"),
		),
		Text("house_number", func(c *models.Customer) *string { return &c.HouseNumber },
			MaxLen(10, "must have at most 10 characters"),
		),
		OptionalText("complements", func(c *models.Customer) **string { return &c.Complements },
			MaxLen(20, "must have at most 20 characters"),
		),
		Text("neighborhood", func(c *models.Customer) *string { return &c.Neighborhood },
			MaxLen(30, "must have at most 30 characters"),
		),
		Text("municipality", func(c *models.Customer) *string { return &c.Municipality },
			MaxLen(40, "must have at most 40 characters"),
		),
		Text("state", func(c *models.Customer) *string { return &c.State },
			Len(2, "must have exactly 2 characters"),
		),
		Text("phone", func(c *models.Customer) *string { return &c.Phone },
			Len(15, "is incomplete"),
		).Strip("_"),
		Text("email", func(c *models.Customer) *string { return &c.Email },
			MaxLen(254, "must have at most 254 characters"),
			Email("is not a valid e-mail address"),
		).Lower(),
	)
}

func salespersonRules(hireEpoch time.Time) *RuleSet[models.Salesperson] {
	return NewRuleSet("salesperson",
		Reference("user_id", func(s *models.Salesperson) *int64 { return &s.UserID },
			AtLeast(int64(1), "must be a positive identifier"),
		),
		Date("birth_date", func(s *models.Salesperson) *models.Date { return &s.BirthDate },
			MaxAge(120, "is too far in the past"),
			MinAge(18, "salesperson must be at least 18 years old"),
		),
		Text("ident_document", func(s *models.Salesperson) *string { return &s.IdentDocument },
			Len(14, "is incomplete"),
			CPF("is not a valid CPF"),
		),
		Number("salary", func(s *models.Salesperson) *float64 { return &s.Salary },
			Between(1500.0, 20000.0, "must be between 1500.00 and 20000.00"),
		),
		Text("phone", func(s *models.Salesperson) *string { return &s.Phone },
			Len(15, "is incomplete"),
		).Strip("_"),
		Date("date_of_hire", func(s *models.Salesperson) *models.Date { return &s.DateOfHire },
			NotBefore(hireEpoch, "must not be before "+hireEpoch.Format(models.DateLayout)),
			NotAfterNow("must not be in the future"),
		),
	)
}

func carRules() *RuleSet[models.Car] {
	return NewRuleSet("car",
		Text("brand", func(c *models.Car) *string { return &c.Brand },
			MaxLen(25, "must have at most 25 characters"),
		),
		Text("model", func(c *models.Car) *string { return &c.Model },
			MaxLen(25, "must have at most 25 characters"),
		),
		Text("color", func(c *models.Car) *string { return &c.Color },
			MinLen(4, "must have at least 4 characters"),
			MaxLen(20, "must have at most 20 characters"),
		),
		OptionalDate("year_manufacture", func(c *models.Car) *models.Date { return &c.YearManufacture },
			MaxAge(83, "is too far in the past"),
			NotAfterNow("must not be in the future"),
		),
		Text("plates", func(c *models.Car) *string { return &c.Plates },
			Len(8, "is incomplete"),
		).Strip("_"),
		OptionalDate("selling_date", func(c *models.Car) *models.Date { return &c.SellingDate },
			NotAfterNow("must not be in the future"),
		),
		OptionalNumber("selling_price", func(c *models.Car) **float64 { return &c.SellingPrice },
			AtLeast(2000.0, "must not be below 2000.00"),
			AtMost(1e15, "must not exceed 1000000000000000.00"),
		),
		OptionalReference("customer_id", func(c *models.Car) **int64 { return &c.CustomerID },
			AtLeast(int64(1), "must be a positive identifier"),
		),
	)
}

func registrationRules() *RuleSet[models.Registration] {
	return NewRuleSet("principal",
		Text("name", func(r *models.Registration) *string { return &r.Name },
			MinLen(2, "must have at least 2 characters"),
			MaxLen(80, "must have at most 80 characters"),
		),
		Text("email", func(r *models.Registration) *string { return &r.Email },
			MaxLen(254, "must have at most 254 characters"),
			Email("is not a valid e-mail address"),
		).Lower(),
		Text("password", func(r *models.Registration) *string { return &r.Password },
			MinLen(8, "must have at least 8 characters"),
			MaxBytes(72, "must have at most 72 bytes"),
		).Verbatim(),
	)
}
