package storage

import (
	"context"
	"errors"
	"time"

	"github.com/org/dealership/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a record collides with a unique key.
var ErrAlreadyExists = errors.New("already exists")

// ErrInvalidReference is returned when a record points at a missing record,
// or when a record that others point at is deleted.
var ErrInvalidReference = errors.New("invalid reference")

// Store defines the persistence interface of the dealership backend.
type Store interface {
	// Principals
	FindPrincipalByEmail(ctx context.Context, email string) (*models.Principal, error)
	CreatePrincipal(ctx context.Context, p *models.Principal) error
	GetPrincipal(ctx context.Context, id int64) (*models.Principal, error)
	ListPrincipals(ctx context.Context) ([]*models.Principal, error)
	UpdatePrincipal(ctx context.Context, p *models.Principal) error
	DeletePrincipal(ctx context.Context, id int64) error

	// Customers
	CreateCustomer(ctx context.Context, c *models.Customer) error
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	ListCustomers(ctx context.Context) ([]*models.Customer, error)
	UpdateCustomer(ctx context.Context, c *models.Customer) error
	DeleteCustomer(ctx context.Context, id int64) error

	// Sales staff
	CreateSalesperson(ctx context.Context, s *models.Salesperson) error
	GetSalesperson(ctx context.Context, id int64) (*models.Salesperson, error)
	ListSalespeople(ctx context.Context) ([]*models.Salesperson, error)
	UpdateSalesperson(ctx context.Context, s *models.Salesperson) error
	DeleteSalesperson(ctx context.Context, id int64) error

	// Cars
	CreateCar(ctx context.Context, c *models.Car) error
	GetCar(ctx context.Context, id int64) (*models.Car, error)
	ListCars(ctx context.Context) ([]*models.Car, error)
	UpdateCar(ctx context.Context, c *models.Car) error
	DeleteCar(ctx context.Context, id int64) error

	// Audit
	WriteAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	QueryAuditLog(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error)

	// Lifecycle
	Close()
}

// AuditFilter specifies query parameters for audit log retrieval.
type AuditFilter struct {
	Path   string
	Since  *time.Time
	Limit  int
	Offset int
}
