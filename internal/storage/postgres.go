package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/org/dealership/pkg/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresBackend is a Store backed by PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend opens a pgxpool connection and returns a ready backend.
func NewPostgresBackend(ctx context.Context, connStr string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func (p *PostgresBackend) Close() {
	p.pool.Close()
}

// mapErr translates driver errors into the package sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrAlreadyExists, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrInvalidReference, pgErr.ConstraintName)
		}
	}
	return err
}

// execOne runs a statement that must touch exactly one row.
func (p *PostgresBackend) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Principals ---

const principalColumns = `id, name, email, password_hash, created_at`

func scanPrincipal(row pgx.Row) (*models.Principal, error) {
	var pr models.Principal
	if err := row.Scan(&pr.ID, &pr.Name, &pr.Email, &pr.PasswordHash, &pr.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &pr, nil
}

func (p *PostgresBackend) FindPrincipalByEmail(ctx context.Context, email string) (*models.Principal, error) {
	return scanPrincipal(p.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE email = $1`, email))
}

func (p *PostgresBackend) CreatePrincipal(ctx context.Context, pr *models.Principal) error {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO principals (name, email, password_hash) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		pr.Name, pr.Email, pr.PasswordHash,
	).Scan(&pr.ID, &pr.CreatedAt)
	return mapErr(err)
}

func (p *PostgresBackend) GetPrincipal(ctx context.Context, id int64) (*models.Principal, error) {
	return scanPrincipal(p.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = $1`, id))
}

func (p *PostgresBackend) ListPrincipals(ctx context.Context) ([]*models.Principal, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+principalColumns+` FROM principals ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Principal
	for rows.Next() {
		pr, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (p *PostgresBackend) UpdatePrincipal(ctx context.Context, pr *models.Principal) error {
	return p.execOne(ctx,
		`UPDATE principals SET name = $2, email = $3, password_hash = $4 WHERE id = $1`,
		pr.ID, pr.Name, pr.Email, pr.PasswordHash)
}

func (p *PostgresBackend) DeletePrincipal(ctx context.Context, id int64) error {
	return p.execOne(ctx, `DELETE FROM principals WHERE id = $1`, id)
}

// --- Customers ---

const customerColumns = `id, name, ident_document, birth_date, street_name, house_number, complements,
	neighborhood, municipality, state, phone, email`

func scanCustomer(row pgx.Row) (*models.Customer, error) {
	var c models.Customer
	var birth *time.Time
	if err := row.Scan(&c.ID, &c.Name, &c.IdentDocument, &birth, &c.StreetName, &c.HouseNumber,
		&c.Complements, &c.Neighborhood, &c.Municipality, &c.State, &c.Phone, &c.Email); err != nil {
		return nil, mapErr(err)
	}
	c.BirthDate = models.DateFromPtr(birth)
	return &c, nil
}

func (p *PostgresBackend) CreateCustomer(ctx context.Context, c *models.Customer) error {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO customers (name, ident_document, birth_date, street_name, house_number, complements,
			neighborhood, municipality, state, phone, email)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		c.Name, c.IdentDocument, c.BirthDate.Ptr(), c.StreetName, c.HouseNumber, c.Complements,
		c.Neighborhood, c.Municipality, c.State, c.Phone, c.Email,
	).Scan(&c.ID)
	return mapErr(err)
}

func (p *PostgresBackend) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	return scanCustomer(p.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

func (p *PostgresBackend) ListCustomers(ctx context.Context) ([]*models.Customer, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresBackend) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	return p.execOne(ctx,
		`UPDATE customers SET name = $2, ident_document = $3, birth_date = $4, street_name = $5,
			house_number = $6, complements = $7, neighborhood = $8, municipality = $9, state = $10,
			phone = $11, email = $12
		 WHERE id = $1`,
		c.ID, c.Name, c.IdentDocument, c.BirthDate.Ptr(), c.StreetName, c.HouseNumber, c.Complements,
		c.Neighborhood, c.Municipality, c.State, c.Phone, c.Email)
}

func (p *PostgresBackend) DeleteCustomer(ctx context.Context, id int64) error {
	return p.execOne(ctx, `DELETE FROM customers WHERE id = $1`, id)
}

// --- Sales staff ---

const salespersonColumns = `id, user_id, birth_date, ident_document, salary, phone, date_of_hire`

func scanSalesperson(row pgx.Row) (*models.Salesperson, error) {
	var s models.Salesperson
	var birth, hire *time.Time
	if err := row.Scan(&s.ID, &s.UserID, &birth, &s.IdentDocument, &s.Salary, &s.Phone, &hire); err != nil {
		return nil, mapErr(err)
	}
	s.BirthDate = models.DateFromPtr(birth)
	s.DateOfHire = models.DateFromPtr(hire)
	return &s, nil
}

func (p *PostgresBackend) CreateSalesperson(ctx context.Context, s *models.Salesperson) error {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO salespeople (user_id, birth_date, ident_document, salary, phone, date_of_hire)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		s.UserID, s.BirthDate.Ptr(), s.IdentDocument, s.Salary, s.Phone, s.DateOfHire.Ptr(),
	).Scan(&s.ID)
	return mapErr(err)
}

func (p *PostgresBackend) GetSalesperson(ctx context.Context, id int64) (*models.Salesperson, error) {
	return scanSalesperson(p.pool.QueryRow(ctx,
		`SELECT `+salespersonColumns+` FROM salespeople WHERE id = $1`, id))
}

func (p *PostgresBackend) ListSalespeople(ctx context.Context) ([]*models.Salesperson, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+salespersonColumns+` FROM salespeople ORDER BY birth_date, ident_document`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Salesperson
	for rows.Next() {
		s, err := scanSalesperson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresBackend) UpdateSalesperson(ctx context.Context, s *models.Salesperson) error {
	return p.execOne(ctx,
		`UPDATE salespeople SET user_id = $2, birth_date = $3, ident_document = $4, salary = $5,
			phone = $6, date_of_hire = $7
		 WHERE id = $1`,
		s.ID, s.UserID, s.BirthDate.Ptr(), s.IdentDocument, s.Salary, s.Phone, s.DateOfHire.Ptr())
}

func (p *PostgresBackend) DeleteSalesperson(ctx context.Context, id int64) error {
	return p.execOne(ctx, `DELETE FROM salespeople WHERE id = $1`, id)
}

// --- Cars ---

const carColumns = `id, brand, model, color, year_manufacture, imported, plates, selling_date,
	selling_price, customer_id`

func scanCar(row pgx.Row) (*models.Car, error) {
	var c models.Car
	var made, sold *time.Time
	if err := row.Scan(&c.ID, &c.Brand, &c.Model, &c.Color, &made, &c.Imported, &c.Plates, &sold,
		&c.SellingPrice, &c.CustomerID); err != nil {
		return nil, mapErr(err)
	}
	c.YearManufacture = models.DateFromPtr(made)
	c.SellingDate = models.DateFromPtr(sold)
	return &c, nil
}

func (p *PostgresBackend) CreateCar(ctx context.Context, c *models.Car) error {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO cars (brand, model, color, year_manufacture, imported, plates, selling_date,
			selling_price, customer_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		c.Brand, c.Model, c.Color, c.YearManufacture.Ptr(), c.Imported, c.Plates, c.SellingDate.Ptr(),
		c.SellingPrice, c.CustomerID,
	).Scan(&c.ID)
	return mapErr(err)
}

func (p *PostgresBackend) GetCar(ctx context.Context, id int64) (*models.Car, error) {
	return scanCar(p.pool.QueryRow(ctx, `SELECT `+carColumns+` FROM cars WHERE id = $1`, id))
}

func (p *PostgresBackend) ListCars(ctx context.Context) ([]*models.Car, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+carColumns+` FROM cars ORDER BY brand, model, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Car
	for rows.Next() {
		c, err := scanCar(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresBackend) UpdateCar(ctx context.Context, c *models.Car) error {
	return p.execOne(ctx,
		`UPDATE cars SET brand = $2, model = $3, color = $4, year_manufacture = $5, imported = $6,
			plates = $7, selling_date = $8, selling_price = $9, customer_id = $10
		 WHERE id = $1`,
		c.ID, c.Brand, c.Model, c.Color, c.YearManufacture.Ptr(), c.Imported, c.Plates,
		c.SellingDate.Ptr(), c.SellingPrice, c.CustomerID)
}

func (p *PostgresBackend) DeleteCar(ctx context.Context, id int64) error {
	return p.execOne(ctx, `DELETE FROM cars WHERE id = $1`, id)
}

// --- Audit ---

func (p *PostgresBackend) WriteAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO audit_log (request_id, timestamp, principal_id, method, path, decision, reason,
			response_code, response_time_ms, client_ip)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.RequestID, entry.Timestamp, entry.PrincipalID, entry.Method, entry.Path, entry.Decision,
		entry.Reason, entry.ResponseCode, entry.ResponseTimeMs, entry.ClientIP,
	)
	return err
}

func (p *PostgresBackend) QueryAuditLog(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, request_id::text, timestamp, principal_id, method, path, decision, reason,
		response_code, response_time_ms, client_ip FROM audit_log WHERE 1=1`)
	args := []any{}
	n := 1
	if filter.Path != "" {
		fmt.Fprintf(&query, ` AND path LIKE $%d`, n)
		args = append(args, filter.Path+"%")
		n++
	}
	if filter.Since != nil {
		fmt.Fprintf(&query, ` AND timestamp >= $%d`, n)
		args = append(args, *filter.Since)
		n++
	}
	query.WriteString(` ORDER BY timestamp DESC, id DESC`)
	if filter.Limit > 0 {
		fmt.Fprintf(&query, ` LIMIT $%d`, n)
		args = append(args, filter.Limit)
		n++
	}
	if filter.Offset > 0 {
		fmt.Fprintf(&query, ` OFFSET $%d`, n)
		args = append(args, filter.Offset)
	}

	rows, err := p.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Timestamp, &e.PrincipalID, &e.Method, &e.Path,
			&e.Decision, &e.Reason, &e.ResponseCode, &e.ResponseTimeMs, &e.ClientIP); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
