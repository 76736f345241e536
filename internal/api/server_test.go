package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/org/dealership/internal/auth"
	"github.com/org/dealership/internal/storage"
	"github.com/org/dealership/pkg/models"
)

// --- In-memory storage backend for tests ---

type memStore struct {
	mu          sync.Mutex
	nextID      int64
	principals  map[int64]*models.Principal
	customers   map[int64]*models.Customer
	salespeople map[int64]*models.Salesperson
	cars        map[int64]*models.Car
	audit       []*models.AuditEntry
	listCalls   int
}

func newMemStore() *memStore {
	return &memStore{
		principals:  map[int64]*models.Principal{},
		customers:   map[int64]*models.Customer{},
		salespeople: map[int64]*models.Salesperson{},
		cars:        map[int64]*models.Car{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) FindPrincipalByEmail(_ context.Context, email string) (*models.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.principals {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) emailTaken(email string, except int64) bool {
	for _, p := range m.principals {
		if p.Email == email && p.ID != except {
			return true
		}
	}
	return false
}

func (m *memStore) CreatePrincipal(_ context.Context, p *models.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emailTaken(p.Email, 0) {
		return storage.ErrAlreadyExists
	}
	p.ID = m.id()
	p.CreatedAt = time.Now().UTC()
	cp := *p
	m.principals[p.ID] = &cp
	return nil
}

func (m *memStore) GetPrincipal(_ context.Context, id int64) (*models.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListPrincipals(context.Context) ([]*models.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Principal
	for _, p := range m.principals {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) UpdatePrincipal(_ context.Context, p *models.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.principals[p.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if m.emailTaken(p.Email, p.ID) {
		return storage.ErrAlreadyExists
	}
	cp := *p
	cp.CreatedAt = old.CreatedAt
	m.principals[p.ID] = &cp
	return nil
}

func (m *memStore) DeletePrincipal(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.principals[id]; !ok {
		return storage.ErrNotFound
	}
	for _, s := range m.salespeople {
		if s.UserID == id {
			return storage.ErrInvalidReference
		}
	}
	delete(m.principals, id)
	return nil
}

func (m *memStore) CreateCustomer(_ context.Context, c *models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.customers {
		if x.IdentDocument == c.IdentDocument {
			return storage.ErrAlreadyExists
		}
	}
	c.ID = m.id()
	cp := *c
	m.customers[c.ID] = &cp
	return nil
}

func (m *memStore) GetCustomer(_ context.Context, id int64) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListCustomers(context.Context) ([]*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []*models.Customer
	for _, c := range m.customers {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) UpdateCustomer(_ context.Context, c *models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[c.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *c
	m.customers[c.ID] = &cp
	return nil
}

func (m *memStore) DeleteCustomer(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[id]; !ok {
		return storage.ErrNotFound
	}
	for _, car := range m.cars {
		if car.CustomerID != nil && *car.CustomerID == id {
			car.CustomerID = nil
		}
	}
	delete(m.customers, id)
	return nil
}

func (m *memStore) CreateSalesperson(_ context.Context, s *models.Salesperson) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.principals[s.UserID]; !ok {
		return storage.ErrInvalidReference
	}
	s.ID = m.id()
	cp := *s
	m.salespeople[s.ID] = &cp
	return nil
}

func (m *memStore) GetSalesperson(_ context.Context, id int64) (*models.Salesperson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.salespeople[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) ListSalespeople(context.Context) ([]*models.Salesperson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Salesperson
	for _, s := range m.salespeople {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) UpdateSalesperson(_ context.Context, s *models.Salesperson) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.salespeople[s.ID]; !ok {
		return storage.ErrNotFound
	}
	if _, ok := m.principals[s.UserID]; !ok {
		return storage.ErrInvalidReference
	}
	cp := *s
	m.salespeople[s.ID] = &cp
	return nil
}

func (m *memStore) DeleteSalesperson(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.salespeople[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.salespeople, id)
	return nil
}

func (m *memStore) CreateCar(_ context.Context, c *models.Car) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.CustomerID != nil {
		if _, ok := m.customers[*c.CustomerID]; !ok {
			return storage.ErrInvalidReference
		}
	}
	c.ID = m.id()
	cp := *c
	m.cars[c.ID] = &cp
	return nil
}

func (m *memStore) GetCar(_ context.Context, id int64) (*models.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cars[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListCars(context.Context) ([]*models.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Car
	for _, c := range m.cars {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) UpdateCar(_ context.Context, c *models.Car) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cars[c.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *c
	m.cars[c.ID] = &cp
	return nil
}

func (m *memStore) DeleteCar(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cars[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.cars, id)
	return nil
}

func (m *memStore) WriteAuditEntry(_ context.Context, e *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.audit) + 1)
	m.audit = append(m.audit, e)
	return nil
}

func (m *memStore) QueryAuditLog(_ context.Context, f storage.AuditFilter) ([]*models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if strings.HasPrefix(e.Path, f.Path) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) Close() {}

func (m *memStore) auditEntries() []*models.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuditEntry(nil), m.audit...)
}

// --- helpers ---

var refNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

// testClock is a settable clock shared by the server and the test.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	srv     *Server
	store   *memStore
	clock   *testClock
	handler http.Handler
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	store := newMemStore()
	clk := &testClock{t: refNow}
	cfg := Config{
		TokenSecret: []byte("test-signing-secret"),
		BcryptCost:  bcrypt.MinCost,
		Clock:       clk,
	}
	for _, f := range mutate {
		f(&cfg)
	}
	srv, err := NewServer(store, cfg)
	require.NoError(t, err)
	return &testEnv{srv: srv, store: store, clock: clk, handler: srv.BuildRouter()}
}

func (e *testEnv) seedPrincipal(t *testing.T, email, password string) *models.Principal {
	t.Helper()
	hash, err := auth.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	p := &models.Principal{Name: "Alice Souza", Email: email, PasswordHash: hash}
	require.NoError(t, e.store.CreatePrincipal(context.Background(), p))
	return p
}

// login returns the session cookie value.
func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/users/login", map[string]string{"email": email, "password": password}, "")
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	c := sessionCookie(t, w)
	require.NotNil(t, c)
	return c.Value
}

func (e *testEnv) do(t *testing.T, method, path string, body any, session string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: session})
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.DefaultCookieName {
			return c
		}
	}
	return nil
}

func decodeViolations(t *testing.T, w *httptest.ResponseRecorder) []map[string]string {
	t.Helper()
	var body struct {
		Violations []map[string]string `json:"violations"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body), w.Body.String())
	return body.Violations
}

func validCustomerBody() map[string]any {
	return map[string]any{
		"name":           "Maria Silva",
		"ident_document": "529.982.247-25",
		"birth_date":     "1990-05-10",
		"street_name":    "Rua das Flores",
		"house_number":   "123",
		"complements":    nil,
		"neighborhood":   "Centro",
		"municipality":   "Franca",
		"state":          "SP",
		"phone":          "(16) 99999-9999",
		"email":          "maria@example.com",
	}
}

// --- tests ---

func TestNewServerRequiresSigningSecret(t *testing.T) {
	t.Parallel()
	_, err := NewServer(newMemStore(), Config{})
	assert.ErrorIs(t, err, auth.ErrSigningKeyMissing)
}

func TestLoginSetsSessionCookie(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seedPrincipal(t, "alice@example.com", "s3cret-pass")

	w := env.do(t, http.MethodPost, "/users/login",
		map[string]string{"email": "alice@example.com", "password": "s3cret-pass"}, "")

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	c := sessionCookie(t, w)
	require.NotNil(t, c)
	assert.NotEmpty(t, c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteNoneMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 86400, c.MaxAge)
}

func TestLoginWrongSecret(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seedPrincipal(t, "alice@example.com", "s3cret-pass")

	for _, creds := range []map[string]string{
		{"email": "alice@example.com", "password": "wrong-pass"},
		{"email": "nobody@example.com", "password": "s3cret-pass"},
	} {
		w := env.do(t, http.MethodPost, "/users/login", creds, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		c := sessionCookie(t, w)
		require.NotNil(t, c, "stale cookie must be cleared")
		assert.Empty(t, c.Value)
		assert.Less(t, c.MaxAge, 0)
		assert.NotContains(t, w.Body.String(), "eyJ")
	}
}

func TestProtectedRouteWithoutCookie(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/customers", nil, "")

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, env.store.listCalls, "handler must not run")
}

func TestUnknownRouteIsGuarded(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seedPrincipal(t, "alice@example.com", "s3cret-pass")

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/nope", nil, "").Code)

	session := env.login(t, "alice@example.com", "s3cret-pass")
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/nope", nil, session).Code)
}

func TestExemptRouteIgnoresBadCookie(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/users", map[string]string{
		"name": "Joana", "email": "Joana@Example.com", "password": "long enough",
	}, "garbage")

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "password")
	p, err := env.store.FindPrincipalByEmail(context.Background(), "joana@example.com")
	require.NoError(t, err)
	assert.True(t, auth.VerifyPassword("long enough", p.PasswordHash))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seedPrincipal(t, "alice@example.com", "s3cret-pass")

	w := env.do(t, http.MethodPost, "/users", map[string]string{
		"name": "Alice", "email": "ALICE@example.com", "password": "another-pass",
	}, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegisterReportsAllViolations(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/users", map[string]string{
		"name": "A", "email": "nope", "password": "short",
	}, "")

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var fields []string
	for _, v := range decodeViolations(t, w) {
		fields = append(fields, v["field"])
	}
	assert.Equal(t, []string{"name", "email", "password"}, fields)
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	p := env.seedPrincipal(t, "alice@example.com", "s3cret-pass")
	session := env.login(t, "alice@example.com", "s3cret-pass")

	w := env.do(t, http.MethodGet, "/users/me", nil, session)
	require.Equal(t, http.StatusOK, w.Code)
	var me models.Session
	require.NoError(t, json.NewDecoder(w.Body).Decode(&me))
	assert.Equal(t, p.Claims(), me.Claims)
	assert.Equal(t, refNow.Add(24*time.Hour), me.ExpiresAt)

	w = env.do(t, http.MethodPost, "/users/logout", nil, session)
	assert.Equal(t, http.StatusNoContent, w.Code)
	c := sessionCookie(t, w)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)

	// A client honoring the cleared cookie sends it back empty.
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: ""})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBearerTokenAccepted(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seedPrincipal(t, "alice@example.com", "s3cret-pass")
	session := env.login(t, "alice@example.com", "s3cret-pass")

	req := httptest.NewRequest(http.MethodGet, "/customers", nil)
	req.Header.Set("Authorization", "Bearer "+session)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestExpiredSessionRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) { c.AuditRejected = true })
	env.seedPrincipal(t, "alice@example.com", "s3cret-pass")
	session := env.login(t, "alice@example.com", "s3cret-pass")

	env.clock.Advance(23 * time.Hour)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/customers", nil, session).Code)

	env.clock.Advance(2 * time.Hour)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/customers", nil, session).Code)

	entries := env.store.auditEntries()
	last := entries[len(entries)-1]
	assert.Equal(t, "rejected", last.Decision)
	assert.Equal(t, auth.ReasonExpired, last.Reason)
	assert.Nil(t, last.PrincipalID)
}

func TestCustomerInvalidCPF(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seedPrincipal(t, "alice@example.com", "s3cret-pass")
	session := env.login(t, "alice@example.com", "s3cret-pass")

	body := validCustomerBody()
	body["ident_document"] = "529.982.247-26"
	w := env.do(t, http.MethodPost, "/customers", body, session)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []map[string]string{{"field": "ident_document", "reason": "is not a valid CPF"}},
		decodeViolations(t, w))
	assert.Empty(t, env.store.customers, "nothing is written on violations")
}

func TestCustomerCRUD(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seedPrincipal(t, "alice@example.com", "s3cret-pass")
	session := env.login(t, "alice@example.com", "s3cret-pass")

	body := validCustomerBody()
	body["email"] = "  Maria@Example.com "
	body["phone"] = "(16) 99999-9999_"
	w := env.do(t, http.MethodPost, "/customers", body, session)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Customer
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.NotZero(t, created.ID)
	assert.Equal(t, "maria@example.com", created.Email)
	assert.Equal(t, "(16) 99999-9999", created.Phone)
	assert.Equal(t, "1990-05-10", created.BirthDate.String())

	path := "/customers/" + jsonID(created.ID)
	w = env.do(t, http.MethodGet, path, nil, session)
	require.Equal(t, http.StatusOK, w.Code)

	body["municipality"] = "Ribeirão Preto"
	w = env.do(t, http.MethodPut, path, body, session)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	got, err := env.store.GetCustomer(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ribeirão Preto", got.Municipality)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, nil, session).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, nil, session).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, path, body, session).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/customers/abc", nil, session).Code)
}

func TestSalespersonSalaryOutOfRange(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	p := env.seedPrincipal(t, "alice@example.com", "s3cret-pass")
	session := env.login(t, "alice@example.com", "s3cret-pass")

	body := map[string]any{
		"user_id":        p.ID,
		"birth_date":     "1985-03-02",
		"ident_document": "168.995.350-09",
		"salary":         1000,
		"phone":          "(16) 98888-7777",
		"date_of_hire":   "2021-02-01",
	}
	w := env.do(t, http.MethodPost, "/salespeople", body, session)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	violations := decodeViolations(t, w)
	require.Len(t, violations, 1)
	assert.Equal(t, "salary", violations[0]["field"])

	body["salary"] = 3500
	w = env.do(t, http.MethodPost, "/salespeople", body, session)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// The principal is now referenced and cannot be removed.
	w = env.do(t, http.MethodDelete, "/users/"+jsonID(p.ID), nil, session)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSalespersonUnknownUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seedPrincipal(t, "alice@example.com", "s3cret-pass")
	session := env.login(t, "alice@example.com", "s3cret-pass")

	w := env.do(t, http.MethodPost, "/salespeople", map[string]any{
		"user_id":        999,
		"birth_date":     "1985-03-02",
		"ident_document": "168.995.350-09",
		"salary":         3500,
		"phone":          "(16) 98888-7777",
		"date_of_hire":   "2021-02-01",
	}, session)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []map[string]string{{"field": "user_id", "reason": reasonUnknownReference}},
		decodeViolations(t, w))
}

func TestCarWithUnknownCustomer(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seedPrincipal(t, "alice@example.com", "s3cret-pass")
	session := env.login(t, "alice@example.com", "s3cret-pass")

	w := env.do(t, http.MethodPost, "/cars", map[string]any{
		"brand": "Volkswagen", "model": "Gol", "color": "Prata",
		"year_manufacture": "2015-01-01", "imported": false, "plates": "ABC-1D23",
		"selling_price": 35000, "customer_id": 77,
	}, session)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	violations := decodeViolations(t, w)
	require.Len(t, violations, 1)
	assert.Equal(t, "customer_id", violations[0]["field"])
}

func TestListUsersHidesCredentials(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seedPrincipal(t, "alice@example.com", "s3cret-pass")
	session := env.login(t, "alice@example.com", "s3cret-pass")

	w := env.do(t, http.MethodGet, "/users", nil, session)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "$2a$")
	assert.NotContains(t, w.Body.String(), "password")
	assert.Contains(t, w.Body.String(), "alice@example.com")
}

func TestUpdateUserRehashes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	p := env.seedPrincipal(t, "alice@example.com", "s3cret-pass")
	session := env.login(t, "alice@example.com", "s3cret-pass")

	w := env.do(t, http.MethodPut, "/users/"+jsonID(p.ID), map[string]string{
		"name": "Alice Souza", "email": "alice@example.com", "password": "brand-new-pass",
	}, session)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/users/login",
		map[string]string{"email": "alice@example.com", "password": "s3cret-pass"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	env.login(t, "alice@example.com", "brand-new-pass")
}

func TestAuditLogRecordsDecisions(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) { c.AuditRejected = true })
	p := env.seedPrincipal(t, "alice@example.com", "s3cret-pass")
	env.do(t, http.MethodGet, "/cars", nil, "")
	session := env.login(t, "alice@example.com", "s3cret-pass")
	env.do(t, http.MethodGet, "/cars", nil, session)

	w := env.do(t, http.MethodGet, "/audit-log?path=/cars", nil, session)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []models.AuditEntry `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Data, 2)

	authorized, rejected := body.Data[0], body.Data[1]
	assert.Equal(t, "authorized", authorized.Decision)
	require.NotNil(t, authorized.PrincipalID)
	assert.Equal(t, p.ID, *authorized.PrincipalID)
	assert.Equal(t, http.StatusOK, authorized.ResponseCode)
	assert.Equal(t, "rejected", rejected.Decision)
	assert.Equal(t, auth.ReasonMissing, rejected.Reason)
	assert.Equal(t, http.StatusForbidden, rejected.ResponseCode)
	assert.NotEmpty(t, rejected.RequestID)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/audit-log?since=yesterday", nil, session).Code)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 2
	})

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/cars", nil, "").Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/cars", nil, "").Code)
	w := env.do(t, http.MethodGet, "/cars", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRejectedRequestsNotPersistedByDefault(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seedPrincipal(t, "alice@example.com", "s3cret-pass")

	for range 3 {
		require.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/cars", nil, "").Code)
	}
	assert.Empty(t, env.store.auditEntries())

	session := env.login(t, "alice@example.com", "s3cret-pass")
	env.do(t, http.MethodGet, "/cars", nil, session)
	entries := env.store.auditEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "exempt", entries[0].Decision)
	assert.Equal(t, "authorized", entries[1].Decision)
}

func forwardedLogin(env *testEnv, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/users/login",
		strings.NewReader(`{"email":"nobody@example.com","password":"wrong-pass"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	return w
}

func TestRateLimitIgnoresForwardedFor(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 2
		c.AuditRejected = true
	})

	assert.Equal(t, http.StatusUnauthorized, forwardedLogin(env, "203.0.113.1").Code)
	assert.Equal(t, http.StatusUnauthorized, forwardedLogin(env, "203.0.113.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, forwardedLogin(env, "203.0.113.3").Code)

	entries := env.store.auditEntries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "192.0.2.1", entries[0].ClientIP, "peer address, not the forwarded one")
}

func TestRateLimitTrustsProxyHeadersWhenEnabled(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 2
		c.TrustProxyHeaders = true
	})

	for i := 1; i <= 4; i++ {
		w := forwardedLogin(env, "203.0.113."+strconv.Itoa(i))
		assert.Equal(t, http.StatusUnauthorized, w.Code, "client %d", i)
	}
	assert.Equal(t, "203.0.113.1", env.store.auditEntries()[0].ClientIP)
}

func TestCustomerWrongTypeReportedWithOtherViolations(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seedPrincipal(t, "alice@example.com", "s3cret-pass")
	session := env.login(t, "alice@example.com", "s3cret-pass")

	body := validCustomerBody()
	body["name"] = 12345
	body["ident_document"] = "111.111.111-12"
	w := env.do(t, http.MethodPost, "/customers", body, session)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []map[string]string{
		{"field": "name", "reason": "has the wrong type"},
		{"field": "ident_document", "reason": "is not a valid CPF"},
	}, decodeViolations(t, w))
	assert.Empty(t, env.store.customers)

	w = env.do(t, http.MethodPost, "/customers", []string{"not", "an", "object"}, session)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCustomerYearOneBirthDateRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seedPrincipal(t, "alice@example.com", "s3cret-pass")
	session := env.login(t, "alice@example.com", "s3cret-pass")

	body := validCustomerBody()
	body["birth_date"] = "0001-01-01"
	w := env.do(t, http.MethodPost, "/customers", body, session)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []map[string]string{{"field": "birth_date", "reason": "is too far in the past"}},
		decodeViolations(t, w))
	assert.Empty(t, env.store.customers)
}

func TestOverlongFieldsRejectedBeforeStorage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seedPrincipal(t, "alice@example.com", "s3cret-pass")
	session := env.login(t, "alice@example.com", "s3cret-pass")

	body := validCustomerBody()
	body["name"] = "Maria " + strings.Repeat("x", 95)
	w := env.do(t, http.MethodPost, "/customers", body, session)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []map[string]string{{"field": "name", "reason": "must have at most 100 characters"}},
		decodeViolations(t, w))

	w = env.do(t, http.MethodPost, "/users", map[string]any{
		"name": "Bruno", "email": strings.Repeat("b", 250) + "@example.com", "password": "long enough",
	}, "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "email", decodeViolations(t, w)[0]["field"])
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) {
		c.CORSOrigins = []string{"https://app.example.com"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/customers", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestOpsRouter(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/cars", nil, "")

	w := httptest.NewRecorder()
	OpsRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dealership_guard_decisions_total")
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
