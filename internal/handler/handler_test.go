package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"retail-backoffice/internal/cache"
	"retail-backoffice/internal/config"
	"retail-backoffice/internal/model"
	"retail-backoffice/internal/repository"
	"retail-backoffice/internal/service"
	"retail-backoffice/internal/testutil"
	"retail-backoffice/internal/ws"
	"retail-backoffice/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "s3cret!"
)

type testServer struct {
	app   *fiber.App
	auth  service.AuthService
	users repository.UserRepository
	roles repository.RoleRepository
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewDB(t)
	hub := ws.NewHub()
	store := cache.NoopStore{}

	productRepo := repository.NewProductRepo(db)
	categoryRepo := repository.NewCategoryRepo(db)
	saleRepo := repository.NewSaleRepo(db)
	users := repository.NewUserRepo(db)
	roles := repository.NewRoleRepo(db)

	auth := service.NewAuthService(users, roles, repository.NewPrivilegeRepo(db), jwt.NewManager("handler-secret", time.Hour))
	require.NoError(t, auth.Bootstrap(context.Background(), adminEmail, adminPassword))

	app := fiber.New()
	RegisterRoutes(app, Services{
		Auth:       auth,
		Sales:      service.NewSaleService(productRepo, saleRepo, db, hub, store),
		Reports:    service.NewReportService(saleRepo),
		Products:   service.NewProductService(productRepo, categoryRepo, db, hub, store),
		Categories: service.NewCategoryService(categoryRepo, productRepo, db, hub),
		Dashboard:  service.NewDashboardService(productRepo, saleRepo, store, config.Dashboard{WindowDays: 30, TrendDays: 7, RecentLimit: 5, StockValuation: config.ValuationCost}),
	}, hub)

	s := &testServer{app: app, auth: auth, users: users, roles: roles}
	s.token = s.login(t, adminEmail, adminPassword)
	return s
}

func (s *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", fiber.Map{"email": email, "password": password})
	require.Equal(t, fiber.StatusOK, status, "login: %v", body)
	return body["token"].(string)
}

// addSeller creates a user holding only the seller role's privileges.
func (s *testServer) addSeller(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	role, err := s.roles.FindByCode(ctx, model.RoleSeller)
	require.NoError(t, err)
	seller := &model.User{
		Email:      "seller@example.com",
		FullName:   "Seller",
		RoleID:     &role.ID,
		IsActive:   true,
		Privileges: role.Privileges,
	}
	require.NoError(t, seller.SetPassword("seller1"))
	require.NoError(t, s.users.Create(ctx, seller))
	return s.login(t, "seller@example.com", "seller1")
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	status, raw := s.doRaw(t, method, path, token, body)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return status, out
}

func (s *testServer) doList(t *testing.T, path, token string) (int, []map[string]interface{}) {
	t.Helper()
	status, raw := s.doRaw(t, http.MethodGet, path, token, nil)
	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return status, out
}

func (s *testServer) doRaw(t *testing.T, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func (s *testServer) createProduct(t *testing.T, body fiber.Map) string {
	t.Helper()
	status, out := s.do(t, http.MethodPost, "/api/v1/products", s.token, body)
	require.Equal(t, fiber.StatusCreated, status, "create product: %v", out)
	return out["id"].(string)
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["wsClients"])
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/api/v1/sales", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, CodeUnauthorized, body["code"])

	status, _ = s.do(t, http.MethodGet, "/api/v1/products", "not-a-token", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body = s.do(t, http.MethodPost, "/api/v1/auth/login", "", fiber.Map{"email": adminEmail, "password": "nope"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, CodeUnauthorized, body["code"])
}

func TestValidateTokenEndpoint(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodPost, "/api/v1/auth/validate-token", "", fiber.Map{"token": s.token})
	require.Equal(t, fiber.StatusOK, status)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, adminEmail, user["email"])
}

func TestProductEndpoints(t *testing.T) {
	s := newTestServer(t)
	id := s.createProduct(t, fiber.Map{
		"name": "Cola", "sku": "cola-1", "category": "Drinks",
		"costPrice": 5, "publicPrice": 10, "stock": 3,
	})

	status, body := s.do(t, http.MethodGet, "/api/v1/products/"+id, s.token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "COLA-1", body["sku"])
	assert.Equal(t, true, body["lowStock"])
	margin := body["margin"].(map[string]interface{})
	assert.Equal(t, "5", margin["amount"])

	status, body = s.do(t, http.MethodPost, "/api/v1/products", s.token, fiber.Map{"name": "Other", "sku": "COLA-1", "costPrice": 1, "publicPrice": 2})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, CodeSKUExists, body["code"])

	status, body = s.do(t, http.MethodPost, "/api/v1/products", s.token, fiber.Map{"costPrice": 1})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, CodeValidation, body["code"])
	assert.Equal(t, "name", body["field"])

	status, body = s.do(t, http.MethodPatch, "/api/v1/products/"+id, s.token, fiber.Map{"stock": 20})
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 20, body["stock"])

	status, list := s.doList(t, "/api/v1/products?lowStock=true", s.token)
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, list)

	status, body = s.do(t, http.MethodGet, "/api/v1/products?status=archived", s.token, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "status", body["field"])

	status, _ = s.do(t, http.MethodGet, "/api/v1/products/not-a-uuid", s.token, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodDelete, "/api/v1/products/"+id, s.token, nil)
	assert.Equal(t, fiber.StatusOK, status)
	status, body = s.do(t, http.MethodGet, "/api/v1/products/"+id, s.token, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, CodeNotFound, body["code"])
}

func TestCategoryInUse(t *testing.T) {
	s := newTestServer(t)
	s.createProduct(t, fiber.Map{"name": "Cola", "category": "Drinks", "costPrice": 1, "publicPrice": 2})

	status, list := s.doList(t, "/api/v1/categories", s.token)
	require.Equal(t, fiber.StatusOK, status)
	require.Len(t, list, 1)
	assert.Equal(t, "Drinks", list[0]["name"])

	status, body := s.do(t, http.MethodDelete, "/api/v1/categories/"+list[0]["id"].(string), s.token, nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, CodeCategoryInUse, body["code"])

	status, body = s.do(t, http.MethodPost, "/api/v1/categories", s.token, fiber.Map{"name": "Snacks"})
	require.Equal(t, fiber.StatusCreated, status)
	status, _ = s.do(t, http.MethodDelete, "/api/v1/categories/"+body["id"].(string), s.token, nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestSaleLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := s.createProduct(t, fiber.Map{"name": "Widget", "sku": "W-1", "costPrice": 5, "publicPrice": 10, "stock": 10})

	status, body := s.do(t, http.MethodPost, "/api/v1/sales", s.token, fiber.Map{
		"products":      []fiber.Map{{"product": id, "quantity": 3}},
		"paymentMethod": "cash",
		"channel":       "store",
	})
	require.Equal(t, fiber.StatusCreated, status, "%v", body)
	assert.Equal(t, "30", body["totalAmount"])
	assert.Equal(t, "15", body["totalProfit"])
	saleID := body["id"].(string)

	status, body = s.do(t, http.MethodGet, "/api/v1/products/"+id, s.token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 7, body["stock"])

	status, body = s.do(t, http.MethodPost, "/api/v1/sales", s.token, fiber.Map{
		"products":      []fiber.Map{{"product": id, "quantity": 8}},
		"paymentMethod": "cash",
		"channel":       "store",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, CodeInsufficientStock, body["code"])
	assert.EqualValues(t, 8, body["requested"])
	assert.EqualValues(t, 7, body["available"])

	status, body = s.do(t, http.MethodPost, "/api/v1/sales", s.token, fiber.Map{
		"products":      []fiber.Map{{"product": "7f1d2c3b-0000-4000-8000-000000000001", "quantity": 1}},
		"paymentMethod": "cash",
		"channel":       "store",
	})
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "product", body["resource"])

	status, body = s.do(t, http.MethodPost, "/api/v1/sales", s.token, fiber.Map{
		"products":      []fiber.Map{{"product": id, "quantity": 0}},
		"paymentMethod": "cash",
		"channel":       "store",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "products[0].quantity", body["field"])

	status, _ = s.do(t, http.MethodPost, "/api/v1/sales", s.token, "{not json")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, rows := s.doList(t, "/api/v1/sales/by-product", s.token)
	require.Equal(t, fiber.StatusOK, status)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 3, rows[0]["totalQuantity"])

	status, body = s.do(t, http.MethodGet, "/api/v1/sales/summary?paymentMethod=cash", s.token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])
	assert.Equal(t, "30", body["totalRevenue"])

	status, body = s.do(t, http.MethodPut, "/api/v1/sales/"+saleID, s.token, fiber.Map{"customer": "Ana"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Ana", body["customer"])

	status, body = s.do(t, http.MethodDelete, "/api/v1/sales/"+saleID+"?restock=true", s.token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["restocked"])

	status, body = s.do(t, http.MethodGet, "/api/v1/products/"+id, s.token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 10, body["stock"])

	status, _ = s.do(t, http.MethodGet, "/api/v1/sales/"+saleID, s.token, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestSellerCannotDeleteSales(t *testing.T) {
	s := newTestServer(t)
	id := s.createProduct(t, fiber.Map{"name": "Widget", "costPrice": 5, "publicPrice": 10, "stock": 10})
	seller := s.addSeller(t)

	status, body := s.do(t, http.MethodPost, "/api/v1/sales", seller, fiber.Map{
		"products":      []fiber.Map{{"product": id, "quantity": 1}},
		"paymentMethod": "card",
		"channel":       "store",
	})
	require.Equal(t, fiber.StatusCreated, status, "%v", body)

	status, body = s.do(t, http.MethodDelete, "/api/v1/sales/"+body["id"].(string), seller, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["code"])
}

func TestDashboardStatsEndpoint(t *testing.T) {
	s := newTestServer(t)
	id := s.createProduct(t, fiber.Map{"name": "Widget", "costPrice": 5, "publicPrice": 10, "stock": 4})
	status, _ := s.do(t, http.MethodPost, "/api/v1/sales", s.token, fiber.Map{
		"products":      []fiber.Map{{"product": id, "quantity": 2}},
		"paymentMethod": "cash",
		"channel":       "store",
	})
	require.Equal(t, fiber.StatusCreated, status)

	status, body := s.do(t, http.MethodGet, "/api/v1/dashboard/stats", s.token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "20", body["totalSales"])
	assert.EqualValues(t, 1, body["salesCount"])
	assert.EqualValues(t, 1, body["lowStockCount"])
}
