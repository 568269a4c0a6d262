package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/codfulfillment-backend/api/middleware"
	"github.com/angelmondragon/codfulfillment-backend/internal/engine"
	"github.com/angelmondragon/codfulfillment-backend/pkg/config"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/dbtest"
	"github.com/angelmondragon/codfulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
	"github.com/angelmondragon/codfulfillment-backend/pkg/metrics"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type harness struct {
	router   http.Handler
	db       *gorm.DB
	admin    models.User
	agent    models.User
	rep      models.User
	product  models.Product
	customer models.Customer
}

func newHarness(t *testing.T, redis stubPinger) harness {
	t.Helper()
	db := dbtest.Open(t)
	cfg := &config.Config{
		App:    config.AppConfig{Env: "test"},
		Tx:     config.TxConfig{MaxConcurrent: 4, MaxWait: time.Second, Timeout: 5 * time.Second},
		Import: config.ImportConfig{BatchSize: 10, DeletedGrace: time.Minute, PhoneRegion: "US"},
		Ledger: config.LedgerConfig{CashInTransitCode: "1150", InventoryCode: "1300", RevenueCode: "4000", COGSCode: "5000"},
		Access: config.AccessConfig{CacheTTL: time.Minute},
	}
	logg := logger.Nop()
	reg := prometheus.NewRegistry()
	eng, err := engine.New(engine.Params{DB: db, Config: cfg, Logger: logg, Metrics: metrics.NewFulfillmentMetrics(reg)})
	require.NoError(t, err)
	require.NoError(t, eng.Bootstrap(context.Background()))

	customer := models.Customer{Name: "Dana", Phone: "+14155552671", Address: "1 Main St", City: "Oakland"}
	require.NoError(t, db.Create(&customer).Error)

	return harness{
		router: NewRouter(Deps{
			Config:   cfg,
			Logger:   logg,
			Engine:   eng,
			DB:       stubPinger{},
			Redis:    redis,
			Gatherer: reg,
		}),
		db:       db,
		admin:    dbtest.SeedUser(t, db, "admin", enums.UserRoleAdmin),
		agent:    dbtest.SeedUser(t, db, "agent", enums.UserRoleDeliveryAgent),
		rep:      dbtest.SeedUser(t, db, "rep", enums.UserRoleSalesRep),
		product:  dbtest.SeedProduct(t, db, "TEA-01", 20, 2500, 1000),
		customer: customer,
	}
}

func (h harness) do(t *testing.T, method, path string, actor *uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set(middleware.ActorHeader, actor.String())
	}
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	envelope := struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Error.Code
}

func TestHealthRoutes(t *testing.T) {
	h := newHarness(t, stubPinger{})

	live := h.do(t, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, live.Code)
	assert.Equal(t, "test", live.Header().Get("X-Codf-Env"))

	ready := h.do(t, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, ready.Code)

	down := newHarness(t, stubPinger{err: errors.New("connection refused")})
	resp := down.do(t, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Equal(t, "DEPENDENCY_ERROR", errorCode(t, resp))
}

func TestMetricsRouteServesRegistry(t *testing.T) {
	h := newHarness(t, stubPinger{})
	resp := h.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestActorHeaderIsRequired(t *testing.T) {
	h := newHarness(t, stubPinger{})

	resp := h.do(t, http.MethodGet, "/api/v1/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	stranger := uuid.New()
	resp = h.do(t, http.MethodGet, "/api/v1/orders", &stranger, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestOrderDeliveryFlow(t *testing.T) {
	h := newHarness(t, stubPinger{})
	dbtest.SeedAgentStock(t, h.db, h.agent.ID, h.product.ID, 5)

	created := h.do(t, http.MethodPost, "/api/v1/orders", &h.admin.ID, map[string]any{
		"customer_id":       h.customer.ID,
		"items":             []map[string]any{{"product_id": h.product.ID, "quantity": 2}},
		"status":            "confirmed",
		"assigned_agent_id": h.agent.ID,
	})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	var order struct {
		ID               uuid.UUID `json:"id"`
		Status           string    `json:"status"`
		TotalAmountCents int64     `json:"total_amount_cents"`
		PaymentStatus    string    `json:"payment_status"`
	}
	decodeData(t, created, &order)
	assert.Equal(t, int64(5000), order.TotalAmountCents)

	path := "/api/v1/orders/" + order.ID.String()
	for _, status := range []string{"out_for_delivery", "delivered"} {
		resp := h.do(t, http.MethodPatch, path+"/status", &h.agent.ID, map[string]any{"status": status})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	}

	again := h.do(t, http.MethodPatch, path+"/status", &h.agent.ID, map[string]any{"status": "delivered"})
	assert.Equal(t, http.StatusUnprocessableEntity, again.Code)

	detail := h.do(t, http.MethodGet, path, &h.admin.ID, nil)
	require.Equal(t, http.StatusOK, detail.Code)
	var got struct {
		Order struct {
			Status            string `json:"status"`
			PaymentStatus     string `json:"payment_status"`
			RevenueRecognized bool   `json:"revenue_recognized"`
		} `json:"order"`
		History []map[string]any `json:"history"`
	}
	decodeData(t, detail, &got)
	assert.Equal(t, "delivered", got.Order.Status)
	assert.Equal(t, "collected", got.Order.PaymentStatus)
	assert.True(t, got.Order.RevenueRecognized)
	assert.Len(t, got.History, 3)

	sync := h.do(t, http.MethodPost, "/api/v1/finance/orders/"+order.ID.String()+"/sync", &h.admin.ID, nil)
	require.Equal(t, http.StatusOK, sync.Code)
	var synced struct {
		Synced bool `json:"synced"`
	}
	decodeData(t, sync, &synced)
	assert.False(t, synced.Synced, "delivery already recognised revenue")

	txns := h.do(t, http.MethodGet, "/api/v1/finance/orders/"+order.ID.String()+"/transactions", &h.admin.ID, nil)
	require.Equal(t, http.StatusOK, txns.Code)
	var rows struct {
		Transactions []struct {
			Type        string `json:"type"`
			AmountCents int64  `json:"amount_cents"`
		} `json:"transactions"`
	}
	decodeData(t, txns, &rows)
	require.Len(t, rows.Transactions, 1)
	assert.Equal(t, "cod_collection", rows.Transactions[0].Type)
	assert.Equal(t, int64(5000), rows.Transactions[0].AmountCents)

	forbidden := h.do(t, http.MethodPost, "/api/v1/finance/orders/sync", &h.rep.ID, nil)
	assert.Equal(t, http.StatusForbidden, forbidden.Code)
}

func TestInventoryRoutes(t *testing.T) {
	h := newHarness(t, stubPinger{})

	resp := h.do(t, http.MethodPost, "/api/v1/inventory/allocate", &h.admin.ID, map[string]any{
		"product_id": h.product.ID,
		"agent_id":   h.agent.ID,
		"quantity":   4,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	short := h.do(t, http.MethodPost, "/api/v1/inventory/allocate", &h.admin.ID, map[string]any{
		"product_id": h.product.ID,
		"agent_id":   h.agent.ID,
		"quantity":   100,
	})
	assert.Equal(t, http.StatusConflict, short.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", errorCode(t, short))

	denied := h.do(t, http.MethodPost, "/api/v1/inventory/return", &h.agent.ID, map[string]any{
		"product_id": h.product.ID,
		"agent_id":   h.agent.ID,
		"quantity":   1,
	})
	assert.Equal(t, http.StatusForbidden, denied.Code)

	invalid := h.do(t, http.MethodPost, "/api/v1/inventory/adjust", &h.admin.ID, map[string]any{
		"product_id":   h.product.ID,
		"agent_id":     h.agent.ID,
		"new_quantity": 2,
	})
	assert.Equal(t, http.StatusBadRequest, invalid.Code)

	own := h.do(t, http.MethodGet, "/api/v1/inventory/agents/"+h.agent.ID.String(), &h.agent.ID, nil)
	require.Equal(t, http.StatusOK, own.Code)
	var stock struct {
		Stock []struct {
			ProductID uuid.UUID `json:"product_id"`
			Quantity  int       `json:"quantity"`
		} `json:"stock"`
	}
	decodeData(t, own, &stock)
	require.Len(t, stock.Stock, 1)
	assert.Equal(t, 4, stock.Stock[0].Quantity)

	other := h.do(t, http.MethodGet, "/api/v1/inventory/agents/"+h.admin.ID.String(), &h.agent.ID, nil)
	assert.Equal(t, http.StatusForbidden, other.Code)
}

func TestImportRequiresManager(t *testing.T) {
	h := newHarness(t, stubPinger{})
	body := map[string]any{
		"records": []map[string]any{{
			"customer_name": "Lee",
			"phone":         "4155550199",
			"address":       "9 Elm St",
			"items":         []map[string]any{{"product": "TEA-01", "quantity": 1}},
			"total_amount":  "25.00",
			"order_date":    "2024-05-01",
		}},
	}

	denied := h.do(t, http.MethodPost, "/api/v1/orders/import", &h.rep.ID, body)
	assert.Equal(t, http.StatusForbidden, denied.Code)

	resp := h.do(t, http.MethodPost, "/api/v1/orders/import", &h.admin.ID, body)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var result struct {
		Success    int `json:"success"`
		Duplicates int `json:"duplicates"`
	}
	decodeData(t, resp, &result)
	assert.Equal(t, 1, result.Success)

	replay := h.do(t, http.MethodPost, "/api/v1/orders/import", &h.admin.ID, body)
	require.Equal(t, http.StatusOK, replay.Code)
	decodeData(t, replay, &result)
	assert.Equal(t, 0, result.Success)
	assert.Equal(t, 1, result.Duplicates)
}

func TestDeleteRejectsOrdersHoldingStock(t *testing.T) {
	h := newHarness(t, stubPinger{})
	dbtest.SeedAgentStock(t, h.db, h.agent.ID, h.product.ID, 5)

	created := h.do(t, http.MethodPost, "/api/v1/orders", &h.admin.ID, map[string]any{
		"customer_id":       h.customer.ID,
		"items":             []map[string]any{{"product_id": h.product.ID, "quantity": 1}},
		"status":            "out_for_delivery",
		"assigned_agent_id": h.agent.ID,
	})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	var order struct {
		ID uuid.UUID `json:"id"`
	}
	decodeData(t, created, &order)

	resp := h.do(t, http.MethodDelete, "/api/v1/orders/"+order.ID.String(), &h.admin.ID, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "STATE_CONFLICT", errorCode(t, resp))

	missing := h.do(t, http.MethodGet, "/api/v1/orders/not-a-uuid", &h.admin.ID, nil)
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}
