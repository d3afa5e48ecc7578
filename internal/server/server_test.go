package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/ledgerforgelabs/ledgerforge/internal/apply"
	"github.com/ledgerforgelabs/ledgerforge/internal/clock"
	"github.com/ledgerforgelabs/ledgerforge/internal/config"
	"github.com/ledgerforgelabs/ledgerforge/internal/connector"
	"github.com/ledgerforgelabs/ledgerforge/internal/connector/asaas"
	eventdomain "github.com/ledgerforgelabs/ledgerforge/internal/event/domain"
	"github.com/ledgerforgelabs/ledgerforge/internal/idempotency"
	"github.com/ledgerforgelabs/ledgerforge/internal/ingest"
	ledgerdomain "github.com/ledgerforgelabs/ledgerforge/internal/ledger/domain"
	"github.com/ledgerforgelabs/ledgerforge/internal/reconciliation"
	recondomain "github.com/ledgerforgelabs/ledgerforge/internal/reconciliation/domain"
	"github.com/ledgerforgelabs/ledgerforge/internal/security/vault"
	"github.com/ledgerforgelabs/ledgerforge/internal/tenant"
	tenantdomain "github.com/ledgerforgelabs/ledgerforge/internal/tenant/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type serverEnv struct {
	engine *gin.Engine
	db     *gorm.DB
	node   *snowflake.Node
	recon  *reconciliation.Service
	orgID  snowflake.ID
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&eventdomain.RawInboundEvent{},
		&tenantdomain.ConnectorConfig{},
		&idempotency.Record{},
		&ledgerdomain.Order{},
		&ledgerdomain.Payment{},
		&ledgerdomain.Subscription{},
		&recondomain.BankTransaction{},
		&recondomain.ReconciliationMatch{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	v, err := vault.NewAESVault("server-test-key")
	require.NoError(t, err)

	cfg := config.Config{HTTPAddr: ":0", ReconciliationToleranceDays: 4}
	tenants := tenant.NewService(tenant.Params{DB: db, Log: log, Vault: v, GenID: node})
	idem := idempotency.NewService(idempotency.Params{Log: log, GenID: node})
	sales := apply.NewSalesApplier(log, node)
	router := apply.NewRouter(log, sales, apply.NewSubscriptionsApplier(log, node, sales))
	registry := connector.NewRegistry(asaas.New())
	metricsReg := prometheus.NewRegistry()

	ing := ingest.NewService(ingest.Params{
		DB:      db,
		Log:     log,
		Reg:     registry,
		Tenants: tenants,
		Idem:    idem,
		Router:  router,
		GenID:   node,
		Clock:   clock.SystemClock{},
		Metrics: ingest.NewMetrics(metricsReg),
	})
	recon := reconciliation.NewService(reconciliation.Params{DB: db, Log: log, Cfg: cfg, GenID: node})

	srv := NewServer(Params{
		Engine:   NewEngine(log),
		Log:      log,
		Cfg:      cfg,
		Registry: registry,
		Ingest:   ing,
		Recon:    recon,
		Metrics:  metricsReg,
	})
	srv.RegisterRoutes()

	orgID := node.Generate()
	require.NoError(t, tenants.Save(context.Background(), orgID, "asaas", map[string]string{
		"webhook_token": "tok_secret",
	}))
	return &serverEnv{engine: srv.engine, db: db, node: node, recon: recon, orgID: orgID}
}

func (e *serverEnv) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	e.engine.ServeHTTP(resp, req)
	return resp
}

const asaasBody = `{"id":"evt_1","event":"PAYMENT_CONFIRMED","payment":{"id":"pay_1","value":150.00,"billingType":"PIX","paymentDate":"2026-02-10"}}`

func TestWebhookEndpoint(t *testing.T) {
	env := newServerEnv(t)
	path := fmt.Sprintf("/webhooks/asaas/%s", env.orgID)

	t.Run("accepted", func(t *testing.T) {
		resp := env.do(http.MethodPost, path, []byte(asaasBody), map[string]string{"asaas-access-token": "tok_secret"})
		require.Equal(t, http.StatusOK, resp.Code)

		var payments []ledgerdomain.Payment
		require.NoError(t, env.db.Find(&payments).Error)
		require.Len(t, payments, 1)
		assert.Equal(t, int64(15000), payments[0].AmountCents)
	})

	t.Run("bad token -> 401", func(t *testing.T) {
		resp := env.do(http.MethodPost, path, []byte(asaasBody), map[string]string{"asaas-access-token": "nope"})
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("unknown provider -> 404", func(t *testing.T) {
		resp := env.do(http.MethodPost, fmt.Sprintf("/webhooks/mercadopago/%s", env.orgID), []byte(asaasBody), nil)
		require.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("unconfigured org -> 404", func(t *testing.T) {
		resp := env.do(http.MethodPost, fmt.Sprintf("/webhooks/asaas/%s", env.node.Generate()),
			[]byte(asaasBody), map[string]string{"asaas-access-token": "tok_secret"})
		require.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("malformed payload -> 422", func(t *testing.T) {
		resp := env.do(http.MethodPost, path, []byte("{not json"), map[string]string{"asaas-access-token": "tok_secret"})
		require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})
}

func TestConnectorCatalog(t *testing.T) {
	env := newServerEnv(t)
	resp := env.do(http.MethodGet, "/api/connectors", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Data []struct {
			Key          string `json:"key"`
			Verification string `json:"verification"`
			Credentials  []struct {
				Key string `json:"key"`
			} `json:"credentials"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "asaas", body.Data[0].Key)
	assert.NotEmpty(t, body.Data[0].Credentials)
}

func TestReconciliationEndpoints(t *testing.T) {
	env := newServerEnv(t)
	ctx := context.Background()

	paidAt := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	payment := ledgerdomain.Payment{
		ID:               env.node.Generate(),
		OrgID:            env.orgID,
		Provider:         "asaas",
		ProviderObjectID: "pay_9",
		Status:           ledgerdomain.PaymentStatusConfirmed,
		AmountCents:      15000,
		Currency:         "BRL",
		PaidAt:           &paidAt,
		OccurredAt:       paidAt,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	require.NoError(t, env.db.Create(&payment).Error)

	imported, err := env.recon.ImportBankTransactions(ctx, env.orgID, []recondomain.BankTransaction{{
		TransactionID: "stmt-1",
		AmountCents:   15000,
		Date:          paidAt,
	}})
	require.NoError(t, err)
	require.Equal(t, 1, imported)

	pendingResp := env.do(http.MethodGet, "/api/reconciliation/pending?org_id="+env.orgID.String(), nil, nil)
	require.Equal(t, http.StatusOK, pendingResp.Code)
	var pending struct {
		Data []recondomain.BankTransaction `json:"data"`
	}
	require.NoError(t, json.Unmarshal(pendingResp.Body.Bytes(), &pending))
	require.Len(t, pending.Data, 1)
	txID := pending.Data[0].ID

	candResp := env.do(http.MethodGet,
		fmt.Sprintf("/api/reconciliation/%s/candidates?org_id=%s", txID, env.orgID), nil, nil)
	require.Equal(t, http.StatusOK, candResp.Code)
	var cands struct {
		Data []recondomain.Candidate `json:"data"`
	}
	require.NoError(t, json.Unmarshal(candResp.Body.Bytes(), &cands))
	require.Len(t, cands.Data, 1)

	confirmBody, _ := json.Marshal(map[string]string{
		"payment_id":   payment.ID.String(),
		"confirmed_by": "ops@acme.test",
	})
	confirmResp := env.do(http.MethodPost,
		fmt.Sprintf("/api/reconciliation/%s/confirm?org_id=%s", txID, env.orgID), confirmBody, nil)
	require.Equal(t, http.StatusOK, confirmResp.Code)

	// Confirming again conflicts: the transaction already left the queue.
	confirmResp = env.do(http.MethodPost,
		fmt.Sprintf("/api/reconciliation/%s/confirm?org_id=%s", txID, env.orgID), confirmBody, nil)
	require.Equal(t, http.StatusConflict, confirmResp.Code)

	ignoreResp := env.do(http.MethodPost,
		fmt.Sprintf("/api/reconciliation/%s/ignore?org_id=%s", txID, env.orgID), nil, nil)
	require.Equal(t, http.StatusConflict, ignoreResp.Code)
}

func TestHealthz(t *testing.T) {
	env := newServerEnv(t)
	resp := env.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)
}
