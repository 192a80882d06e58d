package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dhanwira/lokapasar-backend/internal/address"
	"github.com/dhanwira/lokapasar-backend/internal/cart"
	"github.com/dhanwira/lokapasar-backend/internal/inventory"
	"github.com/dhanwira/lokapasar-backend/internal/orders"
	"github.com/dhanwira/lokapasar-backend/internal/payments"
	"github.com/dhanwira/lokapasar-backend/internal/products"
	"github.com/dhanwira/lokapasar-backend/internal/shops"
	"github.com/dhanwira/lokapasar-backend/internal/vouchers"
	pkgauth "github.com/dhanwira/lokapasar-backend/pkg/auth"
	"github.com/dhanwira/lokapasar-backend/pkg/config"
	"github.com/dhanwira/lokapasar-backend/pkg/db/models"
	"github.com/dhanwira/lokapasar-backend/pkg/enums"
	"github.com/dhanwira/lokapasar-backend/pkg/logger"
	"github.com/dhanwira/lokapasar-backend/pkg/metrics"
	"github.com/dhanwira/lokapasar-backend/pkg/paypal"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubGateway struct {
	createCalls int
}

func (g *stubGateway) CreateOrder(_ context.Context, params paypal.OrderCreateParams) (*paypal.Intent, error) {
	g.createCalls++
	return &paypal.Intent{
		ID:         fmt.Sprintf("GW-%d", g.createCalls),
		Status:     "PAYER_ACTION_REQUIRED",
		ApproveURL: "https://gateway.example.com/approve",
	}, nil
}

func (g *stubGateway) CaptureOrder(_ context.Context, intentID string) (*paypal.Capture, error) {
	return &paypal.Capture{CaptureID: "CAP-" + intentID, Status: "COMPLETED"}, nil
}

type discountAdapter struct {
	svc vouchers.Service
}

func (a discountAdapter) Evaluate(ctx context.Context, tx *gorm.DB, input orders.DiscountInput) (int64, uuid.UUID, error) {
	eval, err := a.svc.Evaluate(ctx, tx, vouchers.EvaluateInput{
		UserID:    input.UserID,
		VoucherID: input.VoucherID,
		ShopID:    input.ShopID,
		Subtotal:  input.Subtotal,
	})
	if err != nil {
		return 0, uuid.Nil, err
	}
	return eval.Discount, eval.ClaimID, nil
}

func (a discountAdapter) ConsumeRedemption(ctx context.Context, tx *gorm.DB, claimID, orderID uuid.UUID) error {
	return a.svc.ConsumeRedemption(ctx, tx, claimID, orderID)
}

type routerEnv struct {
	db      *gorm.DB
	handler http.Handler
	cfg     *config.Config
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()
	dsn := "file:router_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Order{}, &models.OrderLine{}, &models.OrderStatusEvent{},
		&models.Voucher{}, &models.UserVoucher{}, &models.InventoryItem{},
		&models.Product{}, &models.Shop{}, &models.Address{}, &models.CartItem{},
		&models.PaymentRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.App.ShopRegistrationFee = 250000
	cfg.JWT = config.JWTConfig{Secret: "router-test-secret", Issuer: "lokapasar-test", ExpirationMinutes: 10}

	logg := logger.New(logger.Options{ServiceName: "router-test", Level: zerolog.ErrorLevel})
	tx := gormTxRunner{db: db}

	voucherSvc, err := vouchers.NewService(vouchers.NewRepository(db), tx)
	if err != nil {
		t.Fatalf("voucher service: %v", err)
	}

	orderRepo := orders.NewRepository(db)
	shopRepo := shops.NewRepository(db)

	// The order and shop services settle through the payment service, which
	// in turn calls back into them. Wire the leaf first with late-bound
	// markers.
	var orderSvc orders.Service
	var shopSvc shops.Service
	paymentSvc, err := payments.NewService(
		payments.NewRepository(db), tx, &stubGateway{},
		orderMarkerFunc(func(ctx context.Context, dbtx *gorm.DB, orderID uuid.UUID) error {
			return orderSvc.MarkPaid(ctx, dbtx, orderID)
		}),
		shopApproverFunc(func(ctx context.Context, dbtx *gorm.DB, shopID uuid.UUID) (bool, error) {
			return shopSvc.Approve(ctx, dbtx, shopID)
		}),
		nil, 0,
	)
	if err != nil {
		t.Fatalf("payments service: %v", err)
	}

	orderSvc, err = orders.NewService(
		orderRepo, tx, inventory.NewLedger(), discountAdapter{svc: voucherSvc},
		shopRepo, products.NewRepository(db), address.NewRepository(db),
		cart.NewRepository(db), paymentSvc,
	)
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}
	shopSvc, err = shops.NewService(shopRepo, paymentSvc, cfg.App.ShopRegistrationFee)
	if err != nil {
		t.Fatalf("shops service: %v", err)
	}

	handler := NewRouter(Deps{
		Config:      cfg,
		Logger:      logg,
		HTTPMetrics: metrics.NewHTTPMetrics(),
		Orders:      orderSvc,
		Vouchers:    voucherSvc,
		Shops:       shopSvc,
		Payments:    paymentSvc,
	})
	return &routerEnv{db: db, handler: handler, cfg: cfg}
}

type orderMarkerFunc func(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error

func (f orderMarkerFunc) MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return f(ctx, tx, orderID)
}

type shopApproverFunc func(ctx context.Context, tx *gorm.DB, shopID uuid.UUID) (bool, error)

func (f shopApproverFunc) Approve(ctx context.Context, tx *gorm.DB, shopID uuid.UUID) (bool, error) {
	return f(ctx, tx, shopID)
}

func (e *routerEnv) token(t *testing.T, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(e.cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (e *routerEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *routerEnv) seedCatalog(t *testing.T, customerID uuid.UUID) (shopID, productID, addressID uuid.UUID) {
	t.Helper()
	shop := models.Shop{
		ID:      uuid.New(),
		OwnerID: uuid.New(),
		Name:    "Toko Router",
		Slug:    "toko-router-" + uuid.NewString()[:8],
		Status:  enums.ShopStatusApproved,
	}
	if err := e.db.Create(&shop).Error; err != nil {
		t.Fatalf("seed shop: %v", err)
	}
	product := models.Product{
		ID:     uuid.New(),
		ShopID: shop.ID,
		Name:   "Produk Router",
		Price:  50000,
		Status: enums.ProductStatusActive,
	}
	if err := e.db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := e.db.Create(&models.InventoryItem{ProductID: product.ID, AvailableQty: 10}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	addr := models.Address{
		ID:         uuid.New(),
		UserID:     customerID,
		Recipient:  "Sari",
		Phone:      "+62812222222",
		Line1:      "Jl. Kenanga 2",
		City:       "Surabaya",
		Province:   "Jawa Timur",
		PostalCode: "60111",
	}
	if err := e.db.Create(&addr).Error; err != nil {
		t.Fatalf("seed address: %v", err)
	}
	return shop.ID, product.ID, addr.ID
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v (%s)", err, envelope.Data)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t)
	if rec := env.do(t, http.MethodGet, "/health/live", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("live status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/health/ready", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("ready status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
}

func TestAPIRoutesRequireAuth(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t)
	if rec := env.do(t, http.MethodPost, "/api/v1/orders", "", map[string]any{}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/vouchers/mine", "garbage-token", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestOrderCheckoutAndWebhookSettlement(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t)
	customerID := uuid.New()
	shopID, productID, addressID := env.seedCatalog(t, customerID)
	token := env.token(t, customerID, enums.UserRoleCustomer)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", token, map[string]any{
		"shop_id":        shopID.String(),
		"address_id":     addressID.String(),
		"payment_method": "gateway",
		"items": []map[string]any{
			{"product_id": productID.String(), "qty": 2},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order status = %d (%s)", rec.Code, rec.Body.String())
	}
	var created struct {
		OrderID uuid.UUID `json:"order_id"`
		Payment struct {
			IntentID    string `json:"intent_id"`
			RedirectURL string `json:"redirect_url"`
		} `json:"payment"`
	}
	decodeData(t, rec, &created)
	if created.Payment.IntentID == "" || created.Payment.RedirectURL == "" {
		t.Fatalf("missing payment handoff: %s", rec.Body.String())
	}

	// Gateway approves; the webhook settles the intent.
	rec = env.do(t, http.MethodPost, "/payments/webhook", "", map[string]any{
		"id":         "WH-router-1",
		"event_type": "CHECKOUT.ORDER.APPROVED",
		"resource":   map[string]any{"id": created.Payment.IntentID},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook status = %d (%s)", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/orders/"+created.OrderID.String(), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("detail status = %d", rec.Code)
	}
	var detail struct {
		Status enums.OrderStatus `json:"status"`
	}
	decodeData(t, rec, &detail)
	if detail.Status != enums.OrderStatusPaid {
		t.Fatalf("order status = %s, want paid", detail.Status)
	}
}

func TestUpdateOrderStatusReturnsEvent(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t)
	customerID := uuid.New()
	shopID, productID, addressID := env.seedCatalog(t, customerID)
	customerToken := env.token(t, customerID, enums.UserRoleCustomer)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", customerToken, map[string]any{
		"shop_id":        shopID.String(),
		"address_id":     addressID.String(),
		"payment_method": "cod",
		"items": []map[string]any{
			{"product_id": productID.String(), "qty": 1},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order status = %d (%s)", rec.Code, rec.Body.String())
	}
	var created struct {
		OrderID uuid.UUID `json:"order_id"`
	}
	decodeData(t, rec, &created)

	var shop models.Shop
	if err := env.db.First(&shop, "id = ?", shopID).Error; err != nil {
		t.Fatalf("load shop: %v", err)
	}
	sellerToken := env.token(t, shop.OwnerID, enums.UserRoleSeller)

	rec = env.do(t, http.MethodPatch, "/api/v1/orders/"+created.OrderID.String()+"/status", sellerToken, map[string]any{
		"status": "shipping",
		"note":   "diserahkan ke kurir",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d (%s)", rec.Code, rec.Body.String())
	}
	var event struct {
		Status    string    `json:"status"`
		Note      string    `json:"note"`
		CreatedAt time.Time `json:"created_at"`
	}
	decodeData(t, rec, &event)
	if event.Status != "shipping" {
		t.Fatalf("event status = %q, want shipping", event.Status)
	}
	if event.Note != "diserahkan ke kurir" {
		t.Fatalf("event note = %q", event.Note)
	}
	if event.CreatedAt.IsZero() {
		t.Fatalf("event created_at missing: %s", rec.Body.String())
	}
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t)
	rec := env.do(t, http.MethodPost, "/payments/webhook", "", map[string]any{
		"id":         "WH-other",
		"event_type": "PAYMENT.CAPTURE.REFUNDED",
		"resource":   map[string]any{"id": "GW-1"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Status string `json:"status"`
	}
	decodeData(t, rec, &body)
	if body.Status != "ignored" {
		t.Fatalf("status field = %q, want ignored", body.Status)
	}
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPaymentCaptureCallback(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t)
	customerID := uuid.New()
	shopID, productID, addressID := env.seedCatalog(t, customerID)
	token := env.token(t, customerID, enums.UserRoleCustomer)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", token, map[string]any{
		"shop_id":        shopID.String(),
		"address_id":     addressID.String(),
		"payment_method": "gateway",
		"items":          []map[string]any{{"product_id": productID.String(), "qty": 1}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order status = %d", rec.Code)
	}
	var created struct {
		Payment struct {
			IntentID string `json:"intent_id"`
		} `json:"payment"`
	}
	decodeData(t, rec, &created)

	rec = env.do(t, http.MethodGet, "/payments/capture?intent_id="+created.Payment.IntentID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("capture status = %d (%s)", rec.Code, rec.Body.String())
	}
	var result struct {
		SubjectType    string `json:"subject_type"`
		AlreadySettled bool   `json:"already_settled"`
	}
	decodeData(t, rec, &result)
	if result.SubjectType != "order" || result.AlreadySettled {
		t.Fatalf("unexpected settlement result: %s", rec.Body.String())
	}

	// Replaying the callback is harmless.
	rec = env.do(t, http.MethodGet, "/payments/capture?intent_id="+created.Payment.IntentID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay status = %d", rec.Code)
	}
	decodeData(t, rec, &result)
	if !result.AlreadySettled {
		t.Fatalf("replay should be already settled: %s", rec.Body.String())
	}
}

func TestShopRegistrationAndFeeSettlement(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t)
	ownerID := uuid.New()
	token := env.token(t, ownerID, enums.UserRoleCustomer)

	rec := env.do(t, http.MethodPost, "/api/v1/shops", token, map[string]any{"name": "Warung Router"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d (%s)", rec.Code, rec.Body.String())
	}
	var registered struct {
		ShopID  uuid.UUID `json:"shop_id"`
		Status  string    `json:"status"`
		Payment struct {
			IntentID string `json:"intent_id"`
		} `json:"payment"`
	}
	decodeData(t, rec, &registered)
	if registered.Status != "pending" {
		t.Fatalf("status = %s, want pending", registered.Status)
	}

	rec = env.do(t, http.MethodGet, "/payments/capture?intent_id="+registered.Payment.IntentID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("capture status = %d (%s)", rec.Code, rec.Body.String())
	}

	var shop models.Shop
	if err := env.db.First(&shop, "id = ?", registered.ShopID).Error; err != nil {
		t.Fatalf("load shop: %v", err)
	}
	if shop.Status != enums.ShopStatusApproved {
		t.Fatalf("shop status = %s, want approved", shop.Status)
	}
}

func TestVoucherLifecycleOverHTTP(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t)
	customerID := uuid.New()
	adminToken := env.token(t, uuid.New(), enums.UserRoleAdmin)
	customerToken := env.token(t, customerID, enums.UserRoleCustomer)

	rec := env.do(t, http.MethodPost, "/api/v1/vouchers", adminToken, map[string]any{
		"code":       "ROUTER10",
		"type":       "percent",
		"value":      10,
		"max_amount": 20000,
		"quantity":   5,
		"starts_at":  "2026-01-01T00:00:00Z",
		"expires_at": "2030-01-01T00:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create voucher status = %d (%s)", rec.Code, rec.Body.String())
	}
	var voucher struct {
		VoucherID uuid.UUID `json:"voucher_id"`
	}
	decodeData(t, rec, &voucher)

	// Customers cannot create vouchers.
	rec = env.do(t, http.MethodPost, "/api/v1/vouchers", customerToken, map[string]any{
		"code": "NOPE", "type": "fixed", "value": 1000, "quantity": 1,
		"starts_at": "2026-01-01T00:00:00Z", "expires_at": "2030-01-01T00:00:00Z",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("customer create status = %d, want 403", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/vouchers/"+voucher.VoucherID.String()+"/claim", customerToken, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("claim status = %d (%s)", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/vouchers/mine", customerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mine status = %d", rec.Code)
	}
	var mine struct {
		Vouchers []struct {
			Code string `json:"code"`
		} `json:"vouchers"`
	}
	decodeData(t, rec, &mine)
	if len(mine.Vouchers) != 1 || mine.Vouchers[0].Code != "ROUTER10" {
		t.Fatalf("unexpected claims: %s", rec.Body.String())
	}
}
