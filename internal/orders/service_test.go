package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dhanwira/lokapasar-backend/internal/address"
	"github.com/dhanwira/lokapasar-backend/internal/cart"
	"github.com/dhanwira/lokapasar-backend/internal/inventory"
	"github.com/dhanwira/lokapasar-backend/internal/payments"
	"github.com/dhanwira/lokapasar-backend/internal/products"
	"github.com/dhanwira/lokapasar-backend/internal/shops"
	"github.com/dhanwira/lokapasar-backend/internal/vouchers"
	"github.com/dhanwira/lokapasar-backend/pkg/db/models"
	"github.com/dhanwira/lokapasar-backend/pkg/enums"
	pkgerrors "github.com/dhanwira/lokapasar-backend/pkg/errors"
	"github.com/dhanwira/lokapasar-backend/pkg/pagination"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubIntents struct {
	fail  bool
	calls int
}

func (s *stubIntents) CreateOrderIntent(_ context.Context, orderID uuid.UUID, amount int64) (*payments.Redirect, error) {
	s.calls++
	if s.fail {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway unavailable")
	}
	return &payments.Redirect{
		IntentID:    fmt.Sprintf("GW-%d", s.calls),
		RedirectURL: "https://gateway.example.com/approve/" + orderID.String(),
	}, nil
}

type discountAdapter struct {
	svc vouchers.Service
}

func (a discountAdapter) Evaluate(ctx context.Context, tx *gorm.DB, input DiscountInput) (int64, uuid.UUID, error) {
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

type testEnv struct {
	db       *gorm.DB
	svc      Service
	vouchers vouchers.Service
	intents  *stubIntents
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Order{}, &models.OrderLine{}, &models.OrderStatusEvent{},
		&models.Voucher{}, &models.UserVoucher{}, &models.InventoryItem{},
		&models.Product{}, &models.Shop{}, &models.Address{}, &models.CartItem{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	tx := gormTxRunner{db: db}
	voucherSvc, err := vouchers.NewService(vouchers.NewRepository(db), tx)
	if err != nil {
		t.Fatalf("voucher service: %v", err)
	}
	intents := &stubIntents{}

	svc, err := NewService(
		NewRepository(db),
		tx,
		inventory.NewLedger(),
		discountAdapter{svc: voucherSvc},
		shops.NewRepository(db),
		products.NewRepository(db),
		address.NewRepository(db),
		cart.NewRepository(db),
		intents,
	)
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}
	return &testEnv{db: db, svc: svc, vouchers: voucherSvc, intents: intents}
}

func (e *testEnv) seedShop(t *testing.T, status enums.ShopStatus) (shopID, ownerID uuid.UUID) {
	t.Helper()
	ownerID = uuid.New()
	shop := models.Shop{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Name:    "Toko Uji",
		Slug:    "toko-uji-" + uuid.NewString()[:8],
		Status:  status,
	}
	if err := e.db.Create(&shop).Error; err != nil {
		t.Fatalf("seed shop: %v", err)
	}
	return shop.ID, ownerID
}

func (e *testEnv) seedProduct(t *testing.T, shopID uuid.UUID, price int64, stock int) uuid.UUID {
	t.Helper()
	product := models.Product{
		ID:     uuid.New(),
		ShopID: shopID,
		Name:   "Produk Uji",
		Price:  price,
		Status: enums.ProductStatusActive,
	}
	if err := e.db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := e.db.Create(&models.InventoryItem{ProductID: product.ID, AvailableQty: stock}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	return product.ID
}

func (e *testEnv) seedAddress(t *testing.T, userID uuid.UUID) uuid.UUID {
	t.Helper()
	addr := models.Address{
		ID:         uuid.New(),
		UserID:     userID,
		Recipient:  "Budi",
		Phone:      "+62811111111",
		Line1:      "Jl. Melati 1",
		City:       "Bandung",
		Province:   "Jawa Barat",
		PostalCode: "40111",
	}
	if err := e.db.Create(&addr).Error; err != nil {
		t.Fatalf("seed address: %v", err)
	}
	return addr.ID
}

func (e *testEnv) inventoryOf(t *testing.T, productID uuid.UUID) models.InventoryItem {
	t.Helper()
	var item models.InventoryItem
	if err := e.db.First(&item, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	return item
}

func TestCreateOrderCOD(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	customerID := uuid.New()
	shopID, _ := env.seedShop(t, enums.ShopStatusApproved)
	productID := env.seedProduct(t, shopID, 25000, 10)
	otherProductID := env.seedProduct(t, shopID, 10000, 5)
	addressID := env.seedAddress(t, customerID)

	// Two cart entries; only the ordered product should be cleared.
	for _, pid := range []uuid.UUID{productID, otherProductID} {
		if err := env.db.Create(&models.CartItem{ID: uuid.New(), UserID: customerID, ProductID: pid, Quantity: 2}).Error; err != nil {
			t.Fatalf("seed cart: %v", err)
		}
	}

	result, err := env.svc.Create(ctx, CreateOrderInput{
		CustomerID:    customerID,
		ShopID:        shopID,
		AddressID:     addressID,
		PaymentMethod: enums.PaymentMethodCOD,
		Items:         []OrderItemInput{{ProductID: productID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if result.TotalAmount != 50000 || result.FinalAmount != 50000 || result.DiscountAmount != 0 {
		t.Fatalf("unexpected amounts: %+v", result)
	}
	if result.Status != enums.OrderStatusPending || result.Payment != nil {
		t.Fatalf("cod order should be pending without payment handoff: %+v", result)
	}

	item := env.inventoryOf(t, productID)
	if item.AvailableQty != 8 || item.SoldQty != 2 {
		t.Fatalf("inventory not reserved: %+v", item)
	}

	detail, err := env.svc.Get(ctx, result.OrderID, Actor{UserID: customerID, Role: enums.UserRoleCustomer})
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(detail.Lines) != 1 || detail.Lines[0].UnitPrice != 25000 || detail.Lines[0].Subtotal != 50000 {
		t.Fatalf("unexpected line snapshot: %+v", detail.Lines)
	}
	if detail.Status != enums.OrderStatusPending {
		t.Fatalf("expected pending, got %s", detail.Status)
	}

	var cartItems []models.CartItem
	if err := env.db.Where("user_id = ?", customerID).Find(&cartItems).Error; err != nil {
		t.Fatalf("load cart: %v", err)
	}
	if len(cartItems) != 1 || cartItems[0].ProductID != otherProductID {
		t.Fatalf("expected only the unordered cart entry to remain, got %+v", cartItems)
	}
}

func TestCreateOrderWithVoucher(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	customerID := uuid.New()
	shopID, _ := env.seedShop(t, enums.ShopStatusApproved)
	productID := env.seedProduct(t, shopID, 100000, 10)
	addressID := env.seedAddress(t, customerID)

	voucher := seedClaimedVoucher(t, env, customerID, vouchers.CreateInput{
		Type:      enums.VoucherTypePercent,
		Value:     10,
		MaxAmount: 8000,
		Quantity:  5,
	})

	result, err := env.svc.Create(ctx, CreateOrderInput{
		CustomerID:    customerID,
		ShopID:        shopID,
		AddressID:     addressID,
		PaymentMethod: enums.PaymentMethodCOD,
		VoucherID:     &voucher,
		Items:         []OrderItemInput{{ProductID: productID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if result.DiscountAmount != 8000 || result.FinalAmount != 92000 {
		t.Fatalf("unexpected discount application: %+v", result)
	}

	// The claim is consumed and linked to the order.
	var claim models.UserVoucher
	if err := env.db.First(&claim, "user_id = ? AND voucher_id = ?", customerID, voucher).Error; err != nil {
		t.Fatalf("load claim: %v", err)
	}
	if !claim.Used || claim.OrderID == nil || *claim.OrderID != result.OrderID {
		t.Fatalf("claim not consumed: %+v", claim)
	}
}

func voucherDefaults(input vouchers.CreateInput) vouchers.CreateInput {
	if input.Code == "" {
		input.Code = "TEST-" + uuid.NewString()[:8]
	}
	if input.StartsAt.IsZero() {
		input.StartsAt = time.Now().Add(-time.Hour)
	}
	if input.ExpiresAt.IsZero() {
		input.ExpiresAt = time.Now().Add(24 * time.Hour)
	}
	return input
}

func seedClaimedVoucher(t *testing.T, env *testEnv, userID uuid.UUID, input vouchers.CreateInput) uuid.UUID {
	t.Helper()
	base := voucherDefaults(input)
	created, err := env.vouchers.Create(context.Background(), base)
	if err != nil {
		t.Fatalf("create voucher: %v", err)
	}
	if _, err := env.vouchers.Claim(context.Background(), userID, created.ID); err != nil {
		t.Fatalf("claim voucher: %v", err)
	}
	return created.ID
}

func TestCreateOrderInsufficientStockRollsBack(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	customerID := uuid.New()
	shopID, _ := env.seedShop(t, enums.ShopStatusApproved)
	okProduct := env.seedProduct(t, shopID, 10000, 10)
	shortProduct := env.seedProduct(t, shopID, 10000, 1)
	addressID := env.seedAddress(t, customerID)

	_, err := env.svc.Create(ctx, CreateOrderInput{
		CustomerID:    customerID,
		ShopID:        shopID,
		AddressID:     addressID,
		PaymentMethod: enums.PaymentMethodCOD,
		Items: []OrderItemInput{
			{ProductID: okProduct, Qty: 2},
			{ProductID: shortProduct, Qty: 3},
		},
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	// Nothing from the failed order may persist.
	var count int64
	if err := env.db.Model(&models.Order{}).Count(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback, found %d orders", count)
	}
	if item := env.inventoryOf(t, okProduct); item.AvailableQty != 10 || item.SoldQty != 0 {
		t.Fatalf("reservation leaked through rollback: %+v", item)
	}
}

func TestCreateOrderValidations(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	customerID := uuid.New()
	shopID, _ := env.seedShop(t, enums.ShopStatusApproved)
	pendingShopID, _ := env.seedShop(t, enums.ShopStatusPending)
	productID := env.seedProduct(t, shopID, 10000, 10)
	addressID := env.seedAddress(t, customerID)
	strangerAddressID := env.seedAddress(t, uuid.New())

	valid := CreateOrderInput{
		CustomerID:    customerID,
		ShopID:        shopID,
		AddressID:     addressID,
		PaymentMethod: enums.PaymentMethodCOD,
		Items:         []OrderItemInput{{ProductID: productID, Qty: 1}},
	}

	tests := []struct {
		name   string
		mutate func(*CreateOrderInput)
		code   pkgerrors.Code
	}{
		{"unknown shop", func(in *CreateOrderInput) { in.ShopID = uuid.New() }, pkgerrors.CodeNotFound},
		{"unapproved shop", func(in *CreateOrderInput) { in.ShopID = pendingShopID }, pkgerrors.CodeStateConflict},
		{"unknown address", func(in *CreateOrderInput) { in.AddressID = uuid.New() }, pkgerrors.CodeNotFound},
		{"foreign address", func(in *CreateOrderInput) { in.AddressID = strangerAddressID }, pkgerrors.CodeForbidden},
		{"unknown product", func(in *CreateOrderInput) { in.Items = []OrderItemInput{{ProductID: uuid.New(), Qty: 1}} }, pkgerrors.CodeNotFound},
		{"zero qty", func(in *CreateOrderInput) { in.Items = []OrderItemInput{{ProductID: productID, Qty: 0}} }, pkgerrors.CodeValidation},
		{"no items", func(in *CreateOrderInput) { in.Items = nil }, pkgerrors.CodeValidation},
		{"bad payment method", func(in *CreateOrderInput) { in.PaymentMethod = "wire" }, pkgerrors.CodeValidation},
		{"duplicate product", func(in *CreateOrderInput) {
			in.Items = []OrderItemInput{{ProductID: productID, Qty: 1}, {ProductID: productID, Qty: 2}}
		}, pkgerrors.CodeValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := valid
			tc.mutate(&input)
			_, err := env.svc.Create(ctx, input)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestCreateOrderSoftDeletedEntities(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	customerID := uuid.New()
	shopID, _ := env.seedShop(t, enums.ShopStatusApproved)
	productID := env.seedProduct(t, shopID, 10000, 10)
	addressID := env.seedAddress(t, customerID)

	valid := CreateOrderInput{
		CustomerID:    customerID,
		ShopID:        shopID,
		AddressID:     addressID,
		PaymentMethod: enums.PaymentMethodCOD,
		Items:         []OrderItemInput{{ProductID: productID, Qty: 1}},
	}

	tests := []struct {
		name   string
		flag   func(t *testing.T)
		unflag func(t *testing.T)
	}{
		{
			name:   "deleted shop",
			flag:   func(t *testing.T) { env.setDeleted(t, &models.Shop{}, shopID, true) },
			unflag: func(t *testing.T) { env.setDeleted(t, &models.Shop{}, shopID, false) },
		},
		{
			name:   "deleted address",
			flag:   func(t *testing.T) { env.setDeleted(t, &models.Address{}, addressID, true) },
			unflag: func(t *testing.T) { env.setDeleted(t, &models.Address{}, addressID, false) },
		},
		{
			name:   "deleted product",
			flag:   func(t *testing.T) { env.setDeleted(t, &models.Product{}, productID, true) },
			unflag: func(t *testing.T) { env.setDeleted(t, &models.Product{}, productID, false) },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.flag(t)
			defer tc.unflag(t)

			_, err := env.svc.Create(ctx, valid)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
				t.Fatalf("expected not found, got %v", err)
			}
		})
	}
}

func (e *testEnv) setDeleted(t *testing.T, model any, id uuid.UUID, deleted bool) {
	t.Helper()
	if err := e.db.Model(model).Where("id = ?", id).Update("deleted", deleted).Error; err != nil {
		t.Fatalf("flag deleted: %v", err)
	}
}

func TestCreateOrderProductFromOtherShop(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	customerID := uuid.New()
	shopID, _ := env.seedShop(t, enums.ShopStatusApproved)
	otherShopID, _ := env.seedShop(t, enums.ShopStatusApproved)
	foreignProduct := env.seedProduct(t, otherShopID, 10000, 5)
	addressID := env.seedAddress(t, customerID)

	_, err := env.svc.Create(context.Background(), CreateOrderInput{
		CustomerID:    customerID,
		ShopID:        shopID,
		AddressID:     addressID,
		PaymentMethod: enums.PaymentMethodCOD,
		Items:         []OrderItemInput{{ProductID: foreignProduct, Qty: 1}},
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateOrderGatewayIntentFailureLeavesOrder(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	customerID := uuid.New()
	shopID, _ := env.seedShop(t, enums.ShopStatusApproved)
	productID := env.seedProduct(t, shopID, 30000, 10)
	addressID := env.seedAddress(t, customerID)

	env.intents.fail = true
	_, err := env.svc.Create(ctx, CreateOrderInput{
		CustomerID:    customerID,
		ShopID:        shopID,
		AddressID:     addressID,
		PaymentMethod: enums.PaymentMethodGateway,
		Items:         []OrderItemInput{{ProductID: productID, Qty: 1}},
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	details, _ := typed.Details().(map[string]any)
	rawID, _ := details["order_id"].(string)
	orderID, perr := uuid.Parse(rawID)
	if perr != nil {
		t.Fatalf("expected order id in error details, got %v", typed.Details())
	}

	// The order and its reservation survive the intent failure.
	var order models.Order
	if err := env.db.First(&order, "id = ?", orderID).Error; err != nil {
		t.Fatalf("order should persist: %v", err)
	}
	if item := env.inventoryOf(t, productID); item.SoldQty != 1 {
		t.Fatalf("reservation lost: %+v", item)
	}

	// The retry endpoint opens a fresh intent once the gateway recovers.
	env.intents.fail = false
	redirect, err := env.svc.CreatePaymentIntent(ctx, orderID, customerID)
	if err != nil {
		t.Fatalf("retry intent: %v", err)
	}
	if redirect.IntentID == "" || redirect.RedirectURL == "" {
		t.Fatalf("unexpected redirect: %+v", redirect)
	}
}

func TestCreatePaymentIntentGuards(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	customerID := uuid.New()
	shopID, _ := env.seedShop(t, enums.ShopStatusApproved)
	productID := env.seedProduct(t, shopID, 30000, 10)
	addressID := env.seedAddress(t, customerID)

	result, err := env.svc.Create(ctx, CreateOrderInput{
		CustomerID:    customerID,
		ShopID:        shopID,
		AddressID:     addressID,
		PaymentMethod: enums.PaymentMethodGateway,
		Items:         []OrderItemInput{{ProductID: productID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := env.svc.CreatePaymentIntent(ctx, result.OrderID, uuid.New()); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}

	// Once paid, further intents are refused.
	if err := env.svc.MarkPaid(ctx, env.db, result.OrderID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	_, err = env.svc.CreatePaymentIntent(ctx, result.OrderID, customerID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict after payment, got %v", err)
	}
}

func TestUpdateStatusFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	customerID := uuid.New()
	shopID, ownerID := env.seedShop(t, enums.ShopStatusApproved)
	productID := env.seedProduct(t, shopID, 30000, 10)
	addressID := env.seedAddress(t, customerID)

	result, err := env.svc.Create(ctx, CreateOrderInput{
		CustomerID:    customerID,
		ShopID:        shopID,
		AddressID:     addressID,
		PaymentMethod: enums.PaymentMethodCOD,
		Items:         []OrderItemInput{{ProductID: productID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	owner := Actor{UserID: ownerID, Role: enums.UserRoleSeller}

	// The customer cannot drive shipping transitions.
	_, err = env.svc.UpdateStatus(ctx, UpdateStatusInput{
		OrderID: result.OrderID,
		Actor:   Actor{UserID: customerID, Role: enums.UserRoleCustomer},
		Target:  enums.OrderStatusShipping,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden for customer, got %v", err)
	}

	// Targets outside shipping/delivered are rejected up front.
	_, err = env.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: result.OrderID, Actor: owner, Target: enums.OrderStatusPaid})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	shipped, err := env.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: result.OrderID, Actor: owner, Target: enums.OrderStatusShipping, Note: "kurir dijadwalkan"})
	if err != nil {
		t.Fatalf("pending -> shipping: %v", err)
	}
	if shipped == nil || shipped.Status != enums.OrderStatusShipping || shipped.Note != "kurir dijadwalkan" || shipped.CreatedAt.IsZero() {
		t.Fatalf("unexpected shipping event view: %+v", shipped)
	}

	// Skipping ahead or going back violates the table.
	_, err = env.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: result.OrderID, Actor: owner, Target: enums.OrderStatusShipping})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict repeating shipping, got %v", err)
	}

	if _, err := env.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: result.OrderID, Actor: owner, Target: enums.OrderStatusDelivered}); err != nil {
		t.Fatalf("shipping -> delivered: %v", err)
	}

	history, err := env.svc.History(ctx, result.OrderID, owner)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 events, got %d", len(history))
	}
	if history[0].Status != enums.OrderStatusDelivered || history[2].Status != enums.OrderStatusPending {
		t.Fatalf("history not newest-first: %+v", history)
	}
}

func TestCancelReleasesStock(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	customerID := uuid.New()
	shopID, _ := env.seedShop(t, enums.ShopStatusApproved)
	productID := env.seedProduct(t, shopID, 30000, 10)
	addressID := env.seedAddress(t, customerID)
	customer := Actor{UserID: customerID, Role: enums.UserRoleCustomer}

	result, err := env.svc.Create(ctx, CreateOrderInput{
		CustomerID:    customerID,
		ShopID:        shopID,
		AddressID:     addressID,
		PaymentMethod: enums.PaymentMethodCOD,
		Items:         []OrderItemInput{{ProductID: productID, Qty: 4}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if item := env.inventoryOf(t, productID); item.AvailableQty != 6 {
		t.Fatalf("reserve failed: %+v", item)
	}

	if err := env.svc.Cancel(ctx, result.OrderID, customer); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if item := env.inventoryOf(t, productID); item.AvailableQty != 10 || item.SoldQty != 0 {
		t.Fatalf("stock not released: %+v", item)
	}

	var order models.Order
	if err := env.db.First(&order, "id = ?", result.OrderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if !order.Deleted {
		t.Fatal("order should be soft deleted")
	}

	// A second cancel must conflict, not double-release.
	err = env.svc.Cancel(ctx, result.OrderID, customer)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict on repeat cancel, got %v", err)
	}
	if item := env.inventoryOf(t, productID); item.AvailableQty != 10 {
		t.Fatalf("double release detected: %+v", item)
	}
}

func TestCancelAfterShippingRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	customerID := uuid.New()
	shopID, ownerID := env.seedShop(t, enums.ShopStatusApproved)
	productID := env.seedProduct(t, shopID, 30000, 10)
	addressID := env.seedAddress(t, customerID)

	result, err := env.svc.Create(ctx, CreateOrderInput{
		CustomerID:    customerID,
		ShopID:        shopID,
		AddressID:     addressID,
		PaymentMethod: enums.PaymentMethodCOD,
		Items:         []OrderItemInput{{ProductID: productID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	owner := Actor{UserID: ownerID, Role: enums.UserRoleSeller}
	if _, err := env.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: result.OrderID, Actor: owner, Target: enums.OrderStatusShipping}); err != nil {
		t.Fatalf("ship: %v", err)
	}

	err = env.svc.Cancel(ctx, result.OrderID, Actor{UserID: customerID})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict cancelling shipped order, got %v", err)
	}
}

func TestHistoryAuthorization(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	customerID := uuid.New()
	shopID, _ := env.seedShop(t, enums.ShopStatusApproved)
	productID := env.seedProduct(t, shopID, 30000, 10)
	addressID := env.seedAddress(t, customerID)

	result, err := env.svc.Create(ctx, CreateOrderInput{
		CustomerID:    customerID,
		ShopID:        shopID,
		AddressID:     addressID,
		PaymentMethod: enums.PaymentMethodCOD,
		Items:         []OrderItemInput{{ProductID: productID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	_, err = env.svc.History(ctx, result.OrderID, Actor{UserID: uuid.New()})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}
}

func TestListForCustomer(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	customerID := uuid.New()
	shopID, _ := env.seedShop(t, enums.ShopStatusApproved)
	productID := env.seedProduct(t, shopID, 10000, 100)
	addressID := env.seedAddress(t, customerID)

	var orderIDs []uuid.UUID
	for i := 0; i < 3; i++ {
		result, err := env.svc.Create(ctx, CreateOrderInput{
			CustomerID:    customerID,
			ShopID:        shopID,
			AddressID:     addressID,
			PaymentMethod: enums.PaymentMethodCOD,
			Items:         []OrderItemInput{{ProductID: productID, Qty: 1}},
		})
		if err != nil {
			t.Fatalf("create order %d: %v", i, err)
		}
		orderIDs = append(orderIDs, result.OrderID)
	}

	// Cancelled orders disappear from the listing.
	if err := env.svc.Cancel(ctx, orderIDs[0], Actor{UserID: customerID}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	list, err := env.svc.ListForCustomer(ctx, customerID, pagination.Params{Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Orders) != 2 {
		t.Fatalf("expected 2 visible orders, got %d", len(list.Orders))
	}
	for _, summary := range list.Orders {
		if summary.OrderID == orderIDs[0] {
			t.Fatal("cancelled order leaked into listing")
		}
		if summary.Status != enums.OrderStatusPending {
			t.Fatalf("unexpected status %s", summary.Status)
		}
	}

	// Page size one yields a cursor for the next page.
	page, err := env.svc.ListForCustomer(ctx, customerID, pagination.Params{Limit: 1})
	if err != nil {
		t.Fatalf("paged list: %v", err)
	}
	if len(page.Orders) != 1 || page.NextCursor == "" {
		t.Fatalf("expected one row plus cursor, got %+v", page)
	}
	rest, err := env.svc.ListForCustomer(ctx, customerID, pagination.Params{Limit: 1, Cursor: page.NextCursor})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(rest.Orders) != 1 || rest.Orders[0].OrderID == page.Orders[0].OrderID {
		t.Fatalf("expected distinct second page, got %+v", rest)
	}
}
