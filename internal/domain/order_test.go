package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{OrderPending, OrderFulfilled, true},
		{OrderPending, OrderCanceled, true},
		{OrderPending, OrderReturned, false},
		{OrderFulfilled, OrderReturned, true},
		{OrderFulfilled, OrderCanceled, false},
		{OrderFulfilled, OrderPending, false},
		{OrderCanceled, OrderFulfilled, false},
		{OrderCanceled, OrderReturned, false},
		{OrderReturned, OrderPending, false},
		{OrderReturned, OrderFulfilled, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransitionTo(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestOrderTransitionReasonRequired(t *testing.T) {
	assert.False(t, OrderFulfilled.ReasonRequired())
	assert.True(t, OrderCanceled.ReasonRequired())
	assert.True(t, OrderReturned.ReasonRequired())
}

func TestRefundable(t *testing.T) {
	assert.False(t, Refundable(OrderFulfilled))
	assert.True(t, Refundable(OrderCanceled))
	assert.True(t, Refundable(OrderReturned))
}

func TestSnapshotItemFreezesProduct(t *testing.T) {
	qty := int64(3)
	p := &Product{ID: uuid.New(), Name: "Hoodie", PriceCoins: 40, StockType: StockUnlimited, IsActive: true}

	item := SnapshotItem(p, qty)
	require.Equal(t, int64(120), item.LineTotal)

	// Later product edits must not leak into the snapshot.
	p.Name = "Hoodie v2"
	p.PriceCoins = 55
	assert.Equal(t, "Hoodie", item.ProductName)
	assert.Equal(t, int64(40), item.PriceCoins)
}

func TestProductPurchasable(t *testing.T) {
	ten := int64(10)
	p := &Product{StockType: StockLimited, StockQuantity: &ten, IsActive: true}

	assert.NoError(t, p.Purchasable(10))
	assert.ErrorIs(t, p.Purchasable(11), ErrInsufficientStock)

	p.IsActive = false
	assert.ErrorIs(t, p.Purchasable(1), ErrStateConflict)

	unlimited := &Product{StockType: StockUnlimited, IsActive: true}
	assert.NoError(t, unlimited.Purchasable(1_000_000))
}

func TestProductRequestValidate(t *testing.T) {
	neg := int64(-1)
	fifty := int64(50)

	err := ProductRequest{Name: "Mug", PriceCoins: 10, StockType: StockLimited, StockQuantity: &fifty}.Validate()
	assert.NoError(t, err)

	err = ProductRequest{PriceCoins: 0, StockType: StockLimited, StockQuantity: &neg}.Validate()
	require.Error(t, err)
	fe := err.(FieldErrors)
	assert.Contains(t, fe, "name")
	assert.Contains(t, fe, "price_coins")
	assert.Contains(t, fe, "stock_quantity")

	err = ProductRequest{Name: "Mug", PriceCoins: 10, StockType: StockUnlimited, StockQuantity: &fifty}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.(FieldErrors), "stock_quantity")

	err = ProductRequest{Name: "Mug", PriceCoins: MaxProductPrice + 1, StockType: StockUnlimited}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.(FieldErrors), "price_coins")
}

func TestCreateOrderRequestValidate(t *testing.T) {
	err := CreateOrderRequest{}.Validate()
	require.Error(t, err)
	fe := err.(FieldErrors)
	assert.Contains(t, fe, "student_id")
	assert.Contains(t, fe, "items")

	err = CreateOrderRequest{
		StudentID: uuid.New(),
		Items:     []OrderItemRequest{{ProductID: uuid.New(), Quantity: 0}},
	}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.(FieldErrors), "items")
}

func TestCreateOrderRequestQuantityCap(t *testing.T) {
	ok := CreateOrderRequest{
		StudentID: uuid.New(),
		Items:     []OrderItemRequest{{ProductID: uuid.New(), Quantity: MaxOrderItemQuantity}},
	}
	assert.NoError(t, ok.Validate())

	// A quantity past the cap would wrap price*qty around int64 and let an
	// enormous order through the balance check at a tiny wrapped total.
	huge := CreateOrderRequest{
		StudentID: uuid.New(),
		Items:     []OrderItemRequest{{ProductID: uuid.New(), Quantity: int64(1)<<62 + 1}},
	}
	err := huge.Validate()
	require.Error(t, err)
	assert.Contains(t, err.(FieldErrors), "items")

	overCap := CreateOrderRequest{
		StudentID: uuid.New(),
		Items:     []OrderItemRequest{{ProductID: uuid.New(), Quantity: MaxOrderItemQuantity + 1}},
	}
	err = overCap.Validate()
	require.Error(t, err)
	assert.Contains(t, err.(FieldErrors), "items")
}

func TestLineTotalStaysExactAtCaps(t *testing.T) {
	p := &Product{ID: uuid.New(), Name: "Sticker", PriceCoins: MaxProductPrice, StockType: StockUnlimited, IsActive: true}
	item := SnapshotItem(p, MaxOrderItemQuantity)
	assert.Equal(t, int64(MaxProductPrice)*MaxOrderItemQuantity, item.LineTotal)
	assert.Positive(t, item.LineTotal)
}

func TestActionFor(t *testing.T) {
	assert.Equal(t, AuditFulfilled, ActionFor(OrderFulfilled))
	assert.Equal(t, AuditCanceled, ActionFor(OrderCanceled))
	assert.Equal(t, AuditReturned, ActionFor(OrderReturned))
	assert.Equal(t, AuditCreated, ActionFor(OrderPending))
}
