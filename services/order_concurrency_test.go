package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AllanGomesCorrea/QRmenu-sub001/events"
	"github.com/AllanGomesCorrea/QRmenu-sub001/models"
)

// parallel menjalankan fn n kali secara bersamaan dan mengumpulkan error-nya
func parallel(n int, fn func(i int) error) []error {
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func countWinners(t *testing.T, errs []error) int {
	t.Helper()
	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.True(t, errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrConflict), "unexpected error: %v", err)
	}
	return winners
}

func TestUpdateOrderStatus_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	verified := f.verified(t, "Ana", testPhone, testFP)
	order := f.placeOrder(t, verified.Token)
	f.rec.reset()

	errs := parallel(8, func(int) error {
		_, err := f.orders.UpdateOrderStatus(ctx, f.restaurant.ID, order.ID, models.OrderConfirmed, "")
		return err
	})
	assert.Equal(t, 1, countWinners(t, errs))
	assert.Len(t, f.rec.byEvent(events.OrderUpdated), 1)
	assert.Len(t, f.rec.byEvent(events.OrderConfirmed), 1)

	var stored models.Order
	require.NoError(t, f.db.First(&stored, order.ID).Error)
	assert.Equal(t, models.OrderConfirmed, stored.Status)
}

func TestUpdateOrderStatus_ConcurrentConfirmAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	verified := f.verified(t, "Ana", testPhone, testFP)
	order := f.placeOrder(t, verified.Token)

	// setengah konfirmasi, setengah cancel; transisi per order diserialisasi
	errs := parallel(6, func(i int) error {
		if i%2 == 0 {
			_, err := f.orders.UpdateOrderStatus(ctx, f.restaurant.ID, order.ID, models.OrderConfirmed, "")
			return err
		}
		_, err := f.orders.CancelOrder(ctx, f.restaurant.ID, order.ID, "kitchen closed")
		return err
	})
	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		}
	}
	// CONFIRMED -> CANCELLED sah, jadi satu confirm lalu satu cancel bisa sama-sama lolos
	assert.GreaterOrEqual(t, winners, 1)
	assert.LessOrEqual(t, winners, 2)

	var stored models.Order
	require.NoError(t, f.db.First(&stored, order.ID).Error)
	assert.Contains(t, []string{models.OrderConfirmed, models.OrderCancelled}, stored.Status)
	if stored.Status == models.OrderCancelled {
		assert.Len(t, f.rec.byEvent(events.OrderCancelled), 1)
	} else {
		assert.Empty(t, f.rec.byEvent(events.OrderCancelled))
	}
}

func TestUpdateItemStatus_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	verified := f.verified(t, "Ana", testPhone, testFP)
	order := f.placeOrder(t, verified.Token)
	itemID := order.Items[0].ID
	f.rec.reset()

	errs := parallel(8, func(int) error {
		_, _, err := f.orders.UpdateItemStatus(ctx, f.restaurant.ID, order.ID, itemID, models.ItemPreparing)
		return err
	})
	assert.Equal(t, 1, countWinners(t, errs))
	assert.Len(t, f.rec.byEvent(events.OrderItemUpdated), 1)

	var item models.OrderItem
	require.NoError(t, f.db.First(&item, itemID).Error)
	assert.Equal(t, models.ItemPreparing, item.Status)
}

func TestCreateOrder_ConcurrentNumbersAreConsecutive(t *testing.T) {
	f := newFixture(t)
	ana := f.verified(t, "Ana", testPhone, testFP)
	bruno := f.verified(t, "Bruno", "11888888888", "D2")
	tokens := []string{ana.Token, bruno.Token}

	const n = 10
	numbers := make([]int64, n)
	errs := parallel(n, func(i int) error {
		order, err := f.orders.CreateOrder(context.Background(), tokens[i%2], CreateOrderInput{
			Items: []OrderItemInput{{MenuItemID: f.soda.ID, Quantity: 1}},
		})
		if err != nil {
			return err
		}
		numbers[i] = order.OrderNumber
		return nil
	})
	for _, err := range errs {
		require.NoError(t, err)
	}

	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for i, number := range numbers {
		assert.Equal(t, int64(i+1), number)
	}
	assert.Len(t, f.rec.byEvent(events.OrderCreated), n)
}

func TestCreateOrder_FailedInsertDoesNotConsumeNumber(t *testing.T) {
	f := newFixture(t)
	verified := f.verified(t, "Ana", testPhone, testFP)

	first := f.placeOrder(t, verified.Token)
	assert.Equal(t, int64(1), first.OrderNumber)

	// extra tidak tersedia: ditolak sebelum counter disentuh
	_, err := f.orders.CreateOrder(context.Background(), verified.Token, CreateOrderInput{
		Items: []OrderItemInput{{MenuItemID: f.burger.ID, Quantity: 1, ExtraIDs: []uint{f.burger.Extras[1].ID}}},
	})
	require.Error(t, err)
	require.NotNil(t, AsError(err))

	// insert gagal di dalam transaksi: counter ikut di-rollback
	restore := f.failWrites(t, "orders")
	_, err = f.orders.CreateOrder(context.Background(), verified.Token, CreateOrderInput{
		Items: []OrderItemInput{{MenuItemID: f.soda.ID, Quantity: 1}},
	})
	require.Error(t, err)
	assert.Nil(t, AsError(err))
	restore()

	var counter models.OrderCounter
	require.NoError(t, f.db.Where("restaurant_id = ?", f.restaurant.ID).First(&counter).Error)
	assert.Equal(t, int64(1), counter.LastNumber)

	second := f.placeOrder(t, verified.Token)
	assert.Equal(t, int64(2), second.OrderNumber)

	var count int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
