package main

import (
	"sync"

	"github.com/lucas-128/heladeria-concurrente/common/flavor"
)

// orderEntry is one order's bookkeeping: which screen originated it and
// its flavor/gram line items.
type orderEntry struct {
	screenID int
	details  flavor.Amounts
}

// OrderTable maps order id to the screen that originated it, the same
// (screen_id, details) pair every screen keeps a replica of so it can
// route an eventual Commit/Abort back to the right screen even after
// the originating screen has died and its orders were transferred.
type OrderTable struct {
	mu     sync.Mutex
	orders map[int]orderEntry
}

// NewOrderTable creates an empty table.
func NewOrderTable() *OrderTable {
	return &OrderTable{orders: make(map[int]orderEntry)}
}

// AddOrder records a freshly circulated order.
func (t *OrderTable) AddOrder(screenID, orderID int, details flavor.Amounts) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orders[orderID] = orderEntry{screenID: screenID, details: details}
}

// RemoveOrder drops orderID once it reaches a terminal outcome,
// returning the screen that originated it so the caller can tell
// whether that's this screen.
func (t *OrderTable) RemoveOrder(orderID int) (screenID int, details flavor.Amounts, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, found := t.orders[orderID]
	if !found {
		return 0, nil, false
	}
	delete(t.orders, orderID)
	return entry.screenID, entry.details, true
}

// TransferOrders reassigns every order attributed to fromScreenID over
// to toScreenID, used when fromScreenID dies and its in-flight orders
// move to the screen that absorbed its ring position, returning the
// ids of every order that changed hands.
func (t *OrderTable) TransferOrders(fromScreenID, toScreenID int) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var changed []int
	for orderID, entry := range t.orders {
		if entry.screenID == fromScreenID {
			entry.screenID = toScreenID
			t.orders[orderID] = entry
			changed = append(changed, orderID)
		}
	}
	return changed
}
