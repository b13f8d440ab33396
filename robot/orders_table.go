package main

import (
	"sync"

	"github.com/lucas-128/heladeria-concurrente/common/flavor"
)

// Order is one ice-cream order a robot owes, keyed by order id with its
// flavor/gram line items.
type Order struct {
	OrderID      int
	OrderDetails flavor.Amounts
}

// OrdersList is the queue of orders a single robot is working through.
type OrdersList struct {
	Orders []Order
}

func (l *OrdersList) add(orderID int, details flavor.Amounts) {
	l.Orders = append(l.Orders, Order{OrderID: orderID, OrderDetails: details})
}

func (l *OrdersList) remove(orderID int) {
	kept := l.Orders[:0]
	for _, o := range l.Orders {
		if o.OrderID != orderID {
			kept = append(kept, o)
		}
	}
	l.Orders = kept
}

// OrdersTable maps every known robot id to its OrdersList, used by the
// robot-leader to pick the least-loaded robot for a new order and, on a
// robot's death, to find and re-dispatch whatever it was working on.
type OrdersTable struct {
	mu      sync.Mutex
	ordersMap map[int]*OrdersList
}

// NewOrdersTable creates an empty table.
func NewOrdersTable() *OrdersTable {
	return &OrdersTable{ordersMap: make(map[int]*OrdersList)}
}

// Initialize seeds an empty OrdersList for every robot id in [0, n).
func (t *OrdersTable) Initialize(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < n; i++ {
		t.ordersMap[i] = &OrdersList{}
	}
}

// RobotOrders returns a copy of robotID's order queue, or nil if unknown.
func (t *OrdersTable) RobotOrders(robotID int) *OrdersList {
	t.mu.Lock()
	defer t.mu.Unlock()
	list, ok := t.ordersMap[robotID]
	if !ok {
		return nil
	}
	cp := *list
	cp.Orders = append([]Order(nil), list.Orders...)
	return &cp
}

// AddOrderForRobot queues orderID/details under robotID, creating the
// list if this is the first order ever seen for that robot.
func (t *OrdersTable) AddOrderForRobot(robotID, orderID int, details flavor.Amounts) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list, ok := t.ordersMap[robotID]
	if !ok {
		list = &OrdersList{}
		t.ordersMap[robotID] = list
	}
	list.add(orderID, details)
}

// RemoveOrderForRobot removes orderID from robotID's queue once it
// completes.
func (t *OrdersTable) RemoveOrderForRobot(robotID, orderID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if list, ok := t.ordersMap[robotID]; ok {
		list.remove(orderID)
	}
}

// RobotWithLeastOrders returns the robot id with the shortest order
// queue, used to dispatch a freshly stock-checked order.
func (t *OrdersTable) RobotWithLeastOrders() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	min := -1
	best := 0
	for robotID, list := range t.ordersMap {
		if min == -1 || len(list.Orders) < min {
			min = len(list.Orders)
			best = robotID
		}
	}
	return best, min != -1
}

// RemoveRobot drops robotID and its whole queue from the table, once
// its death has been fully processed.
func (t *OrdersTable) RemoveRobot(robotID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ordersMap, robotID)
}
