package main

import (
	"time"

	"github.com/lucas-128/heladeria-concurrente/common/flavor"
	"github.com/lucas-128/heladeria-concurrente/common/wire"
)

// recoverLostTokens probes the ring for every flavor this (possibly
// freshly elected) leader does not currently hold. A probe that makes
// it all the way around without anyone answering TokenFound lands back
// on the leader via handleOtherMessage's KindPossibleLostToken branch,
// which re-mints the token from the last known stock and timestamp.
func (r *Robot) recoverLostTokens() {
	for _, f := range flavor.All {
		if r.hasToken(f) {
			continue
		}
		r.ringSender.Send(wire.Envelope{Kind: wire.KindPossibleLostToken, Payload: wire.PossibleLostToken{
			Flavor:    int(f),
			Timestamp: r.lastKnownTimestamp(f),
			Stock:     r.flavorStock(f),
		}})
	}
}

func (r *Robot) lastKnownTimestamp(f flavor.Flavor) time.Time {
	r.tokensMu.Lock()
	defer r.tokensMu.Unlock()
	if info, ok := r.tokensTable[f]; ok {
		return info.lastModificationTimestamp
	}
	return time.Now()
}

// recoverStockFromLostOrders applies the preserved first-order-unrefunded
// rule: the order at index 0 in the dead robot's queue is treated as
// already consumed by the token it was actively using when the robot
// died, so its stock stays subtracted; every later order in the queue
// never got that far, so its stock is added back.
func (r *Robot) recoverStockFromLostOrders(lost *OrdersList) {
	if lost == nil {
		return
	}
	now := time.Now()
	for i, order := range lost.Orders {
		if i == 0 {
			continue
		}
		r.stock.AddWithTimestamp(order.OrderDetails, now)
		r.ringSender.Send(wire.Envelope{Kind: wire.KindUpdateStock, Payload: wire.UpdateStock{
			ModifiedValues: toWireAmounts(order.OrderDetails),
			Timestamp:      now,
			Subtract:       false,
		}})
		for f, grams := range order.OrderDetails {
			r.metrics.StockCompensatedGrams.WithLabelValues(f.String()).Add(float64(grams))
		}
	}
}

// reassignLostOrders re-dispatches every lost order, including the
// first (recoverStockFromLostOrders treats only the stock-refund side
// of that first order specially, not its re-dispatch), to whichever
// robot currently has the lightest queue, aborting via the screen
// bridge if stock no longer covers it.
func (r *Robot) reassignLostOrders(lost *OrdersList) {
	if lost == nil {
		return
	}
	for _, order := range lost.Orders {
		if !r.stock.HasEnough(order.OrderDetails) {
			r.screenSender.Send(wire.Envelope{Kind: wire.KindAbort, Payload: wire.Abort{OrderID: order.OrderID}})
			r.metrics.RecordOrder("aborted")
			continue
		}

		targetID, ok := r.findTargetRobot()
		if !ok {
			targetID = r.id
		}

		now := r.stock.Subtract(order.OrderDetails)
		r.ringSender.Send(wire.Envelope{Kind: wire.KindUpdateStock, Payload: wire.UpdateStock{
			ModifiedValues: toWireAmounts(order.OrderDetails),
			Timestamp:      now,
			Subtract:       true,
		}})

		r.addNewOrder(targetID, order.OrderID, order.OrderDetails)
		r.ringSender.Send(wire.Envelope{Kind: wire.KindNewOrder, Payload: wire.NewOrder{
			TargetID:     targetID,
			OrderID:      order.OrderID,
			OrderDetails: toWireAmounts(order.OrderDetails),
		}})

		if targetID == r.id {
			r.prepareCh <- wire.Prepare{SenderID: r.id, TargetID: r.id, OrderID: order.OrderID, OrderDetails: toWireAmounts(order.OrderDetails)}
		} else {
			r.ringSender.Send(wire.Envelope{Kind: wire.KindPrepare, Payload: wire.Prepare{
				SenderID:     r.id,
				TargetID:     targetID,
				OrderID:      order.OrderID,
				OrderDetails: toWireAmounts(order.OrderDetails),
			}})
		}
	}
}
