package main

import (
	"context"
	"time"

	"github.com/lucas-128/heladeria-concurrente/common/flavor"
	"github.com/lucas-128/heladeria-concurrente/common/wire"
)

// pendingOrder tracks how many grams of each flavor a dispatched order
// still needs before it can be reported complete.
type pendingOrder struct {
	orderID   int
	remaining flavor.Amounts
}

// startOrderHandler is the robot's production loop: it accepts Prepare
// requests onto a FIFO queue and, as each flavor's token cycles through
// on tokenCh, uses it against whichever queued order still needs that
// flavor. Each token is used synchronously inside this loop, so only
// one flavor is prepared at a time per robot; tokens that arrive during
// a preparation wait on tokenCh and are not forwarded until it finishes
// (tokenInUse is therefore never true when a token is examined). A token
// that no queued order needs passes straight back onto the ring.
func (r *Robot) startOrderHandler(ctx context.Context) {
	var queue []*pendingOrder
	tokenInUse := false

	for {
		select {
		case <-ctx.Done():
			return

		case p := <-r.prepareCh:
			queue = append(queue, &pendingOrder{orderID: p.OrderID, remaining: fromWireAmounts(p.OrderDetails).Clone()})

		case t := <-r.tokenCh:
			f := flavor.Flavor(t.Flavor)

			order := firstOrderNeeding(queue, f)
			if order == nil || tokenInUse {
				r.setTokenStatus(f, false)
				r.ringSender.Send(wire.Envelope{Kind: wire.KindToken, Payload: t})
				continue
			}

			tokenInUse = true
			amount := order.remaining[f]
			used := r.useToken(t, amount)
			r.updateTokensTable(f, t.AvailableAmount, amount)
			tokenInUse = false

			used.LastModifiedByID = r.id
			used.LastModificationTimestamp = time.Now()
			r.setTokenStatus(f, false)
			r.ringSender.Send(wire.Envelope{Kind: wire.KindToken, Payload: used})

			delete(order.remaining, f)
			if len(order.remaining) == 0 {
				queue = removeOrder(queue, order.orderID)
				r.completeOrder(order.orderID)
			}
		}
	}
}

func firstOrderNeeding(queue []*pendingOrder, f flavor.Flavor) *pendingOrder {
	for _, o := range queue {
		if amount, ok := o.remaining[f]; ok && amount > 0 {
			return o
		}
	}
	return nil
}

func removeOrder(queue []*pendingOrder, orderID int) []*pendingOrder {
	out := queue[:0]
	for _, o := range queue {
		if o.orderID != orderID {
			out = append(out, o)
		}
	}
	return out
}

// completeOrder reports a finished order: the leader tells the screen
// directly and retires its own bookkeeping; every other robot just
// forwards OrderComplete around the ring for the leader to pick up.
func (r *Robot) completeOrder(orderID int) {
	if r.isLeader.Load() {
		r.screenSender.Send(wire.Envelope{Kind: wire.KindCommit, Payload: wire.Commit{OrderID: orderID}})
		r.removeCompletedOrder(r.id, orderID)
		r.ringSender.Send(wire.Envelope{Kind: wire.KindOrderDelivered, Payload: wire.OrderDelivered{
			RobotIDMaker: r.id,
			OrderID:      orderID,
		}})
		r.metrics.RecordOrder("committed")
		return
	}
	r.ringSender.Send(wire.Envelope{Kind: wire.KindOrderComplete, Payload: wire.OrderComplete{
		RobotIDMaker: r.id,
		OrderID:      orderID,
	}})
}
