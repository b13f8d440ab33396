package main

import (
	"context"

	"github.com/lucas-128/heladeria-concurrente/common/wire"
)

// onScreenConnected handles a screen (cold-start or freshly elected
// screen-ring leader) introducing itself to this robot leader: record
// it as the current screen leader, tell the rest of the robot ring who
// that is, and open the leader's own outbound bridge back to it so
// Commit/Abort/OrderComplete notifications have somewhere to go. The
// bridge is always opened with a plain RobotIntroduction: a screen's
// NewLeaderIntroduction is itself the answer to this robot's own, so
// isNewLeader does not change the reply.
func (r *Robot) onScreenConnected(ctx context.Context, screenID int, isNewLeader bool) {
	r.setScreenLeader(screenID)
	r.ringSender.Send(wire.Envelope{Kind: wire.KindUpdateScreenLeader, Payload: wire.UpdateScreenLeader{
		ScreenLeaderID: screenID,
	}})
	r.connectToScreen(ctx, false)
}

// handleScreenOrder is the robot leader's half of a new order's
// two-phase lifecycle: check stock, subtract and broadcast the
// deduction, pick the least-loaded robot, broadcast the dispatch
// decision and tell the chosen robot to prepare it; or, if stock no
// longer covers it, abort back to the screen immediately without ever
// touching a robot.
func (r *Robot) handleScreenOrder(so wire.ScreenOrder) {
	details := fromWireAmounts(so.OrderDetails)

	if !r.stock.HasEnough(details) {
		r.screenSender.Send(wire.Envelope{Kind: wire.KindAbort, Payload: wire.Abort{OrderID: so.OrderID}})
		r.metrics.RecordOrder("aborted")
		return
	}

	now := r.stock.Subtract(details)
	r.ringSender.Send(wire.Envelope{Kind: wire.KindUpdateStock, Payload: wire.UpdateStock{
		ModifiedValues: so.OrderDetails,
		Timestamp:      now,
		Subtract:       true,
	}})

	targetID, ok := r.findTargetRobot()
	if !ok {
		targetID = r.id
	}

	r.addNewOrder(targetID, so.OrderID, details)
	r.ringSender.Send(wire.Envelope{Kind: wire.KindNewOrder, Payload: wire.NewOrder{
		TargetID:     targetID,
		OrderID:      so.OrderID,
		OrderDetails: so.OrderDetails,
	}})

	prepare := wire.Prepare{SenderID: r.id, TargetID: targetID, OrderID: so.OrderID, OrderDetails: so.OrderDetails}
	if targetID == r.id {
		r.prepareCh <- prepare
	} else {
		r.ringSender.Send(wire.Envelope{Kind: wire.KindPrepare, Payload: prepare})
	}
}
