package main

import (
	"context"

	"github.com/lucas-128/heladeria-concurrente/common/flavor"
	"github.com/lucas-128/heladeria-concurrente/common/wire"
)

// handleFrame routes one decoded ring frame, playing the role the
// original splits between handle_robot_connection's direct Prepare
// fast-path and handle_other_messages' larger switch.
func (r *Robot) handleFrame(ctx context.Context, env wire.Envelope) {
	switch env.Kind {
	case wire.KindRobotIntroduction:
		// First frame on a fresh predecessor connection; nothing further
		// to do beyond having accepted it.
	case wire.KindScreenIntroduction:
		intro := env.Payload.(wire.ScreenIntroduction)
		if r.isLeader.Load() {
			r.onScreenConnected(ctx, intro.SenderID, false)
		}
	case wire.KindNewLeaderIntroduction:
		intro := env.Payload.(wire.NewLeaderIntroduction)
		if r.isLeader.Load() {
			r.onScreenConnected(ctx, intro.SenderID, true)
		}
	case wire.KindPrepare:
		p := env.Payload.(wire.Prepare)
		if p.TargetID == r.id {
			r.prepareCh <- p
		} else {
			r.forward(env)
		}
	case wire.KindToken:
		t := env.Payload.(wire.Token)
		r.setTokenStatus(flavor.Flavor(t.Flavor), true)
		r.tokenCh <- t
	case wire.KindScreenOrder:
		so := env.Payload.(wire.ScreenOrder)
		if r.isLeader.Load() {
			r.handleScreenOrder(so)
		}
	default:
		r.handleOtherMessage(ctx, env)
	}
}

func (r *Robot) forward(env wire.Envelope) {
	r.ringSender.Send(env)
	r.metrics.RecordMessage("forward", "send")
}

// handleOtherMessage is the Go analog of handle_other_messages: the
// large switch over every ring-protocol message besides Prepare/Token,
// which are handled inline in handleFrame because they need the
// order-handler channels directly.
func (r *Robot) handleOtherMessage(ctx context.Context, env wire.Envelope) {
	switch env.Kind {
	case wire.KindDeadRobot:
		d := env.Payload.(wire.DeadRobot)
		r.onDeadRobot(ctx, d.DeadRobotID, env)

	case wire.KindPossibleLostToken:
		lost := env.Payload.(wire.PossibleLostToken)
		f := flavor.Flavor(lost.Flavor)
		if r.isLeader.Load() {
			r.ringSender.Send(wire.Envelope{Kind: wire.KindToken, Payload: wire.Token{
				SenderID:                  r.id,
				Flavor:                    lost.Flavor,
				LastModifiedByID:          r.id,
				LastModificationTimestamp: lost.Timestamp,
				AvailableAmount:           lost.Stock,
			}})
			r.metrics.TokensRemintedTotal.Inc()
		} else if r.hasToken(f) {
			r.ringSender.Send(wire.Envelope{Kind: wire.KindTokenFound, Payload: wire.TokenFound{Flavor: lost.Flavor}})
		} else if r.isTimestampGreater(f, lost.Timestamp) {
			r.ringSender.Send(wire.Envelope{Kind: wire.KindTokenFound, Payload: wire.TokenFound{Flavor: lost.Flavor}})
		} else {
			r.forward(env)
		}

	case wire.KindTokenFound:
		if !r.isLeader.Load() {
			r.forward(env)
		}

	case wire.KindNewOrder:
		o := env.Payload.(wire.NewOrder)
		if !r.isLeader.Load() {
			r.addNewOrder(o.TargetID, o.OrderID, fromWireAmounts(o.OrderDetails))
			r.forward(env)
		}

	case wire.KindRemoveRobot:
		rr := env.Payload.(wire.RemoveRobot)
		if !r.isLeader.Load() {
			r.removeDeadFromOrdersTable(rr.RobotID)
			r.forward(env)
		}

	case wire.KindOrderComplete:
		oc := env.Payload.(wire.OrderComplete)
		if r.isLeader.Load() {
			r.screenSender.Send(wire.Envelope{Kind: wire.KindCommit, Payload: wire.Commit{OrderID: oc.OrderID}})
			r.removeCompletedOrder(oc.RobotIDMaker, oc.OrderID)
			r.ringSender.Send(wire.Envelope{Kind: wire.KindOrderDelivered, Payload: wire.OrderDelivered{
				RobotIDMaker: oc.RobotIDMaker,
				OrderID:      oc.OrderID,
			}})
			r.metrics.RecordOrder("committed")
		} else {
			r.forward(env)
		}

	case wire.KindOrderDelivered:
		od := env.Payload.(wire.OrderDelivered)
		if !r.isLeader.Load() {
			r.removeCompletedOrder(od.RobotIDMaker, od.OrderID)
			r.forward(env)
		}

	case wire.KindUpdateStock:
		u := env.Payload.(wire.UpdateStock)
		if !r.isLeader.Load() {
			amounts := fromWireAmounts(u.ModifiedValues)
			if u.Subtract {
				r.stock.SubtractWithTimestamp(amounts, u.Timestamp)
			} else {
				r.stock.AddWithTimestamp(amounts, u.Timestamp)
			}
			r.forward(env)
		}

	case wire.KindNewLeader:
		nl := env.Payload.(wire.NewLeader)
		if nl.NewLeaderID != r.id {
			r.setNewLeader(nl.NewLeaderID)
			r.forward(env)
		}

	case wire.KindElection:
		r.handleElection(ctx, env.Payload.(wire.Election))

	case wire.KindUpdateScreenLeader:
		u := env.Payload.(wire.UpdateScreenLeader)
		if !r.isLeader.Load() {
			r.setScreenLeader(u.ScreenLeaderID)
			r.forward(env)
		}

	case wire.KindAllConnected:
		if r.id == 0 {
			go r.connectToNextRobot(ctx)
			r.initializeTokens()
		} else {
			r.forward(env)
		}
	}
}

// handleElection implements Chang-Roberts with this system's explicit
// smallest-id-wins tie-break: a candidate equal to our own id means we
// are the new leader; a candidate greater than our id gets overwritten
// with our (smaller) id and forwarded; otherwise the message passes
// through unchanged.
func (r *Robot) handleElection(ctx context.Context, e wire.Election) {
	switch {
	case e.CurrentCandidateID == r.id:
		r.setNewLeader(r.id)
		r.metrics.ElectionsTotal.Inc()
		r.ringSender.Send(wire.Envelope{Kind: wire.KindNewLeader, Payload: wire.NewLeader{
			SenderID:     r.id,
			NewLeaderID:  r.id,
			DeadLeaderID: e.DeadLeaderID,
		}})
		r.recoverFromLeaderDeath(ctx, e.DeadLeaderID)
		go r.connectToScreen(ctx, true)

	case e.CurrentCandidateID > r.id:
		r.ringSender.Send(wire.Envelope{Kind: wire.KindElection, Payload: wire.Election{
			SenderID:           r.id,
			CurrentCandidateID: r.id,
			DeadLeaderID:       e.DeadLeaderID,
		}})

	default:
		r.ringSender.Send(wire.Envelope{Kind: wire.KindElection, Payload: e})
	}
}

// onDeadRobot reacts to a DeadRobot announcement forwarded around the
// ring: repair the topology, reconnect if the dead robot was our
// successor, and if we are the leader, run the full recovery sequence.
func (r *Robot) onDeadRobot(ctx context.Context, deadRobotID int, env wire.Envelope) {
	if r.isConnectedToMe(deadRobotID) {
		r.ringSender.Send(wire.Envelope{Kind: wire.KindKill, Payload: wire.Kill{}})
		r.updateNetwork(deadRobotID)
		go r.connectToNextRobot(ctx)
	} else {
		r.updateNetwork(deadRobotID)
		r.forward(env)
	}

	if r.isLeader.Load() {
		r.recoverFromLeaderDeath(ctx, deadRobotID)
	}
}

// recoverFromLeaderDeath runs the leader-only recovery sequence shared
// by DeadRobot handling and by becoming leader via Election: re-mint
// any token that appears lost, find and re-dispatch whatever the dead
// robot's queue held, and compensate stock per the preserved
// first-order-unrefunded rule.
func (r *Robot) recoverFromLeaderDeath(ctx context.Context, deadID int) {
	r.recoverLostTokens()

	lostOrders := r.getRobotOrders(deadID)
	r.removeDeadFromOrdersTable(deadID)
	r.ringSender.Send(wire.Envelope{Kind: wire.KindRemoveRobot, Payload: wire.RemoveRobot{RobotID: deadID}})

	r.recoverStockFromLostOrders(lostOrders)
	r.reassignLostOrders(lostOrders)
}

func fromWireAmounts(m map[int]int) flavor.Amounts {
	out := make(flavor.Amounts, len(m))
	for k, v := range m {
		out[flavor.Flavor(k)] = v
	}
	return out
}

func toWireAmounts(a flavor.Amounts) map[int]int {
	out := make(map[int]int, len(a))
	for k, v := range a {
		out[int(k)] = v
	}
	return out
}

