package main

import (
	"context"
	"net"

	"github.com/fatih/color"

	"github.com/lucas-128/heladeria-concurrente/common/flavor"
	"github.com/lucas-128/heladeria-concurrente/common/ring"
	"github.com/lucas-128/heladeria-concurrente/common/wire"
)

// handleFrame routes one decoded ring frame. The listener is dual
// purpose exactly like the robot ring's: it accepts both the ring
// predecessor's persistent connection (ScreenIntroduction) and, when
// this screen is the leader, the robot leader's bridge connection
// (RobotIntroduction/NewLeaderIntroduction, followed by a stream of
// Commit/Abort). Commit and Abort need to know which of those two
// connections they arrived on, so they're routed here rather than
// folded into handleOtherMessage.
func (s *Screen) handleFrame(ctx context.Context, in ring.Inbound) {
	switch in.Envelope.Kind {
	case wire.KindScreenIntroduction:
		// First frame on a fresh predecessor connection.
	case wire.KindRobotIntroduction:
		s.setRobotBridgeConn(in.Conn)
	case wire.KindNewLeaderIntroduction:
		intro := in.Envelope.Payload.(wire.NewLeaderIntroduction)
		s.setRobotBridgeConn(in.Conn)
		s.setNewRobotLeader(intro.SenderID)
		s.ringSender.Send(wire.Envelope{Kind: wire.KindUpdateRobotLeader, Payload: wire.UpdateRobotLeader{RobotLeaderID: intro.SenderID}})
		go s.connectToRobotLeader(ctx, true)
	case wire.KindOrderScreen:
		o := in.Envelope.Payload.(wire.OrderScreen)
		s.applyOrder(o.SenderID, o.OrderID, fromWireAmounts(o.OrderDetails))
		if o.SenderID != s.id {
			s.forward(in.Envelope)
		}
	case wire.KindCommit:
		c := in.Envelope.Payload.(wire.Commit)
		s.commitOrder(c.OrderID, s.isRobotBridgeConn(in.Conn))
	case wire.KindAbort:
		a := in.Envelope.Payload.(wire.Abort)
		s.abortOrder(a.OrderID, s.isRobotBridgeConn(in.Conn))
	default:
		s.handleOtherMessage(ctx, in.Envelope)
	}
}

func (s *Screen) forward(env wire.Envelope) {
	s.ringSender.Send(env)
	s.metrics.RecordMessage("forward", "send")
}

// handleOtherMessage is the ring-peer broadcast switch: DeadScreen,
// NewLeader, Election, UpdateRobotLeader, and AllConnected, none of
// which need to know which physical connection they arrived on.
func (s *Screen) handleOtherMessage(ctx context.Context, env wire.Envelope) {
	switch env.Kind {
	case wire.KindDeadScreen:
		d := env.Payload.(wire.DeadScreen)
		if changed := s.orderTable.TransferOrders(d.DeadScreenID, d.SenderID); len(changed) > 0 {
			s.log.Info("transferred orders", "from_screen_id", d.DeadScreenID, "to_screen_id", d.SenderID, "orders", changed)
		}
		if s.isConnectedToMe(d.DeadScreenID) {
			s.updateNetwork(d.DeadScreenID)
			go s.connectToNextScreen(ctx)
		} else {
			s.updateNetwork(d.DeadScreenID)
			s.forward(env)
		}

	case wire.KindNewLeader:
		nl := env.Payload.(wire.NewLeader)
		if nl.NewLeaderID != s.id {
			s.setNewLeader(nl.NewLeaderID)
			s.forward(env)
		}

	case wire.KindElection:
		s.handleElection(ctx, env.Payload.(wire.Election))

	case wire.KindUpdateRobotLeader:
		u := env.Payload.(wire.UpdateRobotLeader)
		if !s.isLeader.Load() {
			s.setNewRobotLeader(u.RobotLeaderID)
			s.forward(env)
		}
		// The leader is authoritative about who it introduced itself to
		// and ignores this announcement, matching the original's
		// i_am_leader early-return.

	case wire.KindAllConnected:
		if s.id == 0 {
			go s.connectToNextScreen(ctx)
			go s.startOrderPipeline(ctx)
			go s.connectToRobotLeader(ctx, false)
		} else {
			s.forward(env)
			go s.startOrderPipeline(ctx)
		}
	}
}

// handleElection implements Chang-Roberts with this system's explicit
// smallest-id-wins tie-break, identical to the robot ring's.
func (s *Screen) handleElection(ctx context.Context, e wire.Election) {
	switch {
	case e.CurrentCandidateID == s.id:
		s.setNewLeader(s.id)
		s.metrics.ElectionsTotal.Inc()
		s.ringSender.Send(wire.Envelope{Kind: wire.KindNewLeader, Payload: wire.NewLeader{
			SenderID:     s.id,
			NewLeaderID:  s.id,
			DeadLeaderID: e.DeadLeaderID,
		}})
		go s.connectToRobotLeader(ctx, false)

	case e.CurrentCandidateID > s.id:
		s.ringSender.Send(wire.Envelope{Kind: wire.KindElection, Payload: wire.Election{
			SenderID:           s.id,
			CurrentCandidateID: s.id,
			DeadLeaderID:       e.DeadLeaderID,
		}})

	default:
		s.ringSender.Send(wire.Envelope{Kind: wire.KindElection, Payload: e})
	}
}

// applyOrder records a freshly circulated order in the local order
// table replica; only the leader additionally bridges it to the robot
// ring as a ScreenOrder, since only the leader holds the robot
// connection.
func (s *Screen) applyOrder(senderID, orderID int, details flavor.Amounts) {
	s.orderTable.AddOrder(senderID, orderID, details)
	if s.isLeader.Load() {
		s.robotSender.Send(wire.Envelope{Kind: wire.KindScreenOrder, Payload: wire.ScreenOrder{
			ScreenID:     senderID,
			OrderID:      orderID,
			OrderDetails: toWireAmounts(details),
		}})
	}
}

// commitOrder and abortOrder remove orderID from the local order table
// and, if this screen originated it, wake the order pipeline so it can
// log the outcome and ask for more orders. fromBridge distinguishes a
// frame arriving directly off the robot connection (always applied,
// leader only) from one forwarded around the screen ring (applied only
// by followers, since the leader already applied it from the bridge).
func (s *Screen) commitOrder(orderID int, fromBridge bool) {
	screenID, details, ok := s.orderTable.RemoveOrder(orderID)
	if !ok {
		return
	}
	if screenID == s.id {
		color.Green("screen %d: order %d committed (%v)", s.id, orderID, details)
		s.log.Info("order committed", "order_id", orderID, "details", details)
		s.resolved <- wire.Envelope{Kind: wire.KindCommit, Payload: wire.Commit{OrderID: orderID}}
	}
	if fromBridge {
		s.metrics.RecordOrder("committed")
		s.ringSender.Send(wire.Envelope{Kind: wire.KindCommit, Payload: wire.Commit{OrderID: orderID}})
	} else if !s.isLeader.Load() {
		s.ringSender.Send(wire.Envelope{Kind: wire.KindCommit, Payload: wire.Commit{OrderID: orderID}})
	}
}

func (s *Screen) abortOrder(orderID int, fromBridge bool) {
	screenID, details, ok := s.orderTable.RemoveOrder(orderID)
	if !ok {
		return
	}
	if screenID == s.id {
		color.Red("screen %d: order %d aborted (%v)", s.id, orderID, details)
		s.log.Info("order aborted", "order_id", orderID, "details", details)
		s.resolved <- wire.Envelope{Kind: wire.KindAbort, Payload: wire.Abort{OrderID: orderID}}
	}
	if fromBridge {
		s.metrics.RecordOrder("aborted")
		s.ringSender.Send(wire.Envelope{Kind: wire.KindAbort, Payload: wire.Abort{OrderID: orderID}})
	} else if !s.isLeader.Load() {
		s.ringSender.Send(wire.Envelope{Kind: wire.KindAbort, Payload: wire.Abort{OrderID: orderID}})
	}
}

func (s *Screen) setRobotBridgeConn(conn net.Conn) {
	s.robotBridgeMu.Lock()
	s.robotBridgeConn = conn
	s.robotBridgeMu.Unlock()
}

func (s *Screen) isRobotBridgeConn(conn net.Conn) bool {
	s.robotBridgeMu.Lock()
	defer s.robotBridgeMu.Unlock()
	return conn != nil && s.robotBridgeConn == conn
}

func (s *Screen) clearRobotBridgeConn(conn net.Conn) {
	s.robotBridgeMu.Lock()
	defer s.robotBridgeMu.Unlock()
	if s.robotBridgeConn == conn {
		s.robotBridgeConn = nil
	}
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
