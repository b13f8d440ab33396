package main

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/lucas-128/heladeria-concurrente/common/ring"
	"github.com/lucas-128/heladeria-concurrente/common/wire"
)

func screenAddr(id int) string {
	return fmt.Sprintf("127.0.0.1:%d", 3000+id)
}

func robotAddr(id int) string {
	return fmt.Sprintf("127.0.0.1:%d", 10000+id)
}

// Start binds the ring listener, then (unless this screen is the
// bootstrap leader) introduces itself to its ring successor and, if it
// is the last screen in the initial topology, broadcasts AllConnected
// and starts its own order pipeline directly rather than waiting for
// that broadcast to circle all the way back around, mirroring
// Screen::run.
func (s *Screen) Start(ctx context.Context) error {
	listener, err := ring.NewListener(screenAddr(s.id))
	if err != nil {
		return err
	}
	s.ringListener = listener
	s.ringSender = ring.NewSender(func(addr string, err error) {
		s.log.Warn("next screen offline", "addr", addr, "error", err)
	})
	s.robotSender = ring.NewSender(func(addr string, err error) {
		s.log.Warn("robot leader offline", "addr", addr, "error", err)
	})

	if s.id != 0 {
		s.ringSender.Introduce(ctx, screenAddr(s.mustNext()), wire.Envelope{
			Kind:    wire.KindScreenIntroduction,
			Payload: wire.ScreenIntroduction{SenderID: s.id},
		})
		if s.id == int(s.networkSize)-1 {
			s.ringSender.Send(wire.Envelope{Kind: wire.KindAllConnected, Payload: wire.AllConnected{SenderID: s.id}})
			go s.startOrderPipeline(ctx)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { s.dispatchLoop(gctx); return nil })
	g.Go(func() error { return listener.Serve(gctx) })

	return g.Wait()
}

// mustNext is Introduce's connection target at cold start, when the
// ring is still in its bootstrap layout and findNextID cannot fail.
func (s *Screen) mustNext() int {
	next, _ := s.findNextID()
	return next
}

// connectToNextScreen (re)opens this screen's outbound ring connection
// to its current successor, used after the initial Start wiring when
// the topology changes (a death, or becoming the new leader).
func (s *Screen) connectToNextScreen(ctx context.Context) {
	nextID, ok := s.findNextID()
	if !ok {
		s.log.Error("next screen not found")
		return
	}
	s.ringSender.Introduce(ctx, screenAddr(nextID), wire.Envelope{
		Kind:    wire.KindScreenIntroduction,
		Payload: wire.ScreenIntroduction{SenderID: s.id},
	})
}

// connectToRobotLeader opens the leader-only bridge to the current
// robot leader. isReconnectHandshake mirrors connect_robot's
// is_connected flag: true only when this call is itself a response to
// an incoming NewLeaderIntroduction from the robot side (a symmetric
// handshake), in which case we introduce ourselves with
// NewLeaderIntroduction instead of ScreenIntroduction. Becoming screen
// leader via our own election always reconnects with a plain
// ScreenIntroduction, matching the original's connect_robot(false)
// call from the Election handler.
func (s *Screen) connectToRobotLeader(ctx context.Context, isReconnectHandshake bool) {
	robotID := int(s.robotLeaderID.Load())
	intro := wire.Envelope{Kind: wire.KindScreenIntroduction, Payload: wire.ScreenIntroduction{SenderID: s.id}}
	if isReconnectHandshake {
		intro = wire.Envelope{Kind: wire.KindNewLeaderIntroduction, Payload: wire.NewLeaderIntroduction{SenderID: s.id}}
	}
	s.robotSender.Introduce(ctx, robotAddr(robotID), intro)
}

// dispatchLoop drains frames the ring listener accepted and routes
// them, and watches Closed for the predecessor connection going away.
func (s *Screen) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-s.ringListener.Frames:
			if !ok {
				return
			}
			s.metrics.RecordMessage(fmt.Sprintf("%d", in.Envelope.Kind), "recv")
			s.handleFrame(ctx, in)
		case conn, ok := <-s.ringListener.Closed:
			if !ok {
				return
			}
			s.onConnectionClosed(ctx, conn)
		}
	}
}

// onConnectionClosed reacts to an inbound connection ending. If it was
// the robot bridge, that's just the robot reconnecting later (nothing
// to repair on our side); otherwise it's our ring predecessor dying,
// the Go analog of handle_screen_connection's Ok(0)/Err branches:
// transfer its in-flight orders to us, broadcast DeadScreen, repair the
// topology, and start an election if it was the leader.
func (s *Screen) onConnectionClosed(ctx context.Context, conn net.Conn) {
	if s.isRobotBridgeConn(conn) {
		s.clearRobotBridgeConn(conn)
		return
	}

	deadID, ok := s.findPrevID()
	if !ok {
		return
	}
	wasLeader := s.isLeaderID(deadID)

	changed := s.orderTable.TransferOrders(deadID, s.id)
	if len(changed) > 0 {
		s.log.Info("absorbed orders from dead screen", "dead_screen_id", deadID, "orders", changed)
	}

	s.ringSender.Send(wire.Envelope{Kind: wire.KindDeadScreen, Payload: wire.DeadScreen{SenderID: s.id, DeadScreenID: deadID}})
	s.updateNetwork(deadID)

	if wasLeader {
		s.ringSender.Send(wire.Envelope{Kind: wire.KindElection, Payload: wire.Election{
			SenderID:           s.id,
			CurrentCandidateID: s.id,
			DeadLeaderID:       deadID,
		}})
	}
}
