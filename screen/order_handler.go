package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"

	"github.com/lucas-128/heladeria-concurrente/common/flavor"
	"github.com/lucas-128/heladeria-concurrente/common/wire"
)

// firstBatch is how many orders a screen authorizes as soon as its
// order file is loaded; multiplicationBatch is how many more it
// authorizes every time one order resolves (Commit or Abort), the same
// ramp-up policy the original hard-codes as its batch constants.
const (
	firstBatch          = 1
	multiplicationBatch = 2
)

// jsonFlavorLine is one flavor/gram line item as it appears in an order
// file.
type jsonFlavorLine struct {
	Name  string `json:"name"`
	Grams int    `json:"grams"`
}

// jsonOrder is one order as it appears in an order file, kept in its
// raw per-line-item form (rather than flavor.Amounts) because an
// order's line items are sent to the gateway in that same textual form
// on PREPARE.
type jsonOrder struct {
	Flavors []jsonFlavorLine `json:"flavors"`
}

type jsonOrders struct {
	Orders []jsonOrder `json:"orders"`
}

// loadOrders reads and parses a screen's order file.
func loadOrders(path string) ([]jsonOrder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("screen: read orders file %s: %w", path, err)
	}
	var parsed jsonOrders
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("screen: parse orders file %s: %w", path, err)
	}
	return parsed.Orders, nil
}

// validateFlavors converts an order's raw line items to flavor.Amounts,
// discarding (and reporting) the whole order if any flavor name isn't
// one of the four known flavors, matching validate_flavours'
// all-or-nothing rule. The returned error aggregates every unknown name
// found, not just the first.
func validateFlavors(o jsonOrder) (flavor.Amounts, error) {
	var badFlavors *multierror.Error
	amounts := make(flavor.Amounts, len(o.Flavors))
	for _, line := range o.Flavors {
		f, err := flavor.Parse(line.Name)
		if err != nil {
			badFlavors = multierror.Append(badFlavors, fmt.Errorf("%q", line.Name))
			continue
		}
		amounts[f] += line.Grams
	}
	if err := badFlavors.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("discarded, unknown flavors: %w", err)
	}
	return amounts, nil
}

// orderLineString renders an order the way the gateway's PREPARE line
// protocol expects it, one "name,gramsg;" group per flavor line.
func orderLineString(o jsonOrder) string {
	var b strings.Builder
	for _, line := range o.Flavors {
		fmt.Fprintf(&b, "%s,%dg;", line.Name, line.Grams)
	}
	return b.String()
}

// startOrderPipeline reads this screen's own order file, then
// authorizes orders against the gateway firstBatch at a time initially
// and multiplicationBatch more every time one resolves. Every screen
// runs this independently once the ring is fully connected, not just
// the leader.
func (s *Screen) startOrderPipeline(ctx context.Context) {
	orders, err := loadOrders(s.ordersPath)
	if err != nil {
		s.log.Error("failed to load orders", "error", err)
		return
	}

	gw, err := dialGateway(s.gatewayAddr)
	if err != nil {
		s.log.Error("failed to connect to gateway", "addr", s.gatewayAddr, "error", err)
		return
	}
	defer gw.Close()

	pending := orders
	s.credits <- firstBatch

	for {
		select {
		case <-ctx.Done():
			return

		case n := <-s.credits:
			for i := 0; i < n; i++ {
				order, rest, ok := popOrder(pending)
				pending = rest
				if !ok {
					break
				}
				s.processOrder(ctx, gw, order)
			}

		case env := <-s.resolved:
			s.registerOutcome(gw, env)
			s.credits <- multiplicationBatch
		}
	}
}

// registerOutcome tells the gateway whether the order this screen
// originated actually got made, finalizing the transaction log entry
// PREPARE opened.
func (s *Screen) registerOutcome(gw *gatewayClient, env wire.Envelope) {
	switch env.Kind {
	case wire.KindCommit:
		orderID := env.Payload.(wire.Commit).OrderID
		if err := gw.commit(uint32(orderID)); err != nil {
			s.log.Error("failed to register commit with gateway", "order_id", orderID, "error", err)
		}
	case wire.KindAbort:
		orderID := env.Payload.(wire.Abort).OrderID
		if err := gw.abort(uint32(orderID)); err != nil {
			s.log.Error("failed to register abort with gateway", "order_id", orderID, "error", err)
		}
	}
}

// popOrder pops one valid order off the stack (LIFO, matching the
// original's Vec::pop), skipping and logging any order whose flavors
// don't validate until it finds one or runs out.
func popOrder(pending []jsonOrder) (jsonOrder, []jsonOrder, bool) {
	for len(pending) > 0 {
		order := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if _, err := validateFlavors(order); err != nil {
			color.Red("order discarded: %v", err)
			continue
		}
		return order, pending, true
	}
	return jsonOrder{}, pending, false
}

// processOrder authorizes one order with the gateway and, if accepted,
// sends it onto the screen ring as an OrderScreen for every screen
// (including this one, once it circles back) to apply to its order
// table. A rejection immediately asks for one replacement order rather
// than waiting for the usual multiplicationBatch resolution signal.
func (s *Screen) processOrder(ctx context.Context, gw *gatewayClient, order jsonOrder) {
	amounts, err := validateFlavors(order)
	if err != nil {
		s.log.Warn("discarded order with invalid flavors", "error", err)
		return
	}

	orderID, err := gw.authorize(orderLineString(order))
	if err != nil {
		s.log.Error("failed to authorize order", "error", err)
		return
	}
	if orderID == 0 {
		color.Red("screen %d: order rejected by gateway (%v)", s.id, amounts)
		s.log.Info("order rejected by gateway", "details", amounts)
		s.credits <- 1
		return
	}

	color.Green("screen %d: order %d authorized (%v)", s.id, orderID, amounts)
	s.log.Info("order authorized", "order_id", orderID, "details", amounts)
	s.ringSender.Send(wire.Envelope{Kind: wire.KindOrderScreen, Payload: wire.OrderScreen{
		SenderID:     s.id,
		OrderID:      int(orderID),
		OrderDetails: toWireAmounts(amounts),
	}})
}
