// Package flavor defines the closed set of ice-cream flavors shared by
// every node (gateway, screen, robot) and the per-flavor stock amounts
// tracked by the robot ring.
package flavor

import "fmt"

// Flavor is one of the four ice-cream flavors the system knows about.
type Flavor int

const (
	Vanilla Flavor = iota
	Chocolate
	Strawberry
	Mint
)

// All lists every flavor in a stable order, used to mint one token per
// flavor at robot-ring startup and to iterate default stock.
var All = [4]Flavor{Vanilla, Chocolate, Strawberry, Mint}

func (f Flavor) String() string {
	switch f {
	case Vanilla:
		return "Vanilla"
	case Chocolate:
		return "Chocolate"
	case Strawberry:
		return "Strawberry"
	case Mint:
		return "Mint"
	default:
		return fmt.Sprintf("Flavor(%d)", int(f))
	}
}

// Parse converts a flavor name to a Flavor, failing on anything outside
// the four known names so the screen can reject bad input before it ever
// reaches the gateway.
func Parse(s string) (Flavor, error) {
	switch s {
	case "Vanilla":
		return Vanilla, nil
	case "Chocolate":
		return Chocolate, nil
	case "Strawberry":
		return Strawberry, nil
	case "Mint":
		return Mint, nil
	default:
		return 0, fmt.Errorf("flavor: unknown flavor %q", s)
	}
}

// Amounts maps a flavor to a quantity in grams. Used both for order line
// items and for stock-table deltas.
type Amounts map[Flavor]int

// InitialGramsAmount is how many grams of each flavor a robot ring starts
// with.
const InitialGramsAmount = 10000

// DefaultStock returns a fresh Amounts map with InitialGramsAmount of
// every flavor.
func DefaultStock() Amounts {
	stock := make(Amounts, len(All))
	for _, f := range All {
		stock[f] = InitialGramsAmount
	}
	return stock
}

// Clone returns an independent copy so callers can mutate without
// aliasing the receiver's map.
func (a Amounts) Clone() Amounts {
	out := make(Amounts, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
