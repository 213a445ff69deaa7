package game

import (
	"fmt"
	"sort"
	"strings"
)

// Order is one parsed order string, broken into the pieces the interface
// needs to anchor it on the board.
type Order struct {
	// Raw is the normalized order text.
	Raw string
	// Type is the single order letter: H, -, S, C, R, D or B for builds.
	Type byte
	// UnitType is A or F for unit orders, the build type for builds.
	UnitType string
	// Location anchors the order on the board.
	Location string
	// Target is the destination, or the supported/convoyed unit location.
	Target string
	// Via marks a convoyed move.
	Via bool
}

const orderTypes = "H-SCRDB"

// ParseOrder breaks a single order string into its structural parts.
// WAIVE produces a zero Order with Raw set; malformed text is an error.
func ParseOrder(text string) (Order, error) {
	raw := strings.Join(strings.Fields(text), " ")
	if raw == "" {
		return Order{}, fmt.Errorf("empty order")
	}
	if strings.EqualFold(raw, "WAIVE") {
		return Order{Raw: raw}, nil
	}
	tokens := strings.Split(raw, " ")

	//1.- Builds and disbands during adjustment read "A PAR B" or "F LON D",
	// with the bare "B LON" form also accepted.
	if len(tokens) == 2 && isOrderLetter(tokens[0]) {
		return Order{Raw: raw, Type: tokens[0][0], UnitType: tokens[0], Location: tokens[1]}, nil
	}
	if len(tokens) < 3 {
		return Order{}, fmt.Errorf("order %q is too short", raw)
	}

	order := Order{Raw: raw, UnitType: tokens[0], Location: tokens[1]}
	verb := tokens[2]
	if len(verb) != 1 || !strings.Contains(orderTypes, verb) {
		return Order{}, fmt.Errorf("order %q has unknown verb %q", raw, verb)
	}
	order.Type = verb[0]
	rest := tokens[3:]

	switch order.Type {
	case 'H', 'D', 'B':
		if len(rest) != 0 {
			return Order{}, fmt.Errorf("order %q has trailing tokens", raw)
		}
	case '-':
		if len(rest) == 0 {
			return Order{}, fmt.Errorf("move order %q is missing a destination", raw)
		}
		if strings.EqualFold(rest[len(rest)-1], "VIA") {
			order.Via = true
			rest = rest[:len(rest)-1]
		}
		if len(rest) != 1 {
			return Order{}, fmt.Errorf("move order %q has a malformed destination", raw)
		}
		order.Target = rest[0]
	case 'R':
		if len(rest) != 1 {
			return Order{}, fmt.Errorf("retreat order %q needs exactly one destination", raw)
		}
		order.Target = rest[0]
	case 'S', 'C':
		//2.- Supports and convoys name a second unit, optionally moving:
		// "A PAR S A MAR" or "A PAR S A MAR - BUR".
		if len(rest) < 2 {
			return Order{}, fmt.Errorf("order %q is missing the supported unit", raw)
		}
		order.Target = rest[1]
		rest = rest[2:]
		switch {
		case len(rest) == 0:
			if order.Type == 'C' {
				return Order{}, fmt.Errorf("convoy order %q is missing a destination", raw)
			}
		case len(rest) == 2 && rest[0] == "-":
			// support or convoy of a move; the destination rides along in Raw
		default:
			return Order{}, fmt.Errorf("order %q has a malformed tail", raw)
		}
	}
	return order, nil
}

func isOrderLetter(token string) bool {
	return len(token) == 1 && strings.Contains(orderTypes, token)
}

// OrderTree indexes a flat list of legal orders so the interface can
// answer "what can this location do" queries: the order letters legal at
// each location, and the full completions beneath each letter.
type OrderTree struct {
	byLocation map[string]map[byte][]string
}

// BuildOrderTree folds a possible-orders listing, keyed or flat, into a
// queryable tree. Unparseable entries are reported, not skipped.
func BuildOrderTree(orders []string) (*OrderTree, error) {
	tree := &OrderTree{byLocation: make(map[string]map[byte][]string)}
	for _, text := range orders {
		order, err := ParseOrder(text)
		if err != nil {
			return nil, err
		}
		if order.Type == 0 {
			continue // WAIVE has no board anchor
		}
		byType, ok := tree.byLocation[order.Location]
		if !ok {
			byType = make(map[byte][]string)
			tree.byLocation[order.Location] = byType
		}
		byType[order.Type] = append(byType[order.Type], order.Raw)
	}
	return tree, nil
}

// Locations lists every board location with at least one legal order.
func (t *OrderTree) Locations() []string {
	if t == nil {
		return nil
	}
	locations := make([]string, 0, len(t.byLocation))
	for loc := range t.byLocation {
		locations = append(locations, loc)
	}
	sort.Strings(locations)
	return locations
}

// TypesAt returns the order letters legal at a location, sorted.
func (t *OrderTree) TypesAt(location string) []byte {
	if t == nil {
		return nil
	}
	byType, ok := t.byLocation[location]
	if !ok {
		return nil
	}
	letters := make([]byte, 0, len(byType))
	for letter := range byType {
		letters = append(letters, letter)
	}
	sort.Slice(letters, func(i, j int) bool { return letters[i] < letters[j] })
	return letters
}

// CompletionsAt returns the full order texts of one type at a location.
func (t *OrderTree) CompletionsAt(location string, orderType byte) []string {
	if t == nil {
		return nil
	}
	byType, ok := t.byLocation[location]
	if !ok {
		return nil
	}
	out := append([]string(nil), byType[orderType]...)
	sort.Strings(out)
	return out
}
