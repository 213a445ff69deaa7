package game

import (
	"diplomacy/client/internal/ordmap"
)

// OrderStatus is the tri-state order-completion flag for a power.
type OrderStatus int

const (
	// OrdersUnset means the power has not submitted anything this phase.
	OrdersUnset OrderStatus = iota
	// OrdersEmpty means the power explicitly submitted an empty order set.
	OrdersEmpty
	// OrdersSet means the power submitted at least one order.
	OrdersSet
)

// Power is the mutable per-power sub-state owned by exactly one State.
type Power struct {
	Name          string
	Units         []string
	Retreats      map[string][]string
	Centers       []string
	Homes         []string
	Influence     []string
	CivilDisorder int
	Vote          string
	Wait          bool

	controllers *ordmap.Map[int64, string]
	orders      []string
	ordersSet   bool
	flagged     bool
	flag        OrderStatus
}

// NewPower constructs an empty power.
func NewPower(name string) *Power {
	return &Power{
		Name:        name,
		Retreats:    make(map[string][]string),
		controllers: ordmap.New[int64, string](ordmap.Int64Rank),
	}
}

// SetController records who controlled the power at the given timestamp.
func (p *Power) SetController(timestamp int64, controller string) {
	if p == nil || controller == "" {
		return
	}
	p.controllers.Put(timestamp, controller)
}

// Controller returns the current controller: the last entry wins.
func (p *Power) Controller() string {
	if p == nil {
		return ""
	}
	key, ok := p.controllers.Last()
	if !ok {
		return ""
	}
	controller, _ := p.controllers.Get(key)
	return controller
}

// ControllerHistory lists (timestamp, controller) pairs in time order.
func (p *Power) ControllerHistory() ([]int64, []string) {
	if p == nil {
		return nil, nil
	}
	return p.controllers.Keys(), p.controllers.Values()
}

// SetOrders replaces the submitted orders. A nil or empty list still
// counts as submitted, flipping the tri-state to OrdersEmpty.
func (p *Power) SetOrders(orders []string) {
	if p == nil {
		return
	}
	p.orders = append([]string(nil), orders...)
	p.ordersSet = true
	p.flagged = false
}

// ResetOrders returns the power to the not-submitted state.
func (p *Power) ResetOrders() {
	if p == nil {
		return
	}
	p.orders = nil
	p.ordersSet = false
	p.flagged = false
}

// SetOrderFlag records the server-announced completion state for a power
// whose order text is not visible to this client. A later SetOrders or
// ResetOrders clears the override.
func (p *Power) SetOrderFlag(status OrderStatus) {
	if p == nil {
		return
	}
	p.flagged = true
	p.flag = status
}

// Orders returns the submitted orders, if any.
func (p *Power) Orders() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.orders...)
}

// OrderStatus reports the tri-state completion flag.
func (p *Power) OrderStatus() OrderStatus {
	if p != nil && p.flagged {
		return p.flag
	}
	switch {
	case p == nil || !p.ordersSet:
		return OrdersUnset
	case len(p.orders) == 0:
		return OrdersEmpty
	default:
		return OrdersSet
	}
}

// Clone deep-copies the power so historical views stay independent.
func (p *Power) Clone() *Power {
	if p == nil {
		return nil
	}
	clone := &Power{
		Name:          p.Name,
		Units:         append([]string(nil), p.Units...),
		Centers:       append([]string(nil), p.Centers...),
		Homes:         append([]string(nil), p.Homes...),
		Influence:     append([]string(nil), p.Influence...),
		CivilDisorder: p.CivilDisorder,
		Vote:          p.Vote,
		Wait:          p.Wait,
		orders:        append([]string(nil), p.orders...),
		ordersSet:     p.ordersSet,
		flagged:       p.flagged,
		flag:          p.flag,
		Retreats:      cloneStringListMap(p.Retreats),
	}
	clone.controllers = p.controllers.Clone(nil)
	return clone
}
