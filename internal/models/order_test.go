package models

import "testing"

func TestSideOpposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell || SideSell.Opposite() != SideBuy {
		t.Errorf("opposite sides broken: %s/%s", SideBuy.Opposite(), SideSell.Opposite())
	}
}

func TestOrderFilterMatch(t *testing.T) {
	open := OrderView{Ticket: 1, Symbol: "EURUSD", Side: SideBuy, Magic: 7}
	pending := OrderView{Ticket: 2, Symbol: "EURUSD", Side: SideSell, Magic: 7, IsPending: true}

	if !(OrderFilter{Symbol: "EURUSD"}).Match(open) {
		t.Errorf("symbol filter must match")
	}
	if (OrderFilter{Symbol: "GBPUSD"}).Match(open) {
		t.Errorf("other symbol must not match")
	}
	if (OrderFilter{Side: SideBuy}).Match(pending) {
		t.Errorf("side filter must respect order side")
	}
	if !(OrderFilter{Side: SideBuy.Opposite()}).Match(pending) {
		t.Errorf("opposite side filter must match the sell leg")
	}
	if (OrderFilter{State: StateOpen}).Match(pending) || !(OrderFilter{State: StatePending}).Match(pending) {
		t.Errorf("state filter broken")
	}
	if (OrderFilter{Magic: 0, HasMagic: true}).Match(open) {
		t.Errorf("explicit magic 0 must not match magic 7")
	}
}
