package core

// GasMeter tracks remaining execution budget for one transaction, in the
// style of virtual_machine.go's GasMeter (Consume/Remaining) but seeded from
// the transaction's own GasLimit rather than a VM-wide constant, since gas
// accounting here is a chain-core concern rather than a property of any one
// VM backend.

// GasMeter enforces a hard ceiling on the work one transaction may perform.
type GasMeter struct {
	limit uint64
	used  uint64
}

// NewGasMeter returns a meter seeded with limit units of gas.
func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

// Consume deducts amount from the remaining budget. It reports false,
// without partially deducting, once the budget would go negative — the
// caller must treat this as a Fault.
func (g *GasMeter) Consume(amount uint64) bool {
	if g.used+amount > g.limit {
		return false
	}
	g.used += amount
	return true
}

// Used returns the amount of gas consumed so far.
func (g *GasMeter) Used() uint64 { return g.used }

// Remaining returns the amount of gas left before exhaustion.
func (g *GasMeter) Remaining() uint64 { return g.limit - g.used }
