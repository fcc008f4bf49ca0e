package core

// Nexus is the root registry of the chain hierarchy: every chain, root or
// descendant, is reachable from it by name, and it holds the validator
// lookup used to answer "whose turn is it" queries without walking the
// chain tree. The registration pattern follows access_control.go's
// single backing store addressed by composite keys, scoped here to chain
// bookkeeping rather than roles.

import "sync"

// Nexus tracks every chain in the hierarchy by name and fires plugins that
// should observe blocks across the whole tree rather than one chain.
type Nexus struct {
	mu         sync.RWMutex
	root       *Chain
	byName     map[string]*Chain
	validators []Address
	plugins    []Plugin
}

// NewNexus creates a registry rooted at root with the given Nexus-wide
// validator list. Individual chains may be constructed with their own
// validator list, which need not equal the Nexus-wide one (a child chain
// can run its own rotation).
func NewNexus(root *Chain, validators []Address) *Nexus {
	return &Nexus{root: root, byName: map[string]*Chain{root.Name: root}, validators: validators}
}

// Root returns the hierarchy's root chain.
func (n *Nexus) Root() *Chain { return n.root }

// RegisterChain adds chain to the registry. Callers are expected to have
// already linked it into the tree via Chain.CreateChild.
func (n *Nexus) RegisterChain(chain *Chain) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.byName[chain.Name]; exists {
		return newChainException("chain %q already registered", chain.Name)
	}
	n.byName[chain.Name] = chain
	return nil
}

// ContainsChain reports whether name is registered.
func (n *Nexus) ContainsChain(name string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.byName[name]
	return ok
}

// Chains returns every registered chain, keyed by name.
func (n *Nexus) Chains() map[string]*Chain {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]*Chain, len(n.byName))
	for k, v := range n.byName {
		out[k] = v
	}
	return out
}

// GetChain looks up a registered chain by name.
func (n *Nexus) GetChain(name string) (*Chain, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c, ok := n.byName[name]
	return c, ok
}

// GetValidatorCount returns the size of the Nexus-wide validator set.
func (n *Nexus) GetValidatorCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.validators)
}

// GetValidatorByIndex returns the validator at position i in the
// Nexus-wide validator set.
func (n *Nexus) GetValidatorByIndex(i int) (Address, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if i < 0 || i >= len(n.validators) {
		return Address{}, newChainException("validator index %d out of range", i)
	}
	return n.validators[i], nil
}

// GetIndexOfValidator returns addr's position in the Nexus-wide validator
// set.
func (n *Nexus) GetIndexOfValidator(addr Address) (int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if idx, ok := indexOfValidator(addr, n.validators); ok {
		return idx, nil
	}
	return 0, newChainException("address %s is not a validator", addr.Hex())
}

// RegisterPlugin installs a chain-wide post-commit observer, called in
// registration order whenever PluginTriggerBlock fires.
func (n *Nexus) RegisterPlugin(p Plugin) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.plugins = append(n.plugins, p)
}

// PluginTriggerBlock fires every chain-wide plugin registered directly on
// the Nexus, independent of the plugins registered on the individual
// chain. Used by observers that care about activity anywhere in the
// hierarchy (explorer indexers, cross-chain auditors) rather than one
// chain's own post-commit hooks.
func (n *Nexus) PluginTriggerBlock(chain *Chain, block *Block) {
	n.mu.RLock()
	plugins := make([]Plugin, len(n.plugins))
	copy(plugins, n.plugins)
	n.mu.RUnlock()
	for _, p := range plugins {
		p.OnBlock(chain, block)
	}
}

// LoadContext locates the chain registered under addr and returns it, so
// the VM bridge can bind the returned chain as the current runtime chain
// and read its storage for the interop call.
func (n *Nexus) LoadContext(addr Address) (*Chain, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, c := range n.byName {
		if c.Address == addr {
			return c, true
		}
	}
	return nil, false
}
