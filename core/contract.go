package core

import "fmt"

// Contract is a named, deployed script: the chain-core's minimal notion of
// a "smart contract" per the data model's Chain.Contracts registry. Unlike
// contracts.go's ContractRegistry, which resolves bytecode by address and
// routes Invoke calls through a VM singleton, a chain-core Contract is just
// a durable name->script binding; dispatch still goes through
// Chain.InvokeContract and the interop table, since opcode-level contract
// semantics are out of this module's scope.
type Contract struct {
	Name      string
	CodeHash  Hash
	Script    []byte
	ScriptCID string
}

func (c *Chain) contractKey(name string) []byte {
	return []byte("contract:" + name)
}

// DeployContract registers name as a deployed contract, pinning script to
// the chain's ScriptStore and persisting the resulting descriptor. It fails
// with a ChainException if name is malformed or already deployed, matching
// the "duplicate contract name" case in the chain-core's error surface.
func (c *Chain) DeployContract(name string, script []byte) (Contract, error) {
	if err := ValidateChainName(name); err != nil {
		return Contract{}, newChainException("invalid contract name %q: must be 3-19 chars of [a-z0-9_]", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.contracts[name]; exists {
		return Contract{}, newChainException("contract %q already deployed", name)
	}

	cid, err := c.scripts.Pin(script)
	if err != nil {
		return Contract{}, fmt.Errorf("pin contract script: %w", err)
	}

	contract := Contract{
		Name:      name,
		CodeHash:  HashBytes(script),
		Script:    script,
		ScriptCID: cid,
	}
	if err := c.ctxData.Put(c.contractKey(name), contract.CodeHash[:]); err != nil {
		return Contract{}, fmt.Errorf("persist contract descriptor: %w", err)
	}
	c.contracts[name] = contract
	return contract, nil
}

// GetContract looks up a deployed contract by name.
func (c *Chain) GetContract(name string) (Contract, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	contract, ok := c.contracts[name]
	return contract, ok
}

// Contracts returns every contract deployed on this chain, keyed by name.
func (c *Chain) Contracts() map[string]Contract {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Contract, len(c.contracts))
	for k, v := range c.contracts {
		out[k] = v
	}
	return out
}

// InvokeDeployedContract runs a query invocation gated on name being a
// currently-deployed contract, then forwards to InvokeContract for the
// actual call(methodName, args) build-and-decode. A contract's pinned
// script is only ever run by AddBlock, referenced from a transaction's
// ScriptCID — query dispatch is by interop name across the whole chain, not
// by a contract-specific entry point, since the light opcode interpreter
// has no branching to let one script conditionally dispatch on methodName
// itself.
func (c *Chain) InvokeDeployedContract(name, methodName string, args []byte, gasLimit uint64) ([]byte, error) {
	if _, ok := c.GetContract(name); !ok {
		return nil, newChainException("no contract named %q deployed on %q", name, c.Name)
	}
	return c.InvokeContract(methodName, args, gasLimit)
}
