package core

// Transaction is the unit of execution within a block: a script run through
// a RuntimeVM, metered by gas and buffered through a StorageChangeSet so a
// failing transaction's partial effects never reach the chain.

import "time"

// Transaction carries a script plus the gas and ordering metadata the
// teacher's original transaction type left bundled with its payload; split
// out here the way PhantasmaChain keeps large contract bytecode addressed
// by a separate CID rather than inlined, for transactions whose script is
// pinned content rather than carried in the block.
type Transaction struct {
	Sender    Address `json:"sender" yaml:"sender"`
	Nonce     uint64  `json:"nonce" yaml:"nonce"`
	GasLimit  uint64  `json:"gas_limit" yaml:"gas_limit"`
	GasPrice  uint64  `json:"gas_price" yaml:"gas_price"`
	Timestamp uint64  `json:"timestamp" yaml:"timestamp"`
	Script    []byte  `json:"script,omitempty" yaml:"script,omitempty"`
	ScriptCID string  `json:"script_cid,omitempty" yaml:"script_cid,omitempty"`

	hash      Hash
	hashValid bool
}

// Hash returns the transaction's content hash, computing and caching it on
// first use.
func (tx *Transaction) Hash() Hash {
	if tx.hashValid {
		return tx.hash
	}
	buf := make([]byte, 0, 64+len(tx.Script)+len(tx.ScriptCID))
	buf = append(buf, tx.Sender[:]...)
	buf = appendUint64(buf, tx.Nonce)
	buf = appendUint64(buf, tx.GasLimit)
	buf = appendUint64(buf, tx.GasPrice)
	buf = appendUint64(buf, tx.Timestamp)
	buf = append(buf, tx.Script...)
	buf = append(buf, tx.ScriptCID...)
	tx.hash = HashBytes(buf)
	tx.hashValid = true
	return tx.hash
}

// IsValid reports whether tx is well-formed enough to attempt execution
// against chain: it must carry a positive gas limit, a script or a script
// CID (not both empty), and a nonce that has not already been consumed by
// sender.
func (tx *Transaction) IsValid(chain *Chain) error {
	if tx.GasLimit == 0 {
		return newInvalidTransactionException(tx.Hash(), "gas limit must be positive")
	}
	if len(tx.Script) == 0 && tx.ScriptCID == "" {
		return newInvalidTransactionException(tx.Hash(), "transaction carries no script")
	}
	nonce, err := chain.NonceOf(tx.Sender)
	if err != nil {
		return err
	}
	if tx.Nonce < nonce {
		return newInvalidTransactionException(tx.Hash(), "nonce %d already consumed (have %d)", tx.Nonce, nonce)
	}
	return nil
}

// Execute resolves tx's script (inline or via chain's ScriptStore), runs it
// through a RuntimeVM scoped to changeSet, and appends the resulting gas
// payment event to *result. notify, if non-nil, is invoked for every event
// the script emitted, in emission order, once the VM run has finished (also
// when it faulted), and then for the gas payment event on success — the
// same callback pattern AddLog threads through.
func (tx *Transaction) Execute(chain *Chain, block *Block, changeSet *StorageChangeSet, notify func(Event), result *VMResult) error {
	script := tx.Script
	if len(script) == 0 && tx.ScriptCID != "" {
		resolved, err := chain.scripts.Retrieve(tx.ScriptCID)
		if err != nil {
			return newInvalidTransactionException(tx.Hash(), "resolve script CID: %v", err)
		}
		script = resolved
	}

	vm := NewRuntimeVM(script, chain, block, tx, changeSet, false)
	res := vm.Execute()
	*result = *res

	if notify != nil {
		for _, evt := range res.Events {
			notify(evt)
		}
	}

	if res.State == Fault {
		return newInvalidTransactionException(tx.Hash(), "execution faulted: %v", res.Err)
	}

	payment := Event{Kind: EventGasPayment, Address: tx.Sender, Data: encodeGasPayment(tx.GasPrice, res.GasUsed)}
	result.Events = append(result.Events, payment)
	if notify != nil {
		notify(payment)
	}
	return nil
}

// Stamp fills Timestamp with t if it is still zero; used by block assembly
// so callers need not set it themselves.
func (tx *Transaction) Stamp(t time.Time) {
	if tx.Timestamp == 0 {
		tx.Timestamp = uint64(t.Unix())
	}
}
