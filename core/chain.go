package core

// Chain is the ledger for one node in the parent/child chain tree: it owns
// the block log, the storage backend every sheet and the VM bridge read and
// write through, the current epoch's validator rotation, and the pinned
// script store. AddBlock's validate-then-apply-then-persist shape and its
// coarse single-writer lock around the whole operation follow Ledger
// (ledger.go), generalized to a parent/child hierarchy and capped-token
// invariants rather than a single flat chain.

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
)

var chainNamePattern = regexp.MustCompile(`^[a-z0-9_]{3,19}$`)

// ValidateChainName reports whether name is an acceptable chain name: 3 to
// 19 characters, lowercase letters, digits and underscore only.
func ValidateChainName(name string) error {
	if !chainNamePattern.MatchString(name) {
		return newChainException("invalid chain name %q: must be 3-19 chars of [a-z0-9_]", name)
	}
	return nil
}

// Chain is one node of the chain hierarchy.
type Chain struct {
	Name    string
	Address Address

	parent   *Chain
	children map[string]*Chain
	nexus    *Nexus

	mu     sync.RWMutex
	backend Backend

	ctxBlocks *StorageContext
	ctxEpoch  *StorageContext
	ctxData   *StorageContext

	height uint64
	tip    Hash

	validators   []Address
	currentEpoch *Epoch

	scripts   *ScriptStore
	tokens    map[string]Token
	contracts map[string]Contract

	history []blockCommit // one entry per committed block, most recent last

	plugins []Plugin
}

// blockCommit pairs a committed block's change-set with the epoch state
// that held authority immediately before it, so DeleteBlocks can restore
// both in lock-step.
type blockCommit struct {
	changeSet *StorageChangeSet
	prevEpoch *Epoch
}

// blockCodec and epochCodec persist the block log and epoch log as RLP, the
// same deterministic encoding Ledger.DecodeBlockRLP (ledger.go) uses for its
// own block store, rather than JSON: RLP gives a single canonical byte
// representation per value, which the hash-chained epoch/block log depends
// on.
var blockCodec = Codec[Block]{
	Marshal: func(b Block) ([]byte, error) { return rlp.EncodeToBytes(&b) },
	Unmarshal: func(raw []byte) (Block, error) {
		var b Block
		err := rlp.DecodeBytes(raw, &b)
		return b, err
	},
}

var epochCodec = Codec[Epoch]{
	Marshal: func(e Epoch) ([]byte, error) { return rlp.EncodeToBytes(&e) },
	Unmarshal: func(raw []byte) (Epoch, error) {
		var e Epoch
		err := rlp.DecodeBytes(raw, &e)
		return e, err
	},
}

// NewChain creates a root or child chain named name, backed by backend and
// rooted under scriptDir for pinned scripts. validators is the ordered
// leader-rotation list; an empty list disables the block-production
// authority check entirely, which is used in tests and read-only mirrors.
func NewChain(name string, addr Address, backend Backend, scriptDir string, validators []Address) (*Chain, error) {
	if err := ValidateChainName(name); err != nil {
		return nil, err
	}
	scripts, err := NewScriptStore(scriptDir)
	if err != nil {
		return nil, err
	}
	c := &Chain{
		Name:       name,
		Address:    addr,
		children:   make(map[string]*Chain),
		backend:    backend,
		ctxBlocks:  NewStorageContext(addr, "blocks", backend),
		ctxEpoch:   NewStorageContext(addr, "epoch", backend),
		ctxData:    NewStorageContext(addr, "data", backend),
		tip:        NullHash,
		validators: validators,
		scripts:    scripts,
		tokens:     make(map[string]Token),
		contracts:  make(map[string]Contract),
	}
	if err := c.recoverTip(); err != nil {
		return nil, fmt.Errorf("recover chain tip: %w", err)
	}
	return c, nil
}

// recoverTip restores height and tip from whatever blocks a durable backend
// already holds, so reopening a chain in a fresh process picks up where a
// prior process left off. history (and therefore rollback depth) is not
// recovered: undoing a block committed in an earlier process run is out of
// scope, since its change-set journal lived only in that process's memory.
func (c *Chain) recoverTip() error {
	entries, err := c.ctxBlocks.Enumerate(nil)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	var best Block
	var bestHeight uint64
	found := false
	for _, kv := range entries {
		b, err := blockCodec.Unmarshal(kv[1])
		if err != nil {
			return err
		}
		if !found || b.Height > bestHeight {
			best, bestHeight, found = b, b.Height, true
		}
	}
	c.height = bestHeight
	c.tip = best.Hash()
	return nil
}

// blocksStore returns a fresh typed view over the block log; cheap enough
// to build per call since it carries no state of its own.
func (c *Chain) blocksStore() *TypedStore[Block] {
	return NewTypedStore[Block](c.ctxBlocks, blockCodec)
}

// epochStore returns a fresh typed view over the persisted epoch log.
func (c *Chain) epochStore() *TypedStore[Epoch] {
	return NewTypedStore[Epoch](c.ctxEpoch, epochCodec)
}

// CurrentEpoch returns the epoch currently holding block-production
// authority, or nil if the chain has not committed a block yet.
func (c *Chain) CurrentEpoch() *Epoch {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentEpoch
}

// Height returns the chain's current block height.
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// Tip returns the hash of the chain's most recently committed block.
func (c *Chain) Tip() Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip
}

// Parent returns the chain's parent, or nil for a root chain.
func (c *Chain) Parent() *Chain { return c.parent }

// SetNexus binds the Nexus this chain is registered under, so its
// RuntimeVM can resolve "load execution context by address" interop calls
// into sibling chains elsewhere in the hierarchy. Chains built for
// standalone tests may leave this unset.
func (c *Chain) SetNexus(n *Nexus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nexus = n
}

// Nexus returns the registry this chain is bound to, or nil if unbound.
func (c *Chain) Nexus() *Nexus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nexus
}

// Children returns the chain's direct children, keyed by name.
func (c *Chain) Children() map[string]*Chain {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*Chain, len(c.children))
	for k, v := range c.children {
		out[k] = v
	}
	return out
}

// RegisterToken adds a token descriptor to the chain's registry.
func (c *Chain) RegisterToken(t Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[t.Symbol] = t
}

// Token looks up a registered token descriptor by symbol.
func (c *Chain) Token(symbol string) (Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tokens[symbol]
	return t, ok
}

// RegisterPlugin installs a post-commit observer, called in registration
// order after every successful AddBlock.
func (c *Chain) RegisterPlugin(p Plugin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plugins = append(c.plugins, p)
}

// CreateChild registers a new child chain under c, sharing c's backend but
// scoped to its own address, name and validator rotation.
func (c *Chain) CreateChild(name string, addr Address, scriptDir string, validators []Address) (*Chain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.children[name]; exists {
		return nil, newChainException("child chain %q already exists", name)
	}
	child, err := NewChain(name, addr, c.backend, scriptDir, validators)
	if err != nil {
		return nil, err
	}
	child.parent = c
	c.children[name] = child
	return child, nil
}

func (c *Chain) nonceKey(addr Address) []byte {
	return []byte("nonce:" + addr.Hex())
}

// NonceOf returns the next nonce sender must use, zero if sender has never
// transacted on this chain.
func (c *Chain) NonceOf(sender Address) (uint64, error) {
	raw, ok, err := c.ctxData.Get(c.nonceKey(sender))
	if err != nil || !ok {
		return 0, err
	}
	return decodeUint64(raw), nil
}

// BalanceOf returns addr's fungible balance of symbol on this chain.
func (c *Chain) BalanceOf(symbol string, addr Address) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return NewBalanceSheet(c.ctxData, symbol).BalanceOf(addr)
}

// SupplyOf returns symbol's local and child-delegated supply on this chain.
// A child chain with no local supply sheet of its own yet has its first
// read seeded from the parent's current LocalBalance, per the capped-token
// inheritance rule for chains that have not locally minted or received a
// delegated transfer. Locking follows the fixed parent-before-child order
// to avoid deadlocking against TransferCrossChain.
func (c *Chain) SupplyOf(symbol string) (local, child uint64, err error) {
	if c.parent != nil {
		c.parent.mu.RLock()
		defer c.parent.mu.RUnlock()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	sheet := NewSupplySheet(c.ctxData, symbol, 0)
	_, exists, err := c.ctxData.Get(sheet.localKey())
	if err != nil {
		return 0, 0, err
	}
	if !exists && c.parent != nil {
		if local, err = NewSupplySheet(c.parent.ctxData, symbol, 0).LocalBalance(); err != nil {
			return 0, 0, err
		}
	} else if local, err = sheet.LocalBalance(); err != nil {
		return 0, 0, err
	}
	if child, err = sheet.ChildBalance(); err != nil {
		return 0, 0, err
	}
	return local, child, nil
}

// RollbackToHash undoes committed blocks one at a time until the chain's
// tip equals target, or returns an error if target is not found among the
// change-sets retained in this process's lifetime.
func (c *Chain) RollbackToHash(target Hash) error {
	for {
		if c.Tip() == target {
			return nil
		}
		if c.Height() == 0 {
			return newChainException("hash %s not found in retained rollback history", target.Hex())
		}
		if err := c.DeleteBlocks(1); err != nil {
			return err
		}
	}
}

// checkTransactionHashSet enforces the block-application algorithm's set
// equality step: the multiset of hashes among the supplied transactions
// (already hashed into have) must equal declared exactly, naming the
// offending hash on the first mismatch found in either direction.
func checkTransactionHashSet(have map[Hash]*Transaction, declared []Hash) error {
	seen := make(map[Hash]int, len(declared))
	for _, h := range declared {
		if _, ok := have[h]; !ok {
			return newBlockGenerationException("declared transaction hash %s has no matching supplied transaction", h.Hex())
		}
		seen[h]++
	}
	if len(seen) != len(have) {
		for h := range have {
			if seen[h] == 0 {
				return newBlockGenerationException("supplied transaction hash %s is not in the block's declared transaction-hash set", h.Hex())
			}
		}
	}
	for _, h := range declared {
		if seen[h] > 1 {
			return newBlockGenerationException("transaction hash %s is declared more than once", h.Hex())
		}
	}
	return nil
}

// AddBlock validates block against the chain's current tip and epoch,
// checks that the multiset of transaction hashes in block.Transactions
// equals block.TransactionHashes, runs every transaction (in the order
// given by TransactionHashes, not by Transactions) through a single
// buffered StorageChangeSet, and commits the change-set only if every
// transaction in the block succeeds — a partially-invalid block leaves the
// chain's storage untouched. On success it persists the block, advances
// the tip, and fires post-commit plugins.
func (c *Chain) AddBlock(block *Block, notify func(Event)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if block.Height != c.height+1 {
		return newBlockGenerationException("block height %d does not follow chain height %d", block.Height, c.height)
	}
	if block.PrevHash != c.tip {
		return newBlockGenerationException("block prev-hash does not match chain tip")
	}
	// the block opens the next epoch in the rotation, so its producer must
	// be that epoch's validator
	var epoch *Epoch
	if len(c.validators) > 0 {
		next, err := nextEpoch(c.currentEpoch, c.validators, block.Timestamp)
		if err != nil {
			return fmt.Errorf("advance epoch: %w", err)
		}
		if !isCurrentValidator(block.Validator, next, c.validators) {
			return newBlockGenerationException("validator %s does not hold authority at height %d", block.Validator.Hex(), block.Height)
		}
		epoch = next
	}

	txByHash := make(map[Hash]*Transaction, len(block.Transactions))
	for i := range block.Transactions {
		h := block.Transactions[i].Hash()
		if _, dup := txByHash[h]; dup {
			return newBlockGenerationException("supplied transaction hash %s appears more than once", h.Hex())
		}
		txByHash[h] = &block.Transactions[i]
	}
	if err := checkTransactionHashSet(txByHash, block.TransactionHashes); err != nil {
		return err
	}

	changeSet := NewStorageChangeSet(c.ctxData)
	block.Results = make([][]byte, len(block.TransactionHashes))
	block.Events = make([][]Event, len(block.TransactionHashes))

	for i, h := range block.TransactionHashes {
		tx := txByHash[h]
		if err := tx.IsValid(c); err != nil {
			return err
		}
		var result VMResult
		if err := tx.Execute(c, block, changeSet, notify, &result); err != nil {
			return err
		}
		block.Results[i] = result.Result
		block.Events[i] = result.Events
		nonce, err := c.NonceOf(tx.Sender)
		if err != nil {
			return err
		}
		if err := changeSet.Put(c.nonceKey(tx.Sender), encodeUint64(nonce+1)); err != nil {
			return err
		}
	}

	if err := changeSet.Execute(); err != nil {
		return fmt.Errorf("commit block %d: %w", block.Height, err)
	}

	if err := c.blocksStore().Put(encodeUint64(block.Height), *block); err != nil {
		return fmt.Errorf("persist block %d: %w", block.Height, err)
	}

	prevEpoch := c.currentEpoch
	if epoch != nil {
		epoch.AppendBlock(block.Hash())
		// keyed by block height, not epoch.Index: the index cycles modulo
		// the validator count and would collide across rotations.
		if err := c.epochStore().Put(encodeUint64(block.Height), *epoch); err != nil {
			return fmt.Errorf("persist epoch %d: %w", epoch.Index, err)
		}
		c.currentEpoch = epoch
	}

	c.history = append(c.history, blockCommit{changeSet: changeSet, prevEpoch: prevEpoch})
	c.height = block.Height
	c.tip = block.Hash()

	for _, p := range c.plugins {
		p.OnBlock(c, block)
	}
	return nil
}

// GetBlock returns the block committed at height.
func (c *Chain) GetBlock(height uint64) (Block, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocksStore().Get(encodeUint64(height))
}

// DeleteBlocks rolls the chain back by n blocks, undoing each block's
// change-set in reverse commit order and restoring the tip and height to
// what they were immediately before the oldest undone block. Rollback only
// reaches as far back as change-sets retained in this process's lifetime;
// it cannot undo blocks committed in a prior process run.
func (c *Chain) DeleteBlocks(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 {
		return nil
	}
	if n > len(c.history) {
		return newChainException("cannot roll back %d blocks, only %d retained", n, len(c.history))
	}

	for i := 0; i < n; i++ {
		last := len(c.history) - 1
		commit := c.history[last]
		if err := commit.changeSet.Undo(); err != nil {
			return fmt.Errorf("undo block %d: %w", c.height, err)
		}
		if err := c.blocksStore().Remove(encodeUint64(c.height)); err != nil {
			return fmt.Errorf("remove persisted block %d: %w", c.height, err)
		}
		if c.currentEpoch != nil {
			if err := c.epochStore().Remove(encodeUint64(c.height)); err != nil {
				return fmt.Errorf("remove persisted epoch at height %d: %w", c.height, err)
			}
		}
		c.currentEpoch = commit.prevEpoch
		c.history = c.history[:last]
		c.height--
	}

	if c.height == 0 {
		c.tip = NullHash
	} else {
		b, ok, err := c.blocksStore().Get(encodeUint64(c.height))
		if err != nil {
			return err
		}
		if !ok {
			return newChainException("rollback left chain without a block at height %d", c.height)
		}
		c.tip = b.Hash()
	}
	return nil
}

// InvokeContract is query invocation: it builds a script that calls
// methodName with args, runs it read-only against a throw-away change-set
// over the chain's committed storage, and returns the call's top-of-stack
// bytes exactly as the interop handler produced them; it does not decode
// them into a host value. No write the call makes is ever persisted. Any state other than
// Halt, or a Halt with an empty stack, raises ChainException — a query
// never hands back a partial or ambiguous answer.
func (c *Chain) InvokeContract(methodName string, args []byte, gasLimit uint64) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	changeSet := NewStorageChangeSet(c.ctxData)
	tx := &Transaction{GasLimit: gasLimit}
	script := queryCallScript(methodName, args, gasLimit)
	vm := NewRuntimeVM(script, c, nil, tx, changeSet, true)
	result := vm.Execute()
	if result.State != Halt {
		return nil, newChainException("query invocation of %q did not halt: %v", methodName, result.Err)
	}
	if len(result.Result) == 0 {
		return nil, newChainException("query invocation of %q returned an empty stack", methodName)
	}
	return result.Result, nil
}

// TransferCrossChain moves amount of a capped fungible token's supply from
// parent down to child. It locks parent before child, matching the fixed
// parent-before-child lock order required whenever an operation touches
// both a chain and its child to avoid lock-order deadlocks. The transfer is
// atomic: if crediting the child fails, the parent's debit is undone before
// returning.
func TransferCrossChain(parent, child *Chain, symbol string, amount uint64) error {
	if child.parent != parent {
		return newChainException("chain %q is not a child of %q", child.Name, parent.Name)
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()
	child.mu.Lock()
	defer child.mu.Unlock()

	token, ok := parent.tokens[symbol]
	if !ok || !token.IsCapped() {
		return newChainException("token %q is not a registered capped token on %q", symbol, parent.Name)
	}

	parentCS := NewStorageChangeSet(parent.ctxData)
	if err := NewSupplySheet(parentCS, symbol, token.MaxSupply).delegateDown(amount); err != nil {
		return fmt.Errorf("parent delegate: %w", err)
	}

	childCS := NewStorageChangeSet(child.ctxData)
	if err := NewSupplySheet(childCS, symbol, token.MaxSupply).MintLocal(amount); err != nil {
		return fmt.Errorf("child mint: %w", err)
	}

	if err := parentCS.Execute(); err != nil {
		return fmt.Errorf("commit parent delegate: %w", err)
	}
	if err := childCS.Execute(); err != nil {
		if undoErr := parentCS.Undo(); undoErr != nil {
			return fmt.Errorf("commit child mint: %w (and parent undo failed: %v)", err, undoErr)
		}
		return fmt.Errorf("commit child mint: %w", err)
	}

	return nil
}
