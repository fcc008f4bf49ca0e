package core

// Sheets are thin typed views over a KVStore (usually a StorageChangeSet)
// for one token's balances, supply, or ownership. Because every mutation
// goes through the caller-supplied KVStore rather than a private map, all
// changes a sheet makes under a block are buffered by that block's
// change-set and vanish if the block is rejected — mirroring the way
// BalanceTable (tokens.go) is itself just a map the ledger owns, except
// here the map is replaced by the change-set-backed store so writes are
// rollback-able.

import (
	"encoding/binary"
	"fmt"
)

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// BalanceSheet is a fungible token's Address -> balance mapping.
type BalanceSheet struct {
	store  KVStore
	symbol string
}

// NewBalanceSheet opens the balance sheet for symbol over store.
func NewBalanceSheet(store KVStore, symbol string) *BalanceSheet {
	return &BalanceSheet{store: store, symbol: symbol}
}

func (s *BalanceSheet) key(addr Address) []byte {
	return []byte(fmt.Sprintf("balance:%s:%s", s.symbol, addr.Hex()))
}

// BalanceOf returns the address's balance, zero if never touched.
func (s *BalanceSheet) BalanceOf(addr Address) (uint64, error) {
	raw, ok, err := s.store.Get(s.key(addr))
	if err != nil || !ok {
		return 0, err
	}
	return decodeUint64(raw), nil
}

func (s *BalanceSheet) setBalance(addr Address, v uint64) error {
	return s.store.Put(s.key(addr), encodeUint64(v))
}

// Credit increases addr's balance by amount.
func (s *BalanceSheet) Credit(addr Address, amount uint64) error {
	bal, err := s.BalanceOf(addr)
	if err != nil {
		return err
	}
	return s.setBalance(addr, bal+amount)
}

// Debit decreases addr's balance by amount, failing if the balance is
// insufficient.
func (s *BalanceSheet) Debit(addr Address, amount uint64) error {
	bal, err := s.BalanceOf(addr)
	if err != nil {
		return err
	}
	if bal < amount {
		return newChainException("insufficient balance: have %d, need %d", bal, amount)
	}
	return s.setBalance(addr, bal-amount)
}

// Transfer moves amount from one address's balance to another's.
func (s *BalanceSheet) Transfer(from, to Address, amount uint64) error {
	if err := s.Debit(from, amount); err != nil {
		return err
	}
	return s.Credit(to, amount)
}

// SupplySheet tracks a capped fungible token's supply across the
// parent/child chain tree: LocalBalance is this chain's circulating supply,
// ChildBalance is the sum delegated down to children, and the two together
// may never exceed MaxSupply anywhere on the path to the root.
type SupplySheet struct {
	store     KVStore
	symbol    string
	maxSupply uint64
}

// NewSupplySheet opens the supply sheet for a capped token. maxSupply is the
// token's configured cap.
func NewSupplySheet(store KVStore, symbol string, maxSupply uint64) *SupplySheet {
	return &SupplySheet{store: store, symbol: symbol, maxSupply: maxSupply}
}

func (s *SupplySheet) localKey() []byte { return []byte("supply:" + s.symbol + ":local") }
func (s *SupplySheet) childKey() []byte { return []byte("supply:" + s.symbol + ":child") }

// LocalBalance returns the supply minted directly on this chain.
func (s *SupplySheet) LocalBalance() (uint64, error) {
	raw, ok, err := s.store.Get(s.localKey())
	if err != nil || !ok {
		return 0, err
	}
	return decodeUint64(raw), nil
}

// ChildBalance returns the supply delegated down to direct children.
func (s *SupplySheet) ChildBalance() (uint64, error) {
	raw, ok, err := s.store.Get(s.childKey())
	if err != nil || !ok {
		return 0, err
	}
	return decodeUint64(raw), nil
}

func (s *SupplySheet) setLocal(v uint64) error { return s.store.Put(s.localKey(), encodeUint64(v)) }
func (s *SupplySheet) setChild(v uint64) error { return s.store.Put(s.childKey(), encodeUint64(v)) }

// MintLocal increases LocalBalance by amount, enforcing
// LocalBalance + ChildBalance <= MaxSupply.
func (s *SupplySheet) MintLocal(amount uint64) error {
	local, err := s.LocalBalance()
	if err != nil {
		return err
	}
	child, err := s.ChildBalance()
	if err != nil {
		return err
	}
	if s.maxSupply > 0 && local+child+amount > s.maxSupply {
		return newChainException("mint %d of %s would exceed max supply %d", amount, s.symbol, s.maxSupply)
	}
	return s.setLocal(local + amount)
}

// BurnLocal decreases LocalBalance by amount.
func (s *SupplySheet) BurnLocal(amount uint64) error {
	local, err := s.LocalBalance()
	if err != nil {
		return err
	}
	if local < amount {
		return newChainException("burn %d of %s exceeds local balance %d", amount, s.symbol, local)
	}
	return s.setLocal(local - amount)
}

// delegateDown moves amount of supply from LocalBalance to ChildBalance, the
// parent-side half of a cross-chain capped-token transfer.
func (s *SupplySheet) delegateDown(amount uint64) error {
	local, err := s.LocalBalance()
	if err != nil {
		return err
	}
	if local < amount {
		return newChainException("delegate %d of %s exceeds local balance %d", amount, s.symbol, local)
	}
	child, err := s.ChildBalance()
	if err != nil {
		return err
	}
	if err := s.setLocal(local - amount); err != nil {
		return err
	}
	return s.setChild(child + amount)
}

// reclaimUp is the inverse of delegateDown, used when DeleteBlocks undoes a
// cross-chain transfer's parent-side effect (in practice this is handled by
// the change-set Undo, but exposed here for direct invariant checks/tests).
func (s *SupplySheet) reclaimUp(amount uint64) error {
	child, err := s.ChildBalance()
	if err != nil {
		return err
	}
	if child < amount {
		return newChainException("reclaim %d of %s exceeds child balance %d", amount, s.symbol, child)
	}
	local, err := s.LocalBalance()
	if err != nil {
		return err
	}
	if err := s.setChild(child - amount); err != nil {
		return err
	}
	return s.setLocal(local + amount)
}

// OwnershipSheet tracks non-fungible ownership as two mutually-inverse
// relations: Address -> set of token IDs, and token ID -> Address.
type OwnershipSheet struct {
	store  KVStore
	symbol string
}

// NewOwnershipSheet opens the ownership sheet for a non-fungible token.
func NewOwnershipSheet(store KVStore, symbol string) *OwnershipSheet {
	return &OwnershipSheet{store: store, symbol: symbol}
}

func (s *OwnershipSheet) ownerKey(id string) []byte {
	return []byte("owner:" + s.symbol + ":" + id)
}

func (s *OwnershipSheet) idsKey(addr Address, id string) []byte {
	return []byte("ids:" + s.symbol + ":" + addr.Hex() + ":" + id)
}

func (s *OwnershipSheet) idsPrefix(addr Address) []byte {
	return []byte("ids:" + s.symbol + ":" + addr.Hex() + ":")
}

// OwnerOf returns the address owning token id, if any.
func (s *OwnershipSheet) OwnerOf(id string) (Address, bool, error) {
	raw, ok, err := s.store.Get(s.ownerKey(id))
	if err != nil || !ok {
		return Address{}, false, err
	}
	var addr Address
	copy(addr[:], raw)
	return addr, true, nil
}

// IDsOf returns every token id owned by addr.
func (s *OwnershipSheet) IDsOf(addr Address) ([]string, error) {
	kv, err := s.store.Enumerate(s.idsPrefix(addr))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(kv))
	for _, e := range kv {
		ids = append(ids, string(e[1]))
	}
	return ids, nil
}

// Mint assigns a freshly created token id to addr. It fails if the id
// already has an owner.
func (s *OwnershipSheet) Mint(addr Address, id string) error {
	if _, ok, err := s.OwnerOf(id); err != nil {
		return err
	} else if ok {
		return newChainException("token id %s of %s already owned", id, s.symbol)
	}
	if err := s.store.Put(s.ownerKey(id), addr[:]); err != nil {
		return err
	}
	return s.store.Put(s.idsKey(addr, id), []byte(id))
}

// Transfer moves token id's ownership from its current owner to to. It
// keeps the forward and inverse relations in sync in the same operation.
func (s *OwnershipSheet) Transfer(to Address, id string) error {
	from, ok, err := s.OwnerOf(id)
	if err != nil {
		return err
	}
	if !ok {
		return newChainException("token id %s of %s has no owner", id, s.symbol)
	}
	if err := s.store.Delete(s.idsKey(from, id)); err != nil {
		return err
	}
	if err := s.store.Put(s.ownerKey(id), to[:]); err != nil {
		return err
	}
	return s.store.Put(s.idsKey(to, id), []byte(id))
}

// Burn removes token id from circulation entirely.
func (s *OwnershipSheet) Burn(id string) error {
	owner, ok, err := s.OwnerOf(id)
	if err != nil {
		return err
	}
	if !ok {
		return newChainException("token id %s of %s has no owner", id, s.symbol)
	}
	if err := s.store.Delete(s.idsKey(owner, id)); err != nil {
		return err
	}
	return s.store.Delete(s.ownerKey(id))
}
