package core

// Epoch drives validator rotation: a hash-chained round of block
// production under one validator. Rotation is keyed by a single producing
// validator per round rather than a weighted committee the way
// AuthoritySet (common_structs.go) is, since the chain core rotates
// strictly round-robin rather than by stake.

// Epoch is one round of block production: the validator holding authority,
// the round's position in the rotation, and the hashes of every block
// accepted under it.
type Epoch struct {
	Index             uint64  `json:"index"`
	Timestamp         uint64  `json:"timestamp"`
	ValidatorAddress  Address `json:"validator_address"`
	PreviousEpochHash Hash    `json:"previous_epoch_hash"`
	BlockHashes       []Hash  `json:"block_hashes,omitempty"`

	hash      Hash
	hashValid bool
}

// Hash returns the epoch's content digest, computed over every field
// including the accumulated block hashes, so appending a block changes it.
func (e *Epoch) Hash() Hash {
	if e.hashValid {
		return e.hash
	}
	buf := make([]byte, 0, 64+len(e.BlockHashes)*32)
	buf = appendUint64(buf, e.Index)
	buf = appendUint64(buf, e.Timestamp)
	buf = append(buf, e.ValidatorAddress[:]...)
	buf = append(buf, e.PreviousEpochHash[:]...)
	for _, h := range e.BlockHashes {
		buf = append(buf, h[:]...)
	}
	e.hash = HashBytes(buf)
	e.hashValid = true
	return e.hash
}

// AppendBlock records b's hash under the epoch and invalidates the cached
// hash so the next Hash call recomputes it.
func (e *Epoch) AppendBlock(h Hash) {
	e.BlockHashes = append(e.BlockHashes, h)
	e.hashValid = false
}

// nextEpoch builds the epoch that follows prev under validators. prev is
// nil for the very first epoch, which selects validator 0; every
// subsequent epoch's index is (prev.Index+1) mod len(validators).
func nextEpoch(prev *Epoch, validators []Address, timestamp uint64) (*Epoch, error) {
	if len(validators) == 0 {
		return nil, newChainException("epoch rotation requires a non-empty validator set")
	}
	var index uint64
	var prevHash Hash
	if prev != nil {
		index = (prev.Index + 1) % uint64(len(validators))
		prevHash = prev.Hash()
	}
	return &Epoch{
		Index:             index,
		Timestamp:         timestamp,
		ValidatorAddress:  validators[index],
		PreviousEpochHash: prevHash,
	}, nil
}

// isCurrentValidator reports whether addr holds authority under current
// (nil if no epoch has been produced yet, in which case validator 0 holds
// authority by default).
func isCurrentValidator(addr Address, current *Epoch, validators []Address) bool {
	if current != nil {
		return addr == current.ValidatorAddress
	}
	return len(validators) > 0 && addr == validators[0]
}

// indexOfValidator returns addr's position within validators.
func indexOfValidator(addr Address, validators []Address) (int, bool) {
	for i, v := range validators {
		if v == addr {
			return i, true
		}
	}
	return 0, false
}
