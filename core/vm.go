package core

// RuntimeVM is the bridge between a transaction's script and the chain's
// storage: it owns the gas meter, the read-only flag, and the interop
// handler table a script's host calls are dispatched through, mirroring the
// VM/VMContext split in virtual_machine.go. Unlike that split, a RuntimeVM
// is constructed fresh per transaction rather than kept resident, since the
// chain core has no sandbox-management surface.

import "fmt"

// VMState is the outcome of a RuntimeVM run.
type VMState uint8

const (
	// Running is the state while execution is in progress; never observed
	// by a caller of Execute.
	Running VMState = iota
	// Halt means the script ran to completion within its gas budget.
	Halt
	// Fault means the script exhausted its gas, attempted a write under a
	// read-only invocation, or called an unregistered interop name.
	Fault
)

func (s VMState) String() string {
	switch s {
	case Running:
		return "running"
	case Halt:
		return "halt"
	case Fault:
		return "fault"
	default:
		return "unknown"
	}
}

// VMResult is what Execute returns: the terminal state, gas consumed, and
// the events the script emitted before halting or faulting.
type VMResult struct {
	State VMState
	// Result is the top-of-stack value on Halt, empty if no interop call
	// returned anything. Neither backend models a true operand stack (see
	// vm_light.go, vm_heavy.go); a one-slot register holding the most
	// recent non-nil interop return value stands in for it, which is all
	// a flat opcode stream without branches ever needs.
	Result  []byte
	GasUsed uint64
	Events  []Event
	Err     error
}

// InteropHandler is a host function a script can invoke by name. args and
// the return value are opaque to the VM; only the light/heavy backend and
// the handler agree on their encoding.
type InteropHandler func(vm *RuntimeVM, args []byte) ([]byte, error)

// RuntimeVM executes one transaction's script against one chain's
// change-set-buffered storage.
type RuntimeVM struct {
	script    []byte
	chain     *Chain
	block     *Block
	tx        *Transaction
	changeSet *StorageChangeSet
	readOnly  bool

	gas     *GasMeter
	state   VMState
	events  []Event
	interop map[string]InteropHandler

	stackTop    []byte
	hasStackTop bool
}

// NewRuntimeVM builds a VM for tx's script, scoped to chain's storage
// through changeSet. readOnly forbids Notify and any interop handler that
// mutates storage; it is used for InvokeContract queries.
func NewRuntimeVM(script []byte, chain *Chain, block *Block, tx *Transaction, changeSet *StorageChangeSet, readOnly bool) *RuntimeVM {
	vm := &RuntimeVM{
		script:    script,
		chain:     chain,
		block:     block,
		tx:        tx,
		changeSet: changeSet,
		readOnly:  readOnly,
		gas:       NewGasMeter(tx.GasLimit),
		state:     Running,
		interop:   make(map[string]InteropHandler),
	}
	registerDefaultInterop(vm)
	return vm
}

// Register installs an interop handler a script may call by name,
// overwriting any previous handler of the same name.
func (vm *RuntimeVM) Register(name string, h InteropHandler) {
	vm.interop[name] = h
}

// ChangeSet exposes the VM's storage overlay to interop handlers.
func (vm *RuntimeVM) ChangeSet() *StorageChangeSet { return vm.changeSet }

// Chain exposes the chain the VM is executing against.
func (vm *RuntimeVM) Chain() *Chain { return vm.chain }

// Transaction exposes the transaction under execution.
func (vm *RuntimeVM) Transaction() *Transaction { return vm.tx }

// ReadOnly reports whether the VM forbids mutation and event emission.
func (vm *RuntimeVM) ReadOnly() bool { return vm.readOnly }

// Gas exposes the VM's gas meter to interop handlers that charge for I/O.
func (vm *RuntimeVM) Gas() *GasMeter { return vm.gas }

// Notify records an event emitted by the script. It fails if the VM is
// running read-only, per the read-only-query isolation invariant.
func (vm *RuntimeVM) Notify(evt Event) error {
	if vm.readOnly {
		return newChainException("notify called from a read-only invocation")
	}
	vm.events = append(vm.events, evt)
	return nil
}

// callInterop dispatches a named host call, consuming its advertised gas
// cost before running the handler. A non-nil return value becomes the VM's
// top-of-stack, overwriting whatever a prior call left there.
func (vm *RuntimeVM) callInterop(name string, args []byte, gasCost uint64) ([]byte, error) {
	h, ok := vm.interop[name]
	if !ok {
		return nil, fmt.Errorf("unregistered interop call %q", name)
	}
	if !vm.gas.Consume(gasCost) {
		return nil, fmt.Errorf("out of gas calling %q", name)
	}
	ret, err := h(vm, args)
	if err != nil {
		return nil, err
	}
	if ret != nil {
		vm.stackTop, vm.hasStackTop = ret, true
	}
	return ret, nil
}

// Execute runs the script to completion, selecting the light or heavy
// backend by its leading magic byte (see vm_light.go, vm_heavy.go), and
// returns the terminal VMResult. Execute never panics: backend errors are
// folded into a Fault result.
func (vm *RuntimeVM) Execute() *VMResult {
	var err error
	if isHeavyScript(vm.script) {
		err = runHeavy(vm)
	} else {
		err = runLight(vm)
	}
	if err != nil {
		vm.state = Fault
		return &VMResult{State: Fault, GasUsed: vm.gas.Used(), Events: vm.events, Err: err}
	}
	vm.state = Halt
	result := &VMResult{State: Halt, GasUsed: vm.gas.Used(), Events: vm.events}
	if vm.hasStackTop {
		result.Result = vm.stackTop
	}
	return result
}

// registerDefaultInterop wires the host calls every script may rely on,
// following registerHost's host_consume_gas/host_log pattern but retargeted
// at chain-core concerns: token sheets and event emission rather than raw
// linear memory.
func registerDefaultInterop(vm *RuntimeVM) {
	vm.Register("sheet.credit", func(vm *RuntimeVM, args []byte) ([]byte, error) {
		symbol, addr, amount, err := decodeSheetArgs(args)
		if err != nil {
			return nil, err
		}
		if vm.readOnly {
			return nil, newChainException("sheet.credit called from a read-only invocation")
		}
		return nil, NewBalanceSheet(vm.changeSet, symbol).Credit(addr, amount)
	})
	vm.Register("sheet.debit", func(vm *RuntimeVM, args []byte) ([]byte, error) {
		symbol, addr, amount, err := decodeSheetArgs(args)
		if err != nil {
			return nil, err
		}
		if vm.readOnly {
			return nil, newChainException("sheet.debit called from a read-only invocation")
		}
		return nil, NewBalanceSheet(vm.changeSet, symbol).Debit(addr, amount)
	})
	vm.Register("sheet.balanceOf", func(vm *RuntimeVM, args []byte) ([]byte, error) {
		symbol, addr, err := decodeBalanceArgs(args)
		if err != nil {
			return nil, err
		}
		bal, err := NewBalanceSheet(vm.changeSet, symbol).BalanceOf(addr)
		if err != nil {
			return nil, err
		}
		return encodeUint64(bal), nil
	})
	vm.Register("log", func(vm *RuntimeVM, args []byte) ([]byte, error) {
		return nil, vm.Notify(Event{Kind: EventCustom, Data: args})
	})
	// context.load rebinds the VM to a different chain's execution
	// context by address: a fresh change-set over the target chain's
	// storage replaces the caller's, so every subsequent sheet/interop
	// call in this invocation reads the target chain rather than the one
	// the transaction originated on. Nothing executes that change-set, so
	// writes made after context.load are discarded and never reach either
	// chain.
	vm.Register("context.load", func(vm *RuntimeVM, args []byte) ([]byte, error) {
		if len(args) != 32 {
			return nil, fmt.Errorf("context.load expects a 32-byte chain address, got %d bytes", len(args))
		}
		if vm.chain.nexus == nil {
			return nil, fmt.Errorf("context.load: chain %q is not bound to a nexus", vm.chain.Name)
		}
		var addr Address
		copy(addr[:], args)
		target, ok := vm.chain.nexus.LoadContext(addr)
		if !ok {
			return nil, fmt.Errorf("context.load: no chain registered at address %s", addr.Hex())
		}
		vm.chain = target
		vm.changeSet = NewStorageChangeSet(target.ctxData)
		return nil, nil
	})
}
