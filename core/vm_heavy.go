package core

// The heavy backend: a WebAssembly module executed through wasmer-go,
// selected automatically when a script carries the WASM magic header.
// Follows HeavyVM (virtual_machine.go), which instantiates a wasmer module
// and exposes host_consume_gas/host_log as imports; ported here against the
// chain core's GasMeter and Notify instead of a raw linear-memory log
// buffer.

import (
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"
)

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// isHeavyScript reports whether script opens with the WebAssembly magic
// header, in which case it is run by the heavy backend rather than the
// light interpreter.
func isHeavyScript(script []byte) bool {
	if len(script) < 4 {
		return false
	}
	for i, b := range wasmMagic {
		if script[i] != b {
			return false
		}
	}
	return true
}

// runHeavy instantiates script as a wasm module, wires the host_consume_gas
// and host_log imports against vm, and calls its "run" export.
func runHeavy(vm *RuntimeVM) error {
	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)

	module, err := wasmer.NewModule(store, vm.script)
	if err != nil {
		return fmt.Errorf("compile wasm module: %w", err)
	}

	consumeGas := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I64), wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			amount := args[0].I64()
			if amount < 0 || !vm.gas.Consume(uint64(amount)) {
				return nil, fmt.Errorf("out of gas")
			}
			return []wasmer.Value{}, nil
		},
	)

	hostLog := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I32, wasmer.I32), wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			return []wasmer.Value{}, vm.Notify(Event{Kind: EventCustom})
		},
	)

	importObject := wasmer.NewImportObject()
	importObject.Register("env", map[string]wasmer.IntoExtern{
		"host_consume_gas": consumeGas,
		"host_log":         hostLog,
	})

	instance, err := wasmer.NewInstance(module, importObject)
	if err != nil {
		return fmt.Errorf("instantiate wasm module: %w", err)
	}
	defer instance.Close()

	run, err := instance.Exports.GetFunction("run")
	if err != nil {
		return fmt.Errorf("wasm module has no run export: %w", err)
	}
	if _, err := run(); err != nil {
		return fmt.Errorf("wasm run trapped: %w", err)
	}
	return nil
}
