package core

// The light backend: a small deterministic opcode interpreter that is the
// one actually exercised by the execution contract. Collapses the
// SuperLightVM/LightVM split in virtual_machine.go into a single backend,
// since the chain core draws no behavioural distinction between them.

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	opConsumeGas byte = 0x01
	opCall       byte = 0x02
	opHalt       byte = 0x03
)

// runLight interprets vm.script as a sequence of opcodes against vm's gas
// meter and interop table.
func runLight(vm *RuntimeVM) error {
	r := bytes.NewReader(vm.script)
	for {
		op, err := r.ReadByte()
		if err != nil {
			// scripts may omit a trailing opHalt
			return nil
		}
		switch op {
		case opConsumeGas:
			amount, err := binary.ReadUvarint(r)
			if err != nil {
				return fmt.Errorf("malformed consume-gas operand: %w", err)
			}
			if !vm.gas.Consume(amount) {
				return fmt.Errorf("out of gas")
			}
		case opCall:
			name, err := readLengthPrefixed(r)
			if err != nil {
				return fmt.Errorf("malformed call name: %w", err)
			}
			args, err := readLengthPrefixed(r)
			if err != nil {
				return fmt.Errorf("malformed call args: %w", err)
			}
			gasCost, err := binary.ReadUvarint(r)
			if err != nil {
				return fmt.Errorf("malformed call gas cost: %w", err)
			}
			if _, err := vm.callInterop(string(name), args, gasCost); err != nil {
				return err
			}
		case opHalt:
			return nil
		default:
			return fmt.Errorf("unknown opcode 0x%02x", op)
		}
	}
}

func readLengthPrefixed(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil && n > 0 {
		return nil, err
	}
	return buf, nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	tmp := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(tmp, v)
	return append(buf, tmp[:n]...)
}

func appendLengthPrefixed(buf, data []byte) []byte {
	buf = appendUvarint(buf, uint64(len(data)))
	return append(buf, data...)
}

// queryCallScript assembles a light-VM script performing exactly one
// interop call, name(args), handing it the script's whole gas budget. This
// is what Chain.InvokeContract's query path builds and runs read-only: a
// query has no use for a multi-step script, only for the one call's
// top-of-stack result.
func queryCallScript(name string, args []byte, gasBudget uint64) []byte {
	var buf []byte
	buf = append(buf, opCall)
	buf = appendLengthPrefixed(buf, []byte(name))
	buf = appendLengthPrefixed(buf, args)
	buf = appendUvarint(buf, gasBudget)
	buf = append(buf, opHalt)
	return buf
}

// decodeSheetArgs parses the args payload for sheet.credit/sheet.debit
// calls: a length-prefixed symbol, a 32-byte address, and an 8-byte
// big-endian amount.
func decodeSheetArgs(args []byte) (symbol string, addr Address, amount uint64, err error) {
	r := bytes.NewReader(args)
	sym, err := readLengthPrefixed(r)
	if err != nil {
		return "", Address{}, 0, fmt.Errorf("malformed sheet symbol: %w", err)
	}
	var addrBuf [32]byte
	if _, err := r.Read(addrBuf[:]); err != nil {
		return "", Address{}, 0, fmt.Errorf("malformed sheet address: %w", err)
	}
	var amtBuf [8]byte
	if _, err := r.Read(amtBuf[:]); err != nil {
		return "", Address{}, 0, fmt.Errorf("malformed sheet amount: %w", err)
	}
	return string(sym), Address(addrBuf), binary.BigEndian.Uint64(amtBuf[:]), nil
}

// decodeBalanceArgs parses the args payload for sheet.balanceOf calls: a
// length-prefixed symbol followed by a 32-byte address.
func decodeBalanceArgs(args []byte) (symbol string, addr Address, err error) {
	r := bytes.NewReader(args)
	sym, err := readLengthPrefixed(r)
	if err != nil {
		return "", Address{}, fmt.Errorf("malformed balance symbol: %w", err)
	}
	var addrBuf [32]byte
	if _, err := r.Read(addrBuf[:]); err != nil {
		return "", Address{}, fmt.Errorf("malformed balance address: %w", err)
	}
	return string(sym), Address(addrBuf), nil
}
