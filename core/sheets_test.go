package core

import "testing"

//-------------------------------------------------------------
// BalanceSheet
//-------------------------------------------------------------

func TestBalanceSheetCreditDebitTransfer(t *testing.T) {
	store := NewStorageContext(AddressFromName("chain"), "data", NewVolatileBackend())
	sheet := NewBalanceSheet(store, "GLD")

	alice := AddressFromName("alice")
	bob := AddressFromName("bob")

	if err := sheet.Credit(alice, 100); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := sheet.Transfer(alice, bob, 40); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if bal, _ := sheet.BalanceOf(alice); bal != 60 {
		t.Fatalf("alice balance = %d want 60", bal)
	}
	if bal, _ := sheet.BalanceOf(bob); bal != 40 {
		t.Fatalf("bob balance = %d want 40", bal)
	}
	if err := sheet.Debit(bob, 1000); err == nil {
		t.Fatalf("expected insufficient-balance error")
	}
}

//-------------------------------------------------------------
// SupplySheet: the parent/child capped-supply invariant
//-------------------------------------------------------------

func TestSupplySheetEnforcesMaxSupply(t *testing.T) {
	store := NewStorageContext(AddressFromName("chain"), "data", NewVolatileBackend())
	sheet := NewSupplySheet(store, "CAP", 100)

	if err := sheet.MintLocal(60); err != nil {
		t.Fatalf("mint 60: %v", err)
	}
	if err := sheet.MintLocal(50); err == nil {
		t.Fatalf("minting past the cap should fail")
	}
	if err := sheet.MintLocal(40); err != nil {
		t.Fatalf("mint up to the cap: %v", err)
	}
	local, child, err := sheetTotals(sheet)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if local != 100 || child != 0 {
		t.Fatalf("local=%d child=%d want 100,0", local, child)
	}
}

func sheetTotals(s *SupplySheet) (local, child uint64, err error) {
	if local, err = s.LocalBalance(); err != nil {
		return 0, 0, err
	}
	if child, err = s.ChildBalance(); err != nil {
		return 0, 0, err
	}
	return local, child, nil
}

func TestSupplySheetDelegateDownKeepsTotalUnderCap(t *testing.T) {
	store := NewStorageContext(AddressFromName("chain"), "data", NewVolatileBackend())
	sheet := NewSupplySheet(store, "CAP", 100)

	if err := sheet.MintLocal(100); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := sheet.delegateDown(30); err != nil {
		t.Fatalf("delegate down: %v", err)
	}
	local, child, err := sheetTotals(sheet)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if local != 70 || child != 30 {
		t.Fatalf("local=%d child=%d want 70,30", local, child)
	}
	if local+child != 100 {
		t.Fatalf("local+child=%d must equal max supply 100", local+child)
	}

	if err := sheet.reclaimUp(30); err != nil {
		t.Fatalf("reclaim up: %v", err)
	}
	local, child, err = sheetTotals(sheet)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if local != 100 || child != 0 {
		t.Fatalf("after reclaim local=%d child=%d want 100,0", local, child)
	}
}

//-------------------------------------------------------------
// OwnershipSheet: forward/inverse sync
//-------------------------------------------------------------

func TestOwnershipSheetMintTransferBurn(t *testing.T) {
	store := NewStorageContext(AddressFromName("chain"), "data", NewVolatileBackend())
	sheet := NewOwnershipSheet(store, "NFT")

	alice := AddressFromName("alice")
	bob := AddressFromName("bob")

	if err := sheet.Mint(alice, "token-1"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := sheet.Mint(alice, "token-1"); err == nil {
		t.Fatalf("minting an already-owned id should fail")
	}

	owner, ok, err := sheet.OwnerOf("token-1")
	if err != nil || !ok || owner != alice {
		t.Fatalf("owner=%v ok=%v err=%v want alice", owner, ok, err)
	}
	ids, err := sheet.IDsOf(alice)
	if err != nil || len(ids) != 1 || ids[0] != "token-1" {
		t.Fatalf("alice ids=%v err=%v want [token-1]", ids, err)
	}

	if err := sheet.Transfer(bob, "token-1"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if ids, _ := sheet.IDsOf(alice); len(ids) != 0 {
		t.Fatalf("alice should own nothing after transfer, has %v", ids)
	}
	if ids, _ := sheet.IDsOf(bob); len(ids) != 1 || ids[0] != "token-1" {
		t.Fatalf("bob ids=%v want [token-1]", ids)
	}

	if err := sheet.Burn("token-1"); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if _, ok, _ := sheet.OwnerOf("token-1"); ok {
		t.Fatalf("token-1 should have no owner after burn")
	}
	if ids, _ := sheet.IDsOf(bob); len(ids) != 0 {
		t.Fatalf("bob should own nothing after burn, has %v", ids)
	}
}
