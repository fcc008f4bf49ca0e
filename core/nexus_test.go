package core

import "testing"

func newRegisteredNexus(t *testing.T, rootName string, validators []Address) (*Nexus, *Chain) {
	t.Helper()
	root, err := NewChain(rootName, AddressFromName(rootName), NewVolatileBackend(), t.TempDir(), validators)
	if err != nil {
		t.Fatalf("new root chain: %v", err)
	}
	nexus := NewNexus(root, validators)
	root.SetNexus(nexus)
	return nexus, root
}

//-------------------------------------------------------------
// Chain registry
//-------------------------------------------------------------

func TestNexusRegistersAndLooksUpChains(t *testing.T) {
	validators := []Address{AddressFromName("validator-0")}
	nexus, root := newRegisteredNexus(t, "root_chain", validators)

	child, err := root.CreateChild("child_chain", AddressFromName("child_chain"), t.TempDir(), validators)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if err := nexus.RegisterChain(child); err != nil {
		t.Fatalf("register child: %v", err)
	}
	if err := nexus.RegisterChain(child); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}

	if !nexus.ContainsChain("child_chain") {
		t.Fatalf("expected child_chain to be registered")
	}
	got, ok := nexus.GetChain("child_chain")
	if !ok || got != child {
		t.Fatalf("GetChain did not return the registered child")
	}
	if len(nexus.Chains()) != 2 {
		t.Fatalf("expected 2 registered chains, got %d", len(nexus.Chains()))
	}
}

//-------------------------------------------------------------
// Validator lookups
//-------------------------------------------------------------

func TestNexusValidatorLookups(t *testing.T) {
	v0, v1 := AddressFromName("v0"), AddressFromName("v1")
	nexus, _ := newRegisteredNexus(t, "root_chain", []Address{v0, v1})

	if n := nexus.GetValidatorCount(); n != 2 {
		t.Fatalf("validator count = %d want 2", n)
	}
	got, err := nexus.GetValidatorByIndex(1)
	if err != nil || got != v1 {
		t.Fatalf("GetValidatorByIndex(1) = %x, err=%v, want %x", got, err, v1)
	}
	if _, err := nexus.GetValidatorByIndex(5); err == nil {
		t.Fatalf("expected out-of-range index to fail")
	}
	idx, err := nexus.GetIndexOfValidator(v0)
	if err != nil || idx != 0 {
		t.Fatalf("GetIndexOfValidator(v0) = %d, err=%v, want 0", idx, err)
	}
	if _, err := nexus.GetIndexOfValidator(AddressFromName("not-a-validator")); err == nil {
		t.Fatalf("expected lookup of a non-validator address to fail")
	}
}

//-------------------------------------------------------------
// Plugin hooks fire post-commit, in registration order
//-------------------------------------------------------------

func TestNexusPluginTriggerBlockFiresInOrder(t *testing.T) {
	nexus, root := newRegisteredNexus(t, "root_chain", []Address{AddressFromName("validator-0")})

	var order []string
	nexus.RegisterPlugin(PluginFunc(func(c *Chain, b *Block) { order = append(order, "first") }))
	nexus.RegisterPlugin(PluginFunc(func(c *Chain, b *Block) { order = append(order, "second") }))

	block := &Block{Height: 1, PrevHash: NullHash, Validator: AddressFromName("validator-0")}
	nexus.PluginTriggerBlock(root, block)

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("plugins fired out of registration order: %v", order)
	}
}

//-------------------------------------------------------------
// Cross-chain context loading
//-------------------------------------------------------------

func TestNexusLoadContextFindsRegisteredChain(t *testing.T) {
	validators := []Address{AddressFromName("validator-0")}
	nexus, root := newRegisteredNexus(t, "root_chain", validators)
	child, err := root.CreateChild("child_chain", AddressFromName("child_chain"), t.TempDir(), validators)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if err := nexus.RegisterChain(child); err != nil {
		t.Fatalf("register child: %v", err)
	}

	got, ok := nexus.LoadContext(child.Address)
	if !ok || got != child {
		t.Fatalf("LoadContext did not resolve the registered child chain")
	}
	if _, ok := nexus.LoadContext(AddressFromName("unregistered")); ok {
		t.Fatalf("expected LoadContext to miss for an unregistered address")
	}
}
