package listener

import (
	"reflect"
	"testing"
)

func TestRegistryLookupAndNames(t *testing.T) {
	registry := NewRegistry()
	token, vault := &fakeContract{}, &fakeContract{}
	registry.Register("Vault", vault)
	registry.Register("Token", token)

	if got, ok := registry.Lookup("Token"); !ok || got != token {
		t.Fatalf("lookup Token: %v %v", got, ok)
	}
	if _, ok := registry.Lookup("Missing"); ok {
		t.Fatalf("lookup of unknown name succeeded")
	}
	if names := registry.Names(); !reflect.DeepEqual(names, []string{"Token", "Vault"}) {
		t.Fatalf("names mismatch: %v", names)
	}

	var empty *Registry
	if _, ok := empty.Lookup("Token"); ok {
		t.Fatalf("nil registry lookup succeeded")
	}
	if names := empty.Names(); names != nil {
		t.Fatalf("nil registry names: %v", names)
	}
}
