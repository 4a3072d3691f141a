package referral

import (
	"errors"
	"os"
	"testing"

	"github.com/lightbridge-exchange/lightbridge/internal/storage"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	dir, err := os.MkdirTemp("", "lightbridge-referral-test")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := storage.New(&storage.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewRegistry(store)
}

func TestAddIssuesCredentials(t *testing.T) {
	registry := newTestRegistry(t)

	creds, err := registry.Add("partner", 20, "03node")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	// 16 key bytes and 32 secret bytes, hex encoded.
	if len(creds.APIKey) != 32 {
		t.Errorf("APIKey length = %d, want 32", len(creds.APIKey))
	}
	if len(creds.APISecret) != 64 {
		t.Errorf("APISecret length = %d, want 64", len(creds.APISecret))
	}

	ref, err := registry.Get("partner")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ref.FeeShare != 20 || ref.RoutingNode != "03node" {
		t.Errorf("Get() = %+v", ref)
	}
	if ref.APIKey != creds.APIKey || ref.APISecret != creds.APISecret {
		t.Error("persisted credentials do not match issued ones")
	}
}

func TestAddValidation(t *testing.T) {
	registry := newTestRegistry(t)

	if _, err := registry.Add("", 20, ""); !errors.Is(err, ErrEmptyID) {
		t.Errorf("empty id error = %v, want ErrEmptyID", err)
	}
	if err := ErrEmptyID.Error(); err != "referral IDs cannot be empty" {
		t.Errorf("ErrEmptyID message = %q", err)
	}

	if _, err := registry.Add("partner", 101, ""); !errors.Is(err, ErrInvalidFeeShare) {
		t.Errorf("fee share error = %v, want ErrInvalidFeeShare", err)
	}

	// Boundary values are accepted.
	if _, err := registry.Add("zero", 0, ""); err != nil {
		t.Errorf("Add(feeShare=0) error = %v", err)
	}
	if _, err := registry.Add("full", 100, ""); err != nil {
		t.Errorf("Add(feeShare=100) error = %v", err)
	}
}

func TestAddDuplicates(t *testing.T) {
	registry := newTestRegistry(t)

	if _, err := registry.Add("partner", 20, "03node"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if _, err := registry.Add("partner", 10, ""); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("duplicate id error = %v, want ErrDuplicateID", err)
	}
	if _, err := registry.Add("other", 10, "03node"); !errors.Is(err, ErrDuplicateRouting) {
		t.Errorf("duplicate routing node error = %v, want ErrDuplicateRouting", err)
	}
}

func TestByRoutingNode(t *testing.T) {
	registry := newTestRegistry(t)

	if _, err := registry.Add("partner", 20, "03node"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	ref, err := registry.ByRoutingNode("03node")
	if err != nil {
		t.Fatalf("ByRoutingNode() error = %v", err)
	}
	if ref == nil || ref.ID != "partner" {
		t.Errorf("ByRoutingNode() = %+v, want partner", ref)
	}

	// Unknown routing nodes resolve to no referral, not an error.
	ref, err = registry.ByRoutingNode("02unknown")
	if err != nil {
		t.Fatalf("ByRoutingNode(unknown) error = %v", err)
	}
	if ref != nil {
		t.Errorf("ByRoutingNode(unknown) = %+v, want nil", ref)
	}
}
