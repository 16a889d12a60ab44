package devauth

import (
	"context"
	"strings"
	"testing"

	"github.com/target/waypoint/internal/ports"
)

func TestProvider_BeginAndExchange(t *testing.T) {
	prov, err := NewProvider(Config{UserID: "dev-user", Email: "dev@example.com", Groups: []string{"users"}})
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}
	url, state, nonce, err := prov.Begin(context.Background(), ports.BeginInput{RedirectURL: "/"})
	if err != nil {
		t.Fatalf("Begin error: %v", err)
	}
	if !strings.HasPrefix(url, "/auth/callback?") {
		t.Fatalf("unexpected authURL: %s", url)
	}
	if state == "" || nonce == "" {
		t.Fatal("state and nonce should be generated")
	}
	id, err := prov.Exchange(context.Background(), ports.ExchangeInput{Code: "dev", State: state, Nonce: nonce})
	if err != nil {
		t.Fatalf("Exchange error: %v", err)
	}
	if id.UserID != "dev-user" || id.Email != "dev@example.com" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestProvider_OrgClaim(t *testing.T) {
	prov, err := NewProvider(Config{UserID: "dev-user", Email: "dev@example.com", OrgID: "org-7"})
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}
	id, err := prov.Exchange(context.Background(), ports.ExchangeInput{})
	if err != nil {
		t.Fatalf("Exchange error: %v", err)
	}
	if id.Claims["org_id"] != "org-7" {
		t.Fatalf("expected org_id claim, got %v", id.Claims)
	}

	// Callers mutating the returned claims must not leak into later exchanges.
	id.Claims["org_id"] = "tampered"
	again, _ := prov.Exchange(context.Background(), ports.ExchangeInput{})
	if again.Claims["org_id"] != "org-7" {
		t.Fatalf("claims leaked between exchanges: %v", again.Claims)
	}

	noOrg, err := NewProvider(Config{UserID: "dev-user", Email: "dev@example.com"})
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}
	id, _ = noOrg.Exchange(context.Background(), ports.ExchangeInput{})
	if _, ok := id.Claims["org_id"]; ok {
		t.Fatalf("unexpected org_id claim: %v", id.Claims)
	}
}

func TestNewProvider_Validation(t *testing.T) {
	if _, err := NewProvider(Config{Email: "dev@example.com"}); err == nil {
		t.Fatal("expected error for missing UserID")
	}
	if _, err := NewProvider(Config{UserID: "dev-user"}); err == nil {
		t.Fatal("expected error for missing Email")
	}
}
