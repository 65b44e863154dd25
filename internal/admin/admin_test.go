package admin

import (
	"sync"
	"testing"

	"github.com/cordonlabs/cordon/internal/authmode"
	gwerrors "github.com/cordonlabs/cordon/internal/errors"
)

func TestIsAdminFederatedStaticList(t *testing.T) {
	r := NewResolver([]string{"lead@example.com", "OPS@Example.com"}, false)

	if !r.IsAdmin("lead@example.com", authmode.Federated) {
		t.Error("allow-listed identity must be admin in federated mode")
	}
	if !r.IsAdmin(" Ops@example.COM ", authmode.Federated) {
		t.Error("membership check must normalize the identity")
	}
	if r.IsAdmin("guest@example.com", authmode.Federated) {
		t.Error("unlisted identity must not be admin")
	}
	// The static list never applies in self-service mode.
	if r.IsAdmin("lead@example.com", authmode.SelfService) {
		t.Error("static allow-list must not leak into self-service mode")
	}
}

func TestIsAdminDisabledMode(t *testing.T) {
	r := NewResolver([]string{"lead@example.com"}, false)
	if r.IsAdmin("lead@example.com", authmode.Disabled) {
		t.Error("disabled mode has no administrators")
	}
}

func TestGrantSelfIdempotent(t *testing.T) {
	r := NewResolver(nil, false)

	changed, err := r.GrantSelf("demo@example.com", authmode.SelfService)
	if err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if !changed {
		t.Error("first grant must report a change")
	}

	changed, err = r.GrantSelf("demo@example.com", authmode.SelfService)
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}
	if changed {
		t.Error("second grant must report no change")
	}

	if !r.IsAdmin("demo@example.com", authmode.SelfService) {
		t.Error("granted identity must be admin in self-service mode")
	}
}

func TestGrantSelfRejectedInProduction(t *testing.T) {
	r := NewResolver(nil, true)

	// Rejected even with a (mis)resolved self-service mode: the resolver
	// performs its own production check.
	_, err := r.GrantSelf("demo@example.com", authmode.SelfService)
	if err != gwerrors.ErrNotFound {
		t.Fatalf("expected not-found in production, got %v", err)
	}
	if r.IsAdmin("demo@example.com", authmode.SelfService) {
		t.Error("no grant may be recorded in production")
	}
}

func TestGrantSelfRejectedOutsideSelfService(t *testing.T) {
	r := NewResolver(nil, false)

	for _, mode := range []authmode.Mode{authmode.Federated, authmode.Disabled} {
		if _, err := r.GrantSelf("demo@example.com", mode); err != gwerrors.ErrNotFound {
			t.Errorf("mode %v: expected not-found, got %v", mode, err)
		}
	}
}

func TestGrantSelfRejectsEmptyIdentity(t *testing.T) {
	r := NewResolver(nil, false)
	if _, err := r.GrantSelf("   ", authmode.SelfService); err != gwerrors.ErrInvalidRequest {
		t.Errorf("expected invalid request, got %v", err)
	}
}

func TestGrantsSortedWithProvenance(t *testing.T) {
	r := NewResolver(nil, false)
	r.GrantSelf("zed@example.com", authmode.SelfService)
	r.GrantSelf("amy@example.com", authmode.SelfService)

	grants := r.Grants()
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(grants))
	}
	if grants[0].Email != "amy@example.com" || grants[1].Email != "zed@example.com" {
		t.Errorf("grants must be sorted by email: %v", grants)
	}
	if grants[0].GrantedAt.IsZero() || grants[0].GrantedBy == "" {
		t.Error("grants must carry provenance")
	}
}

func TestSetAllowlistHotReload(t *testing.T) {
	r := NewResolver([]string{"old@example.com"}, false)
	r.GrantSelf("demo@example.com", authmode.SelfService)

	r.SetAllowlist([]string{"new@example.com"})

	if r.IsAdmin("old@example.com", authmode.Federated) {
		t.Error("removed allow-list entry must lose admin")
	}
	if !r.IsAdmin("new@example.com", authmode.Federated) {
		t.Error("added allow-list entry must gain admin")
	}
	if !r.IsAdmin("demo@example.com", authmode.SelfService) {
		t.Error("self-grants must survive an allow-list reload")
	}
}

func TestGrantSelfConcurrent(t *testing.T) {
	r := NewResolver(nil, false)

	var wg sync.WaitGroup
	changes := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := r.GrantSelf("demo@example.com", authmode.SelfService)
			if err != nil {
				t.Errorf("GrantSelf: %v", err)
				return
			}
			changes <- changed
		}()
	}
	wg.Wait()
	close(changes)

	changedCount := 0
	for c := range changes {
		if c {
			changedCount++
		}
	}
	if changedCount != 1 {
		t.Errorf("exactly one concurrent grant must report a change, got %d", changedCount)
	}
}
