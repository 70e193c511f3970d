package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"PledgePay/entity"
)

func TestSessionLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	session := entity.NewSession("263771234567", "donation", "amount")
	session.Set("name", "John Doe")
	if err := s.SaveSession(ctx, session); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := s.LoadSession(ctx, "263771234567")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil || loaded.Get("name") != "John Doe" {
		t.Fatalf("loaded = %+v", loaded)
	}

	// mutations of the loaded copy must not leak into the store
	loaded.Set("name", "Someone Else")
	again, _ := s.LoadSession(ctx, "263771234567")
	if again.Get("name") != "John Doe" {
		t.Error("loaded session shares data with the stored one")
	}

	if missing, _ := s.LoadSession(ctx, "263700000000"); missing != nil {
		t.Error("unknown phone must load as nil")
	}
}

func TestDeleteSessionReportsClaim(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	s.SaveSession(ctx, entity.NewSession("263771234567", "donation", "amount"))

	claimed, err := s.DeleteSession(ctx, "263771234567")
	if err != nil || !claimed {
		t.Fatalf("first delete = (%v, %v), want (true, nil)", claimed, err)
	}
	claimed, err = s.DeleteSession(ctx, "263771234567")
	if err != nil || claimed {
		t.Fatalf("second delete = (%v, %v), want (false, nil)", claimed, err)
	}
}

func TestDeleteSessionClaimIsExclusive(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	s.SaveSession(ctx, entity.NewSession("263771234567", "donation", "amount"))

	const racers = 16
	var wg sync.WaitGroup
	claims := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, _ := s.DeleteSession(ctx, "263771234567")
			claims <- claimed
		}()
	}
	wg.Wait()
	close(claims)

	won := 0
	for claimed := range claims {
		if claimed {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("%d racers claimed the session, want exactly 1", won)
	}
}

func TestUpdateSessionOnlyWritesExisting(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	// absent phone: update is a no-op, never a create
	ghost := entity.NewSession("263700000000", "donation", "amount")
	if err := s.UpdateSession(ctx, ghost); err != nil {
		t.Fatalf("update absent: %v", err)
	}
	if loaded, _ := s.LoadSession(ctx, "263700000000"); loaded != nil {
		t.Fatal("update of an absent session must not create one")
	}

	session := entity.NewSession("263771234567", "donation", "amount")
	s.SaveSession(ctx, session)
	session.Set("name", "John Doe")
	if err := s.UpdateSession(ctx, session); err != nil {
		t.Fatalf("update existing: %v", err)
	}
	loaded, _ := s.LoadSession(ctx, "263771234567")
	if loaded == nil || loaded.Get("name") != "John Doe" {
		t.Fatalf("loaded = %+v, want updated data", loaded)
	}
}

func TestSaveSessionClearsWarned(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	session := entity.NewSession("263771234567", "donation", "amount")
	s.SaveSession(ctx, session)
	s.MarkSessionWarned(ctx, "263771234567")

	loaded, _ := s.LoadSession(ctx, "263771234567")
	if !loaded.Warned {
		t.Fatal("warned flag not set")
	}

	s.SaveSession(ctx, loaded)
	loaded, _ = s.LoadSession(ctx, "263771234567")
	if loaded.Warned {
		t.Error("activity must clear the warned flag")
	}
}

func TestDedupFilter(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if seen, _ := s.SeenMessage(ctx, "wamid.1"); seen {
		t.Fatal("fresh id reported as seen")
	}
	s.MarkMessageSeen(ctx, "wamid.1")
	if seen, _ := s.SeenMessage(ctx, "wamid.1"); !seen {
		t.Fatal("marked id not reported as seen")
	}

	// eviction with a zero window removes everything recorded so far
	time.Sleep(time.Millisecond)
	if err := s.EvictSeenMessages(ctx, 0); err != nil {
		t.Fatalf("evict: %v", err)
	}
	if seen, _ := s.SeenMessage(ctx, "wamid.1"); seen {
		t.Error("evicted id still reported as seen")
	}
}

func TestPaymentsSince(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now()

	s.AppendPayment(ctx, entity.PaymentRecord{Reference: "old", PaidAt: now.Add(-48 * time.Hour)})
	s.AppendPayment(ctx, entity.PaymentRecord{Reference: "new", PaidAt: now})

	recent, err := s.PaymentsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("payments since: %v", err)
	}
	if len(recent) != 1 || recent[0].Reference != "new" {
		t.Errorf("recent = %+v, want just the new record", recent)
	}
}

func TestCustomTypeApprovalFlow(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	s.AppendCustomType(ctx, entity.CustomType{Description: "Youth Camp", AddedBy: "263771234567"})

	// pending requests are invisible on the menu
	active, _ := s.ActiveCustomTypes(ctx)
	if len(active) != 0 {
		t.Fatalf("pending type already active: %+v", active)
	}

	// and survive pruning
	s.PruneExpiredCustomTypes(ctx)
	n, err := s.ApproveCustomTypes(ctx, "263771234567", "263700000000", nil)
	if err != nil || n != 1 {
		t.Fatalf("approve = (%d, %v), want (1, nil)", n, err)
	}

	active, _ = s.ActiveCustomTypes(ctx)
	if len(active) != 1 || active[0].Description != "Youth Camp" {
		t.Fatalf("active = %+v, want the approved type", active)
	}

	// re-approving the same requester is a no-op
	if n, _ := s.ApproveCustomTypes(ctx, "263771234567", "263700000000", nil); n != 0 {
		t.Errorf("second approval touched %d types, want 0", n)
	}
}

func TestPruneExpiredCustomTypes(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	s.AppendCustomType(ctx, entity.CustomType{
		Description: "Lapsed", AddedBy: "a", ApprovedOn: time.Now().Add(-2 * time.Hour), Expires: &past,
	})
	s.AppendCustomType(ctx, entity.CustomType{
		Description: "Current", AddedBy: "b", ApprovedOn: time.Now(), Expires: &future,
	})
	s.AppendCustomType(ctx, entity.CustomType{
		Description: "Evergreen", AddedBy: "c", ApprovedOn: time.Now(),
	})

	if err := s.PruneExpiredCustomTypes(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	active, _ := s.ActiveCustomTypes(ctx)
	if len(active) != 2 {
		t.Fatalf("active after prune = %+v, want Current and Evergreen", active)
	}
	for _, tp := range active {
		if tp.Description == "Lapsed" {
			t.Error("expired type survived pruning")
		}
	}
}

func TestSaveVolunteerStampsCreation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	s.SaveVolunteer(ctx, entity.Volunteer{Phone: "263771234567", Name: "Jane"})

	v, ok := s.Volunteer("263771234567")
	if !ok {
		t.Fatal("volunteer not stored")
	}
	if v.CreatedAt.IsZero() {
		t.Error("created-at not stamped")
	}
}
