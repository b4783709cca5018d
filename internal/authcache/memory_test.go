package authcache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_AccessRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	payload := AccessPayload{UID: 7, Session: "sess-1", Roles: []string{"CUSTOMER"}}

	if err := s.PutAccess(ctx, "jti-1", payload, time.Minute); err != nil {
		t.Fatalf("PutAccess: %v", err)
	}
	got, ok, err := s.GetAccess(ctx, "jti-1")
	if err != nil || !ok {
		t.Fatalf("GetAccess: ok=%v err=%v", ok, err)
	}
	if got.UID != 7 || got.Session != "sess-1" || len(got.Roles) != 1 {
		t.Errorf("payload = %+v, want %+v", got, payload)
	}

	if err := s.DeleteAccess(ctx, "jti-1"); err != nil {
		t.Fatalf("DeleteAccess: %v", err)
	}
	if _, ok, _ := s.GetAccess(ctx, "jti-1"); ok {
		t.Error("GetAccess after delete should report absent")
	}
}

func TestMemoryStore_AccessExpiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	s.nowF = func() time.Time { return now }
	ctx := context.Background()

	if err := s.PutAccess(ctx, "jti-1", AccessPayload{UID: 1}, time.Minute); err != nil {
		t.Fatalf("PutAccess: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := s.GetAccess(ctx, "jti-1"); ok {
		t.Error("GetAccess after TTL should report absent")
	}
}

func TestMemoryStore_ConsumeCodeOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.PutCode(ctx, NamespaceVerify, "code-1", "a@x.com", time.Minute); err != nil {
		t.Fatalf("PutCode: %v", err)
	}

	email, ok, err := s.ConsumeCode(ctx, NamespaceVerify, "code-1")
	if err != nil || !ok {
		t.Fatalf("ConsumeCode: ok=%v err=%v", ok, err)
	}
	if email != "a@x.com" {
		t.Errorf("email = %q, want a@x.com", email)
	}

	if _, ok, _ := s.ConsumeCode(ctx, NamespaceVerify, "code-1"); ok {
		t.Error("second ConsumeCode with the same code should fail")
	}
}

func TestMemoryStore_CodeNamespacesAreDistinct(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.PutCode(ctx, NamespaceVerify, "code-1", "a@x.com", time.Minute); err != nil {
		t.Fatalf("PutCode: %v", err)
	}
	if _, ok, _ := s.ConsumeCode(ctx, NamespaceReset, "code-1"); ok {
		t.Error("a verify code must not be consumable as a reset code")
	}
	if _, ok, _ := s.ConsumeCode(ctx, NamespaceVerify, "code-1"); !ok {
		t.Error("verify code should still be live in its own namespace")
	}
}

func TestMemoryStore_ConsumeExpiredCode(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	s.nowF = func() time.Time { return now }
	ctx := context.Background()

	if err := s.PutCode(ctx, NamespaceReset, "code-1", "a@x.com", time.Minute); err != nil {
		t.Fatalf("PutCode: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := s.ConsumeCode(ctx, NamespaceReset, "code-1"); ok {
		t.Error("ConsumeCode after TTL should fail")
	}
}
