package kvcache

import (
	"context"
	"testing"
)

func TestSQLiteRoundTrip(t *testing.T) {
	c, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if _, err := c.Get(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := c.Set(ctx, "addressable/abc/30000/team-members", []byte("payload")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := c.Get(ctx, "addressable/abc/30000/team-members")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "payload" {
		t.Fatalf("got %q", v)
	}

	if err := c.Set(ctx, "addressable/abc/30000/team-members", []byte("updated")); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, _ = c.Get(ctx, "addressable/abc/30000/team-members")
	if string(v) != "updated" {
		t.Fatalf("overwrite failed, got %q", v)
	}

	if err := c.Delete(ctx, "addressable/abc/30000/team-members"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "addressable/abc/30000/team-members"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSQLiteScanPrefix(t *testing.T) {
	c, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "members/team-a", []byte("1"))
	_ = c.Set(ctx, "members/team-b", []byte("2"))
	_ = c.Set(ctx, "teams/discovered", []byte("3"))

	got, err := c.Scan(ctx, "members/")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 members/* keys, got %d: %v", len(got), got)
	}
}
