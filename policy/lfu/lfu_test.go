package lfu

import (
	"testing"

	"github.com/IvanBrykalov/guardcache/policy"
)

type testNode struct{ k string }

func (n *testNode) Key() string { return n.k }
func (n *testNode) Value() *int { return nil }

type nopHooks struct{}

func (nopHooks) MoveToFront(policy.Node[string, int]) {}
func (nopHooks) PushFront(policy.Node[string, int])   {}
func (nopHooks) Remove(policy.Node[string, int])      {}
func (nopHooks) Back() policy.Node[string, int]       { return nil }
func (nopHooks) Len() int                             { return 0 }
func (nopHooks) Cap() int                             { return -1 }

func newLFU() *lfu[string, int] {
	return New[string, int]().New(nopHooks{}).(*lfu[string, int])
}

// The least used node is the victim; ties go to the oldest.
func TestLFU_VictimIsLeastFrequent(t *testing.T) {
	t.Parallel()

	p := newLFU()
	a, b, c := &testNode{"a"}, &testNode{"b"}, &testNode{"c"}
	p.OnAdd(a)
	p.OnAdd(b)
	p.OnAdd(c)

	p.OnGet(a)
	p.OnGet(a)
	p.OnGet(c)

	if v := p.Victim(); v != b {
		t.Fatalf("victim must be b (freq 1), got %v", v)
	}

	p.OnRemove(b)
	if v := p.Victim(); v != c {
		t.Fatalf("victim must be c (freq 2), got %v", v)
	}

	p.OnRemove(c)
	p.OnRemove(a)
	if v := p.Victim(); v != nil {
		t.Fatalf("empty policy must have no victim, got %v", v)
	}
	if p.buckets.Len() != 0 {
		t.Fatalf("empty buckets must be dropped, have %d", p.buckets.Len())
	}
}

func TestLFU_TieBrokenByAge(t *testing.T) {
	t.Parallel()

	p := newLFU()
	old, young := &testNode{"old"}, &testNode{"young"}
	p.OnAdd(old)
	p.OnAdd(young)

	if v := p.Victim(); v != old {
		t.Fatalf("victim must be the oldest among equal frequencies, got %v", v)
	}
}

// A fresh admission lands in a freq-1 bucket in front of hotter buckets.
func TestLFU_AdmissionAfterPromotion(t *testing.T) {
	t.Parallel()

	p := newLFU()
	hot := &testNode{"hot"}
	p.OnAdd(hot)
	p.OnUpdate(hot)

	cold := &testNode{"cold"}
	p.OnAdd(cold)
	if v := p.Victim(); v != cold {
		t.Fatalf("victim must be the new cold node, got %v", v)
	}
	if f := p.buckets.Front().Value.(*bucket[string, int]).freq; f != 1 {
		t.Fatalf("front bucket must be freq 1, got %d", f)
	}
}
