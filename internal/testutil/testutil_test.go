package testutil

import (
	"slices"
	"testing"
	"time"

	"github.com/Iron-Ham/arbiter/internal/resource"
)

func TestScarceResource_Exclusion(t *testing.T) {
	r := NewScarceResource()

	if !r.TryExclusiveLock("a") {
		t.Fatal("first exclusive lock should succeed")
	}
	if r.TryExclusiveLock("b") || r.TrySharedLock("b") {
		t.Fatal("resource held exclusively must refuse other owners")
	}
	if r.Refused() != 2 {
		t.Errorf("Refused() = %d, want 2", r.Refused())
	}

	if !r.TrySharedLock("a") {
		t.Fatal("exclusive owner should downgrade to shared")
	}
	if r.ExclusiveOwner() != "" {
		t.Error("downgrade must clear the exclusive owner")
	}
	if !r.TrySharedLock("b") {
		t.Fatal("shared locks should coexist")
	}
	if got := r.SharedOwners(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("SharedOwners() = %v", got)
	}
	if r.TryExclusiveLock("a") {
		t.Error("upgrade must fail while another owner shares")
	}

	r.Unlock("b")
	if !r.TryExclusiveLock("a") {
		t.Error("sole shared owner should upgrade")
	}
	r.Unlock("a")
	if r.ExclusiveOwner() != "" || len(r.SharedOwners()) != 0 {
		t.Error("Unlock should release everything")
	}
}

func TestPolicyDelegate(t *testing.T) {
	r := NewScarceResource()
	d := NewPolicyDelegate("host", r)

	var got []resource.Result
	done := func(res resource.Result) { got = append(got, res) }

	d.SetApplicationAccess(resource.AccessBlocking, nil, done)
	if r.ExclusiveOwner() != "host" {
		t.Fatal("self change should lock the resource")
	}

	peer := resource.NewUser(200, true)
	peer.AccessPressure = resource.PressureNone
	d.SetPolicy(resource.YieldByPressure)
	d.SetApplicationAccess(resource.AccessNone, peer, done)
	if r.ExclusiveOwner() != "host" {
		t.Error("a denied request must not change the resource")
	}

	d.SetPolicy(resource.YieldAlways)
	d.Hold()
	d.SetApplicationAccess(resource.AccessNone, peer, done)
	if len(got) != 2 {
		t.Fatalf("held completion delivered early: %v", got)
	}
	d.Release()

	want := []resource.Result{resource.ResultSuccess, resource.ResultDeny, resource.ResultSuccess}
	if !slices.Equal(got, want) {
		t.Errorf("results = %v, want %v", got, want)
	}
	calls := d.Calls()
	if len(calls) != 3 || calls[0].RequestedBy != 0 || calls[2].RequestedBy != 200 {
		t.Errorf("calls = %+v", calls)
	}

	other := NewPolicyDelegate("other", r)
	other.SetApplicationAccess(resource.AccessBlocking, nil, done)
	other.SetApplicationAccess(resource.AccessShared, nil, done)
	if got[len(got)-1] != resource.ResultSuccess || got[len(got)-2] != resource.ResultSuccess {
		t.Errorf("free resource should be lockable: %v", got)
	}
}

func TestEventually(t *testing.T) {
	start := time.Now()
	Eventually(t, time.Second, func() bool { return time.Since(start) > 20*time.Millisecond }, "clock")
	Never(t, 20*time.Millisecond, func() bool { return false }, "never")
}
