package bus

import "testing"

func TestFileLock_Exclusive(t *testing.T) {
	dir := t.TempDir()
	a := newFileLock(dir)
	b := newFileLock(dir)

	if err := a.Lock(); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	ok, err := b.TryLock()
	if err != nil {
		t.Fatalf("TryLock() error = %v", err)
	}
	if ok {
		t.Fatal("TryLock() succeeded while lock was held")
	}

	if err := a.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	ok, err = b.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock() after unlock = %v, %v", ok, err)
	}
	if err := b.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := b.Unlock(); err != nil {
		t.Errorf("second Unlock() error = %v", err)
	}
}
