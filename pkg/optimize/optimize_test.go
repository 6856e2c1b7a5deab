package optimize

import (
	"testing"
)

func TestBytePool(t *testing.T) {
	pool := NewBytePool(1500)

	buf := pool.Get()
	if len(buf) != 1500 {
		t.Errorf("expected buffer size 1500, got %d", len(buf))
	}

	pool.Put(buf[:10])

	buf2 := pool.Get()
	if len(buf2) != 1500 {
		t.Errorf("expected buffer size 1500, got %d", len(buf2))
	}
	if pool.Size() != 1500 {
		t.Errorf("expected pool size 1500, got %d", pool.Size())
	}
}

func TestBytePool_DropsShortSlices(t *testing.T) {
	pool := NewBytePool(64)

	pool.Put(make([]byte, 8))
	for i := 0; i < 4; i++ {
		if got := len(pool.Get()); got != 64 {
			t.Fatalf("expected buffer size 64, got %d", got)
		}
	}
}
