package deque

import (
	"sync"
	"testing"
)

func TestPushPopLIFO(t *testing.T) {
	d := New()
	d.Push(1)
	d.Push(2)
	d.Push(3)
	for _, want := range []int{3, 2, 1} {
		got, ok := d.Pop()
		if !ok || got.(int) != want {
			t.Fatalf("expected %d, got %v ok=%v", want, got, ok)
		}
	}
	if _, ok := d.Pop(); ok {
		t.Fatal("expected empty deque")
	}
}

func TestStealFIFOOrder(t *testing.T) {
	d := New()
	for i := 0; i < 5; i++ {
		d.Push(i)
	}
	for want := 0; want < 5; want++ {
		status, v := d.Steal()
		if status != Got || v.(int) != want {
			t.Fatalf("expected to steal %d, got status=%v v=%v", want, status, v)
		}
	}
	if status, _ := d.Steal(); status != Empty {
		t.Fatalf("expected empty after draining, got %v", status)
	}
}

func TestGrowRetainsElements(t *testing.T) {
	d := New()
	const n = 1000
	for i := 0; i < n; i++ {
		d.Push(i)
	}
	seen := make(map[int]bool, n)
	for i := 0; i < n; i++ {
		v, ok := d.Pop()
		if !ok {
			t.Fatalf("expected element at iteration %d", i)
		}
		seen[v.(int)] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct elements, got %d", n, len(seen))
	}
}

func TestConcurrentPushPopSteal(t *testing.T) {
	d := New()
	const n = 2000
	var wg sync.WaitGroup
	var stolen, popped int64
	var mu sync.Mutex
	total := make(map[int]int)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			d.Push(i)
			if v, ok := d.Pop(); ok {
				mu.Lock()
				total[v.(int)]++
				mu.Unlock()
				popped++
			}
		}
	}()

	for t := 0; t < 4; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				status, v := d.Steal()
				if status == Got {
					mu.Lock()
					total[v.(int)]++
					mu.Unlock()
					stolen++
				}
				if status == Empty && popped+stolen >= n {
					return
				}
			}
		}()
	}
	wg.Wait()

	for v, count := range total {
		if count > 1 {
			t.Fatalf("value %d observed %d times, want at most once", v, count)
		}
	}
}
