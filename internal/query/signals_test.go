package query

import (
	"context"
	"sync"
	"testing"
	"time"
)

func Test_Latch_SetOnce(t *testing.T) {
	t.Parallel()
	l := NewLatch()
	if l.IsSet() {
		t.Fatal("new latch must start unset")
	}
	l.Set()
	l.Set() // second call must be a no-op, not a panic
	if !l.IsSet() {
		t.Fatal("latch must be set after Set")
	}
	select {
	case <-l.Done():
	default:
		t.Fatal("Done channel must be closed after Set")
	}
}

func Test_Latch_ConcurrentSet(t *testing.T) {
	t.Parallel()
	l := NewLatch()
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Set()
		}()
	}
	wg.Wait()
	if !l.IsSet() {
		t.Fatal("latch must be set")
	}
}

func Test_ResultLatch_WaitResolved(t *testing.T) {
	t.Parallel()
	r := NewResultLatch()
	r.Resolve(true)

	outcome, ok := r.Wait(context.Background(), time.Second)
	if !ok {
		t.Fatal("Wait must report ok for a resolved latch")
	}
	if !outcome {
		t.Fatal("outcome must be true")
	}
}

func Test_ResultLatch_WaitTimeout(t *testing.T) {
	t.Parallel()
	r := NewResultLatch()

	outcome, ok := r.Wait(context.Background(), 10*time.Millisecond)
	if ok {
		t.Fatal("Wait must time out on an unresolved latch")
	}
	if outcome {
		t.Fatal("timed-out Wait must not report a positive outcome")
	}
}

func Test_ResultLatch_FirstResolveWins(t *testing.T) {
	t.Parallel()
	r := NewResultLatch()
	r.Resolve(false)
	r.Resolve(true) // must not overwrite

	outcome, ok := r.Wait(context.Background(), time.Second)
	if !ok || outcome {
		t.Fatalf("want outcome=false ok=true, got outcome=%v ok=%v", outcome, ok)
	}
}

func Test_Signals_ConnectionMonotonic(t *testing.T) {
	t.Parallel()
	s := NewSignals()
	if !s.ConnectionAlive() {
		t.Fatal("connection must start alive")
	}
	s.ConnectionLost()
	if s.ConnectionAlive() {
		t.Fatal("connection must stay lost once cleared")
	}
}

func Test_Context_EffectiveQuery(t *testing.T) {
	t.Parallel()
	q := &Context{Query: "pasta recipes"}
	if got := q.EffectiveQuery(); got != "pasta recipes" {
		t.Errorf("EffectiveQuery = %q, want raw query", got)
	}
	q.DecontextualizedQuery = "vegetarian pasta recipes"
	if got := q.EffectiveQuery(); got != "vegetarian pasta recipes" {
		t.Errorf("EffectiveQuery = %q, want decontextualized form", got)
	}
}
