package cell

import (
	"encoding/json"
	"math"
	"testing"
)

func TestWritableBasic(t *testing.T) {
	eng := NewEngine()
	count := NewIn(eng, 0)

	if count.Get() != 0 {
		t.Errorf("expected initial value 0, got %d", count.Get())
	}

	count.Set(5)
	if count.Get() != 5 {
		t.Errorf("expected value 5, got %d", count.Get())
	}
	if count.Peek() != 5 {
		t.Errorf("expected peek 5, got %d", count.Peek())
	}

	count.Update(func(n int) int { return n * 2 })
	if count.Get() != 10 {
		t.Errorf("expected value 10, got %d", count.Get())
	}

	count.Reset()
	if count.Get() != 0 {
		t.Errorf("expected reset to initial 0, got %d", count.Get())
	}
}

func TestSetReturnsValue(t *testing.T) {
	eng := NewEngine()
	name := NewIn(eng, "a")

	if got := name.Set("b"); got != "b" {
		t.Errorf("Set should return the stored value, got %q", got)
	}
	if got := name.Update(func(s string) string { return s + "c" }); got != "bc" {
		t.Errorf("Update should return the stored value, got %q", got)
	}
	if got := name.Reset(); got != "a" {
		t.Errorf("Reset should return the initial value, got %q", got)
	}
}

func TestSubscribeImmediateCall(t *testing.T) {
	eng := NewEngine()
	count := NewIn(eng, 42)

	var calls []int
	unsub := count.Subscribe(func(v int) { calls = append(calls, v) })
	defer unsub()

	if len(calls) != 1 || calls[0] != 42 {
		t.Fatalf("expected immediate call with 42, got %v", calls)
	}

	count.Set(43)
	if len(calls) != 2 || calls[1] != 43 {
		t.Errorf("expected notification with 43, got %v", calls)
	}
}

func TestObserveNoImmediateCall(t *testing.T) {
	eng := NewEngine()
	count := NewIn(eng, 42)

	var calls []int
	unsub := count.Observe(func(v int) { calls = append(calls, v) })
	defer unsub()

	if len(calls) != 0 {
		t.Fatalf("Observe must not call back immediately, got %v", calls)
	}

	count.Set(43)
	if len(calls) != 1 || calls[0] != 43 {
		t.Errorf("expected notification with 43, got %v", calls)
	}
}

func TestSameValueDoesNotNotify(t *testing.T) {
	eng := NewEngine()
	count := NewIn(eng, 1)

	notified := 0
	defer count.Observe(func(int) { notified++ })()

	count.Set(1)
	if notified != 0 {
		t.Errorf("setting the same value must not notify, got %d", notified)
	}

	count.Set(2)
	count.Set(2)
	if notified != 1 {
		t.Errorf("expected exactly 1 notification, got %d", notified)
	}
}

func TestWriteWhileUnobservedBaselines(t *testing.T) {
	eng := NewEngine()
	count := NewIn(eng, 1)

	// Written while nobody is listening: the value becomes the broadcast
	// baseline, so the first subscriber must not be told it "changed".
	count.Set(7)

	notified := 0
	var got int
	defer count.Subscribe(func(v int) {
		notified++
		got = v
	})()

	if notified != 1 || got != 7 {
		t.Fatalf("expected one immediate call with 7, got %d calls, value %d", notified, got)
	}

	count.Set(7)
	if notified != 1 {
		t.Errorf("no change since baseline, expected no extra notification, got %d", notified)
	}
	count.Set(8)
	if notified != 2 {
		t.Errorf("expected notification for 8, got %d calls", notified)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	eng := NewEngine()
	count := NewIn(eng, 0)

	notified := 0
	unsub := count.Observe(func(int) { notified++ })
	unsub()
	unsub()

	count.Set(1)
	if notified != 0 {
		t.Errorf("expected 0 notifications after unsubscribe, got %d", notified)
	}
}

func TestMultipleSubscribers(t *testing.T) {
	eng := NewEngine()
	count := NewIn(eng, 0)

	a, b := 0, 0
	defer count.Observe(func(int) { a++ })()
	defer count.Observe(func(int) { b++ })()

	count.Set(1)
	if a != 1 || b != 1 {
		t.Errorf("expected both subscribers notified once, got a=%d b=%d", a, b)
	}
}

func TestNaNIsNotAChange(t *testing.T) {
	eng := NewEngine()
	x := NewIn(eng, math.NaN())

	notified := 0
	defer x.Observe(func(float64) { notified++ })()

	x.Set(math.NaN())
	if notified != 0 {
		t.Errorf("NaN over NaN must not notify, got %d", notified)
	}

	x.Set(1.5)
	if notified != 1 {
		t.Errorf("expected 1 notification, got %d", notified)
	}
	x.Set(math.NaN())
	if notified != 2 {
		t.Errorf("expected 2 notifications, got %d", notified)
	}
}

func TestWithEqualsStructural(t *testing.T) {
	type point struct{ X, Y []int }
	eng := NewEngine()
	p := NewIn(eng, point{X: []int{1}}).WithEquals(func(old, new point) bool {
		return len(old.X) == len(new.X)
	})

	notified := 0
	defer p.Observe(func(point) { notified++ })()

	p.Set(point{X: []int{2}})
	if notified != 0 {
		t.Errorf("custom equality says unchanged, got %d notifications", notified)
	}
	p.Set(point{X: []int{1, 2}})
	if notified != 1 {
		t.Errorf("expected 1 notification, got %d", notified)
	}
}

func TestNonComparableDefaultAlwaysChanges(t *testing.T) {
	eng := NewEngine()
	xs := NewIn(eng, []int{1})

	notified := 0
	defer xs.Observe(func([]int) { notified++ })()

	// Identity-style default: non-comparable values always count as changed.
	xs.Set([]int{1})
	if notified != 1 {
		t.Errorf("expected slice write to notify, got %d", notified)
	}
}

func TestCellName(t *testing.T) {
	eng := NewEngine()
	w := NewIn(eng, 0).WithName("counter")
	if w.Name() != "counter" {
		t.Errorf("expected name %q, got %q", "counter", w.Name())
	}
	m := NewComputedIn(eng, func() int { return 1 }).WithName("derived")
	if m.Name() != "derived" {
		t.Errorf("expected name %q, got %q", "derived", m.Name())
	}
}

func TestMarshalJSON(t *testing.T) {
	eng := NewEngine()
	w := NewIn(eng, 3)
	m := NewComputedIn(eng, func() string { return "hi" })

	doc := struct {
		Count *Writable[int]    `json:"count"`
		Greet *Computed[string] `json:"greet"`
	}{w, m}

	out, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if string(out) != `{"count":3,"greet":"hi"}` {
		t.Errorf("unexpected JSON: %s", out)
	}
}

func TestDefaultEngineConstructors(t *testing.T) {
	w := New(1)
	if w.Engine() != Default() {
		t.Error("New should attach to the default engine")
	}
	m := NewComputed(func() int { return w.Get() + 1 })
	if m.Engine() != Default() {
		t.Error("NewComputed should attach to the default engine")
	}
	if m.Peek() != 2 {
		t.Errorf("expected 2, got %d", m.Peek())
	}
}
