package remote

import (
	"testing"
)

func TestBacklogEmptyDrain(t *testing.T) {
	rb := newBacklog(10)
	if got := rb.takeAll(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestBacklogPushAndDrain(t *testing.T) {
	rb := newBacklog(10)
	for i := 0; i < 5; i++ {
		rb.add(pending{key: KeySales, payload: []byte{byte(i)}})
	}

	got := rb.takeAll()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := 0; i < 5; i++ {
		if got[i].payload[0] != byte(i) {
			t.Errorf("item %d: expected payload %d, got %d", i, i, got[i].payload[0])
		}
	}

	if got2 := rb.takeAll(); got2 != nil {
		t.Errorf("expected nil from second drain, got %d items", len(got2))
	}
}

func TestBacklogOverflowKeepsNewest(t *testing.T) {
	size := 5
	rb := newBacklog(size)

	dropped := 0
	for i := 0; i < size+3; i++ {
		if rb.add(pending{key: KeySales, payload: []byte{byte(i)}}) {
			dropped++
		}
	}
	if dropped != 1 {
		t.Errorf("overflow should be reported once per drain cycle, got %d", dropped)
	}

	got := rb.takeAll()
	if len(got) != size {
		t.Fatalf("expected %d items, got %d", size, len(got))
	}
	for i := 0; i < size; i++ {
		want := byte(i + 3) // oldest 3 were dropped
		if got[i].payload[0] != want {
			t.Errorf("item %d: expected payload %d, got %d", i, want, got[i].payload[0])
		}
	}

	if rb.add(pending{key: KeySales}) {
		t.Error("overflow flag should reset after drain")
	}
	if rb.size() != 1 {
		t.Errorf("expected len 1, got %d", rb.size())
	}
}

func TestBacklogWrapAround(t *testing.T) {
	rb := newBacklog(3)
	rb.add(pending{payload: []byte{1}})
	rb.add(pending{payload: []byte{2}})
	rb.takeAll()

	for i := 3; i <= 6; i++ {
		rb.add(pending{payload: []byte{byte(i)}})
	}
	got := rb.takeAll()
	if len(got) != 3 || got[0].payload[0] != 4 || got[2].payload[0] != 6 {
		t.Errorf("unexpected drain after wrap: %v", got)
	}
}
