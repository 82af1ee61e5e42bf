package events

import "testing"

func TestEmitterDelivers(t *testing.T) {
	e := NewEmitter()
	var got []EventType
	e.Subscribe(EventRewardsClaimed, func(ev Event) { got = append(got, ev.Type) })
	e.SubscribeAll(func(ev Event) { got = append(got, "all:"+ev.Type) })

	e.Emit(Event{Type: EventRewardsClaimed})
	e.Emit(Event{Type: EventPoolFunded})

	want := []EventType{EventRewardsClaimed, "all:" + EventRewardsClaimed, "all:" + EventPoolFunded}
	if len(got) != len(want) {
		t.Fatalf("delivered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestEmitterRecoversPanics(t *testing.T) {
	e := NewEmitter()
	delivered := false
	e.Subscribe(EventSessionStarted, func(Event) { panic("boom") })
	e.Subscribe(EventSessionStarted, func(Event) { delivered = true })

	e.Emit(Event{Type: EventSessionStarted})
	if !delivered {
		t.Error("a panicking handler must not block later handlers")
	}
}
