package lifecycle

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type stubComponent struct {
	name     string
	startErr error
	stopErr  error
	log      *[]string
	starts   int
	stops    int
}

func (c *stubComponent) Start(context.Context) error {
	c.starts++
	if c.log != nil {
		*c.log = append(*c.log, "start:"+c.name)
	}
	return c.startErr
}

func (c *stubComponent) Stop(context.Context) error {
	c.stops++
	if c.log != nil {
		*c.log = append(*c.log, "stop:"+c.name)
	}
	return c.stopErr
}

func TestRuntimeStopsInReverseOrder(t *testing.T) {
	t.Parallel()

	var events []string
	rt := NewRuntime(
		&stubComponent{name: "db", log: &events},
		&stubComponent{name: "sweeper", log: &events},
		&stubComponent{name: "poller", log: &events},
	)

	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rt.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []string{
		"start:db", "start:sweeper", "start:poller",
		"stop:poller", "stop:sweeper", "stop:db",
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
}

func TestRuntimeFailedStartRollsBack(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	first := &stubComponent{name: "first"}
	second := &stubComponent{name: "second", startErr: boom}
	third := &stubComponent{name: "third"}

	rt := NewRuntime(first, second, third)
	err := rt.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Start error = %v, want %v", err, boom)
	}

	if first.stops != 1 {
		t.Fatalf("first.stops = %d, want the started component rolled back", first.stops)
	}
	if second.stops != 0 || third.stops != 0 {
		t.Fatalf("stops = %d/%d, components that never started must not be stopped", second.stops, third.stops)
	}
	if third.starts != 0 {
		t.Fatal("components after the failure must not start")
	}
}

func TestRuntimeStopCollectsEveryError(t *testing.T) {
	t.Parallel()

	errA := errors.New("a wont stop")
	errB := errors.New("b wont stop")
	a := &stubComponent{name: "a", stopErr: errA}
	b := &stubComponent{name: "b", stopErr: errB}

	rt := NewRuntime(a, b)
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err := rt.Stop(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("Stop error = %v, want both component errors joined", err)
	}
	if a.stops != 1 || b.stops != 1 {
		t.Fatalf("stops = %d/%d, one failing Stop must not skip the rest", a.stops, b.stops)
	}
}

func TestRuntimeRegisterSkipsNil(t *testing.T) {
	t.Parallel()

	c := &stubComponent{name: "only"}
	rt := NewRuntime()
	rt.Register(nil)
	rt.Register(c)

	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rt.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c.starts != 1 || c.stops != 1 {
		t.Fatalf("component calls: start=%d stop=%d", c.starts, c.stops)
	}
}
