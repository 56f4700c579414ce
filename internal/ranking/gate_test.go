package ranking

import (
	"context"
	"testing"
	"time"
)

func TestGateStartsAlive(t *testing.T) {
	g := NewGate()
	if !g.Alive() {
		t.Error("new gate should be alive")
	}
}

func TestGateMarkDeadIsPermanent(t *testing.T) {
	g := NewGate()
	g.MarkDead()
	if g.Alive() {
		t.Error("gate should be dead after MarkDead")
	}
	g.MarkDead() // second call is a no-op
	if g.Alive() {
		t.Error("gate must never turn alive again")
	}
}

func TestWaitPreChecksBlocksUntilFinished(t *testing.T) {
	g := NewGate()

	done := make(chan error, 1)
	go func() { done <- g.WaitPreChecks(context.Background()) }()

	select {
	case <-done:
		t.Fatal("WaitPreChecks returned before FinishPreChecks")
	case <-time.After(20 * time.Millisecond):
	}

	g.FinishPreChecks()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitPreChecks returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitPreChecks did not return after FinishPreChecks")
	}
}

func TestWaitPreChecksHonorsContext(t *testing.T) {
	g := NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := g.WaitPreChecks(ctx); err == nil {
		t.Error("WaitPreChecks should return the context error")
	}
}

func TestFinishPreChecksIdempotent(t *testing.T) {
	g := NewGate()
	g.FinishPreChecks()
	g.FinishPreChecks() // must not panic on double close

	if err := g.WaitPreChecks(context.Background()); err != nil {
		t.Errorf("WaitPreChecks returned %v after finish, want nil", err)
	}
}
