package clock

import (
	"testing"
	"time"
)

func TestOneShotFiresOnce(t *testing.T) {
	tm := NewOneShot(5 * time.Millisecond)
	select {
	case <-tm.C:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("one-shot timer never fired")
	}
}

func TestPeriodicFiresRepeatedly(t *testing.T) {
	tm := NewPeriodic(5 * time.Millisecond)
	defer tm.Stop()

	for i := 0; i < 3; i++ {
		select {
		case <-tm.C:
		case <-time.After(200 * time.Millisecond):
			t.Fatalf("periodic timer did not fire tick %d", i)
		}
	}
}

func TestStopIsIdempotentAndSuppressesFurtherFires(t *testing.T) {
	tm := NewPeriodic(5 * time.Millisecond)
	tm.Stop()
	tm.Stop() // must not panic

	select {
	case <-tm.C:
		// A single already-in-flight tick may still be buffered; that is
		// acceptable per the "drop by convention" rule, the owner simply
		// must not keep reading. A second read must never arrive.
	case <-time.After(20 * time.Millisecond):
	}

	select {
	case <-tm.C:
		t.Fatal("stopped periodic timer fired again")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestResetToChangesInterval(t *testing.T) {
	tm := NewOneShot(50 * time.Millisecond)
	tm.Stop()
	tm.ResetTo(5 * time.Millisecond)

	select {
	case <-tm.C:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timer did not fire at new interval")
	}
}
