package modem

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestStateArm(t *testing.T) {
	b := newStateBox(nil)

	if err := b.Arm("http://a/1.bin"); err != nil {
		t.Fatal(err)
	}
	if err := b.Arm("http://a/2.bin"); !errors.Is(err, ErrUpgradeInProgress) {
		t.Fatalf("second Arm = %v, want ErrUpgradeInProgress", err)
	}

	b.Fail(PhaseFailed, "boom", nil)
	if err := b.Arm("http://a/2.bin"); err != nil {
		t.Fatalf("Arm after terminal = %v", err)
	}

	st := b.Snapshot()
	if st.Phase != PhaseIdle || st.URL != "http://a/2.bin" || st.Message != "" || st.ResultCode != nil {
		t.Errorf("re-armed state = %+v", st)
	}
}

func TestStateAdvanceIsMonotonic(t *testing.T) {
	b := newStateBox(nil)
	_ = b.Arm("u")

	if !b.Advance(PhaseNetworkCheck) {
		t.Fatal("advance to network_check refused")
	}
	if b.Advance(PhaseVersionCheck) {
		t.Error("moved backwards")
	}
	if b.Snapshot().Phase != PhaseNetworkCheck {
		t.Errorf("phase = %v", b.Snapshot().Phase)
	}

	b.Fail(PhaseFailed, "network", nil)
	if b.Advance(PhaseAwaitingCompletion) {
		t.Error("advanced out of terminal phase")
	}
	if b.Fail(PhaseTimedOut, "late", nil) {
		t.Error("terminal phase overwritten")
	}
}

func TestStateResolve(t *testing.T) {
	tests := []struct {
		name      string
		from      Phase
		code      int
		applied   bool
		wantPhase Phase
	}{
		{"success while awaiting", PhaseAwaitingCompletion, 0, true, PhaseSucceeded},
		{"failure while awaiting", PhaseAwaitingCompletion, 506, true, PhaseFailed},
		{"success racing the ack", PhaseTransferRequested, 0, true, PhaseSucceeded},
		{"ignored before transfer", PhaseNetworkCheck, 0, false, PhaseNetworkCheck},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newStateBox(nil)
			_ = b.Arm("u")
			b.Advance(tt.from)

			if got := b.Resolve(tt.code); got != tt.applied {
				t.Fatalf("Resolve = %v, want %v", got, tt.applied)
			}

			st := b.Snapshot()
			if st.Phase != tt.wantPhase {
				t.Errorf("phase = %v, want %v", st.Phase, tt.wantPhase)
			}
			if !tt.applied {
				if st.ResultCode != nil {
					t.Errorf("result code set: %d", *st.ResultCode)
				}
				return
			}
			if st.ResultCode == nil || *st.ResultCode != tt.code {
				t.Errorf("result code = %v, want %d", st.ResultCode, tt.code)
			}
			if st.Message != DescribeCode(tt.code) {
				t.Errorf("message = %q", st.Message)
			}
		})
	}
}

func TestStateNoteOnlyAfterTransfer(t *testing.T) {
	b := newStateBox(nil)
	_ = b.Arm("u")

	if b.Note(50, "early") {
		t.Error("note accepted before transfer")
	}

	b.Advance(PhaseAwaitingCompletion)
	if !b.Note(50, "upgrading") {
		t.Fatal("note refused while awaiting")
	}
	b.Note(-1, "")

	st := b.Snapshot()
	if st.Progress != 50 || st.Message != "upgrading" {
		t.Errorf("state = %+v", st)
	}
}

func TestStateSnapshotIsCopy(t *testing.T) {
	b := newStateBox(nil)
	_ = b.Arm("u")
	b.Advance(PhaseAwaitingCompletion)
	b.Resolve(505)

	st := b.Snapshot()
	*st.ResultCode = 0

	if again := b.Snapshot(); *again.ResultCode != 505 {
		t.Errorf("snapshot shares result code: %d", *again.ResultCode)
	}
}

func TestStateWait(t *testing.T) {
	b := newStateBox(nil)
	_ = b.Arm("u")
	b.Advance(PhaseAwaitingCompletion)

	time.AfterFunc(50*time.Millisecond, func() { b.Resolve(0) })

	st, err := b.Wait(context.Background(), time.Hour, func(s State) bool { return s.Phase.Terminal() })
	if err != nil {
		t.Fatal(err)
	}
	if st.Phase != PhaseSucceeded || st.Progress != 100 {
		t.Errorf("state = %+v", st)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = b.Wait(ctx, 10*time.Millisecond, func(State) bool { return false })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait err = %v", err)
	}
}

func TestStateNotify(t *testing.T) {
	var mu sync.Mutex
	var phases []Phase
	b := newStateBox(func(st State) {
		mu.Lock()
		phases = append(phases, st.Phase)
		mu.Unlock()
	})

	_ = b.Arm("u")
	b.Advance(PhaseVersionCheck)
	b.Advance(PhaseNetworkCheck)
	b.Fail(PhaseFailed, "network not registered: searching", nil)

	mu.Lock()
	defer mu.Unlock()
	want := []Phase{PhaseIdle, PhaseVersionCheck, PhaseNetworkCheck, PhaseFailed}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}
}

func TestStateAbort(t *testing.T) {
	b := newStateBox(nil)
	if b.Abort("disconnected") {
		t.Error("aborted an idle state")
	}
	if b.Snapshot().Phase != PhaseIdle {
		t.Errorf("phase = %v", b.Snapshot().Phase)
	}

	_ = b.Arm("u")
	b.Advance(PhaseAwaitingCompletion)
	if !b.Abort("disconnected") {
		t.Fatal("abort refused while armed")
	}
	st := b.Snapshot()
	if st.Phase != PhaseFailed || st.Message != "disconnected" || st.ResultCode != nil {
		t.Errorf("state = %+v", st)
	}
	if b.Abort("again") {
		t.Error("aborted a terminal state")
	}
}

func TestStateNotifyInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []State
	b := newStateBox(func(st State) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})

	_ = b.Arm("u")
	b.Advance(PhaseAwaitingCompletion)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for pct := i; pct < 100; pct += 4 {
				b.Note(pct, "")
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		b.Resolve(0)
	}()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		if seen[i].Seq != seen[i-1].Seq+1 {
			t.Fatalf("notification %d has seq %d after %d", i, seen[i].Seq, seen[i-1].Seq)
		}
	}
	if last := seen[len(seen)-1]; last.Phase != PhaseSucceeded || last.Seq != b.Snapshot().Seq {
		t.Errorf("last notified = %+v", last)
	}
}
