package stereo

import (
	"errors"
	"sync"
	"testing"
)

func TestClampOffset(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{5, 10},
		{500, 100},
		{50, 50},
		{10, 10},
		{100, 100},
		{-3, 10},
	}

	for _, tc := range cases {
		if got := ClampOffset(tc.in); got != tc.want {
			t.Errorf("ClampOffset(%d) = %d; want %d", tc.in, got, tc.want)
		}
	}
}

func TestStoreSetOffsetClamps(t *testing.T) {
	s := NewStore(DefaultMode, DefaultOffset)

	s.SetOffset(5)
	if got := s.Snapshot().Offset; got != 10 {
		t.Errorf("offset after SetOffset(5) = %d; want 10", got)
	}
	s.SetOffset(500)
	if got := s.Snapshot().Offset; got != 100 {
		t.Errorf("offset after SetOffset(500) = %d; want 100", got)
	}
	s.SetOffset(50)
	if got := s.Snapshot().Offset; got != 50 {
		t.Errorf("offset after SetOffset(50) = %d; want 50", got)
	}
}

func TestStoreRejectsInvalidMode(t *testing.T) {
	s := NewStore(AnaglyphRedCyan, 42)

	if err := s.SetMode(Mode(99)); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("SetMode(99) = %v; want ErrInvalidParameter", err)
	}
	if err := s.SetModeName("invalid"); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("SetModeName(invalid) = %v; want ErrInvalidParameter", err)
	}

	got := s.Snapshot()
	if got.Mode != AnaglyphRedCyan || got.Offset != 42 {
		t.Errorf("store changed after rejected update: %+v", got)
	}
}

func TestStoreLastWriteWins(t *testing.T) {
	s := NewStore(DefaultMode, DefaultOffset)
	for _, o := range []int{20, 80, 33} {
		s.SetOffset(o)
	}
	if got := s.Snapshot().Offset; got != 33 {
		t.Errorf("offset = %d; want 33 (last write)", got)
	}
}

func TestStoreDefaultsFromBadInit(t *testing.T) {
	s := NewStore(Mode(99), 7)
	got := s.Snapshot()
	if got.Mode != DefaultMode {
		t.Errorf("mode = %v; want default", got.Mode)
	}
	if got.Offset != 10 {
		t.Errorf("offset = %d; want clamped 10", got.Offset)
	}
}

// TestStoreSnapshotNeverTorn updates both fields in lockstep from one
// goroutine while another takes snapshots; a torn read would surface as a
// mode/offset pair that was never written together.
func TestStoreSnapshotNeverTorn(t *testing.T) {
	s := NewStore(SideBySideParallel, 10)

	// Written pairs: (Parallel, 10) and (CrossEye, 100) only.
	writePair := func(mode Mode, offset int) {
		s.mu.Lock()
		s.params = Params{Mode: mode, Offset: offset}
		s.mu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			if i%2 == 0 {
				writePair(SideBySideParallel, 10)
			} else {
				writePair(SideBySideCrossEye, 100)
			}
		}
	}()

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5000; i++ {
				p := s.Snapshot()
				okA := p.Mode == SideBySideParallel && p.Offset == 10
				okB := p.Mode == SideBySideCrossEye && p.Offset == 100
				if !okA && !okB {
					t.Errorf("torn snapshot: %+v", p)
					return
				}
			}
		}()
	}

	<-done
	wg.Wait()
}
