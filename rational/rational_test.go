package rational

import "testing"

func TestNewReduces(t *testing.T) {
	t.Parallel()
	r := New(1000000000, 30)
	if r.Num != 100000000 || r.Den != 3 {
		t.Errorf("New(1e9, 30): got %v, want 100000000/3", r)
	}
}

func TestNewNormalizesSign(t *testing.T) {
	t.Parallel()
	r := New(1, -2)
	if r.Num != -1 || r.Den != 2 {
		t.Errorf("New(1, -2): got %v, want -1/2", r)
	}
}

func TestAddSameDenominator(t *testing.T) {
	t.Parallel()
	a := New(1, 3)
	b := New(1, 3)
	sum := a.Add(b)
	if sum.Num != 2 || sum.Den != 3 {
		t.Errorf("1/3 + 1/3: got %v, want 2/3", sum)
	}
}

func TestAddReduces(t *testing.T) {
	t.Parallel()
	sum := New(1, 6).Add(New(1, 3))
	if sum.Num != 1 || sum.Den != 2 {
		t.Errorf("1/6 + 1/3: got %v, want 1/2", sum)
	}
}

func TestAddZero(t *testing.T) {
	t.Parallel()
	r := New(7, 9)
	if got := r.Add(Zero); got != r {
		t.Errorf("r + 0: got %v, want %v", got, r)
	}
	if got := Zero.Add(r); got != r {
		t.Errorf("0 + r: got %v, want %v", got, r)
	}
}

// Accumulating a 1/30s frame duration 10,000 times must land exactly on
// 10000 × duration with no drift. This is the property float64 cannot give.
func TestAddNoDriftOverManyFrames(t *testing.T) {
	t.Parallel()
	duration := New(1000000000, 30) // one frame at 30fps, in ns

	ts := Zero
	for i := 0; i < 10000; i++ {
		ts = ts.Add(duration)
	}

	want := duration.MulInt(10000)
	if ts != want {
		t.Errorf("accumulated timestamp: got %v, want %v", ts, want)
	}
	if ts.Cmp(want) != 0 {
		t.Errorf("Cmp(accumulated, n×duration): got %d, want 0", ts.Cmp(want))
	}
}

func TestMulInt(t *testing.T) {
	t.Parallel()
	r := New(1000000000, 30).MulInt(3)
	if r.Num != 100000000 || r.Den != 1 {
		t.Errorf("(1e9/30)×3: got %v, want 100000000/1", r)
	}
	if got := r.MulInt(0); got != Zero {
		t.Errorf("r×0: got %v, want 0/1", got)
	}
}

func TestCmp(t *testing.T) {
	t.Parallel()
	a := New(1, 3)
	b := New(1, 2)
	if a.Cmp(b) != -1 {
		t.Errorf("1/3 vs 1/2: got %d, want -1", a.Cmp(b))
	}
	if b.Cmp(a) != 1 {
		t.Errorf("1/2 vs 1/3: got %d, want 1", b.Cmp(a))
	}
	if a.Cmp(New(2, 6)) != 0 {
		t.Errorf("1/3 vs 2/6: got %d, want 0", a.Cmp(New(2, 6)))
	}
}

func TestParse(t *testing.T) {
	t.Parallel()
	r, err := Parse("30000/1001")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if r.Num != 30000 || r.Den != 1001 {
		t.Errorf("got %v, want 30000/1001", r)
	}

	r, err = Parse("25")
	if err != nil {
		t.Fatalf("Parse bare integer failed: %v", err)
	}
	if r.Num != 25 || r.Den != 1 {
		t.Errorf("got %v, want 25/1", r)
	}

	if _, err := Parse("1/0"); err == nil {
		t.Error("Parse(\"1/0\") should fail")
	}
	if _, err := Parse("abc"); err == nil {
		t.Error("Parse(\"abc\") should fail")
	}
}

func TestString(t *testing.T) {
	t.Parallel()
	if s := New(0, 5).String(); s != "0/1" {
		t.Errorf("got %q, want \"0/1\"", s)
	}
	if s := New(30, 1).String(); s != "30/1" {
		t.Errorf("got %q, want \"30/1\"", s)
	}
}
