package pyramid

import "testing"

func TestNumSubbands(t *testing.T) {
	p2 := New(64, 64, 1, 3, false)
	if got, want := p2.NumSubbands(), 3*3+1; got != want {
		t.Errorf("2D NumSubbands() = %d, want %d", got, want)
	}
	p3 := New(32, 32, 32, 2, true)
	if got, want := p3.NumSubbands(), 7*2+1; got != want {
		t.Errorf("3D NumSubbands() = %d, want %d", got, want)
	}
}

func TestSubbandSizesSumToTotal2D(t *testing.T) {
	for _, dims := range [][2]int{{64, 64}, {37, 53}, {128, 17}, {1, 1}} {
		for levels := 1; levels <= 4; levels++ {
			p := New(dims[0], dims[1], 1, levels, false)
			sum := 0
			for i := 0; i < p.NumSubbands(); i++ {
				sum += p.SubbandSize(i)
			}
			want := dims[0] * dims[1]
			if sum != want {
				t.Errorf("dims=%v levels=%d: sum=%d, want %d", dims, levels, sum, want)
			}
		}
	}
}

func TestSubbandSizesSumToTotal3D(t *testing.T) {
	for _, dims := range [][3]int{{32, 32, 32}, {17, 17, 17}, {64, 70, 80}, {128, 64, 41}} {
		for levels := 1; levels <= 3; levels++ {
			p := New(dims[0], dims[1], dims[2], levels, true)
			sum := 0
			for i := 0; i < p.NumSubbands(); i++ {
				sum += p.SubbandSize(i)
			}
			want := dims[0] * dims[1] * dims[2]
			if sum != want {
				t.Errorf("dims=%v levels=%d: sum=%d, want %d", dims, levels, sum, want)
			}
		}
	}
}

func TestRootBoundsIsCoarsestLL(t *testing.T) {
	p := New(64, 64, 1, 3, false)
	root := p.RootBounds()
	want := 64 >> 3 // 3 halvings of 64 is exact
	if root.X1-root.X0 != want || root.Y1-root.Y0 != want {
		t.Errorf("RootBounds() = %+v, want an %dx%d region", root, want, want)
	}
}

func TestLevelFromSubband(t *testing.T) {
	p := New(64, 64, 1, 2, false)
	if p.LevelFromSubband(0) != 0 {
		t.Errorf("LevelFromSubband(0) = %d, want 0", p.LevelFromSubband(0))
	}
	// indices 1..3 are the coarsest detail group: level == Levels.
	for i := 1; i <= 3; i++ {
		if got := p.LevelFromSubband(i); got != 2 {
			t.Errorf("LevelFromSubband(%d) = %d, want 2", i, got)
		}
	}
	// indices 4..6 are the finest detail group: level 1.
	for i := 4; i <= 6; i++ {
		if got := p.LevelFromSubband(i); got != 1 {
			t.Errorf("LevelFromSubband(%d) = %d, want 1", i, got)
		}
	}
}

func TestNonDyadicDimsDoNotOverlap(t *testing.T) {
	p := New(17, 17, 1, 2, false)
	seen := make([]bool, 17*17)
	for i := 0; i < p.NumSubbands(); i++ {
		b := p.SubbandBounds(i)
		for y := b.Y0; y < b.Y1; y++ {
			for x := b.X0; x < b.X1; x++ {
				idx := y*17 + x
				if seen[idx] {
					t.Fatalf("subband %d overlaps a previously covered cell (%d,%d)", i, x, y)
				}
				seen[idx] = true
			}
		}
	}
	for i, s := range seen {
		if !s {
			t.Fatalf("cell %d never covered by any subband", i)
		}
	}
}
