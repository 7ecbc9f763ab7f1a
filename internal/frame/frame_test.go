package frame

import (
	"image"
	"math"
	"sync"
	"testing"
)

func TestSlot_LatestFrameWins(t *testing.T) {
	slot := NewSlot()

	if _, ok := slot.TryConsume(); ok {
		t.Fatal("空のスロットから取り出せてしまいました")
	}

	first := New(4, 4, 12)
	second := New(4, 4, 12)
	slot.Publish(first)
	slot.Publish(second)

	got, ok := slot.TryConsume()
	if !ok {
		t.Fatal("Expected a frame to be available")
	}
	if got != second {
		t.Error("Expected the most recent frame to win")
	}

	// 2回目の取り出しは失敗しなければならない
	if _, ok := slot.TryConsume(); ok {
		t.Error("Same frame was consumed twice")
	}

	stats := slot.Stats()
	if stats.Published != 2 || stats.Consumed != 1 || stats.Dropped != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.Pending {
		t.Error("Expected no pending frame")
	}
}

func TestSlot_ConcurrentProducerConsumer(t *testing.T) {
	slot := NewSlot()
	const produced = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < produced; i++ {
			f := New(1, 1, 16)
			f.Pix[0] = uint16(i)
			slot.Publish(f)
		}
	}()

	seen := make(map[*Frame]bool)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	consume := func() {
		if f, ok := slot.TryConsume(); ok {
			if seen[f] {
				t.Errorf("frame %d consumed twice", f.Pix[0])
			}
			seen[f] = true
		}
	}

loop:
	for {
		select {
		case <-done:
			break loop
		default:
			consume()
		}
	}
	consume()

	stats := slot.Stats()
	if stats.Published != produced {
		t.Errorf("Expected %d published, got %d", produced, stats.Published)
	}
	if stats.Consumed+stats.Dropped != produced {
		t.Errorf("consumed(%d) + dropped(%d) != produced(%d)", stats.Consumed, stats.Dropped, produced)
	}
	if uint64(len(seen)) != stats.Consumed {
		t.Errorf("Expected %d distinct frames, got %d", stats.Consumed, len(seen))
	}
}

func TestComputeMoments_SinglePixel(t *testing.T) {
	testCases := []struct {
		name             string
		offsetX, offsetY int
		x, y             int
	}{
		{"原点", 0, 0, 0, 0},
		{"内部の画素", 0, 0, 5, 3},
		{"オフセットあり", 100, 40, 2, 7},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := New(10, 10, 12)
			f.OffsetX = tc.offsetX
			f.OffsetY = tc.offsetY
			f.Set(tc.x, tc.y, 1234)

			m := ComputeMoments(f, 1)
			if !m.Valid {
				t.Fatal("Expected valid moments")
			}
			wantX := float64(tc.offsetX + tc.x)
			wantY := float64(tc.offsetY + tc.y)
			if m.CentroidX != wantX || m.CentroidY != wantY {
				t.Errorf("centroid = (%v, %v), want (%v, %v)", m.CentroidX, m.CentroidY, wantX, wantY)
			}
			if m.SigmaX != 0 || m.SigmaY != 0 {
				t.Errorf("sigma = (%v, %v), want (0, 0)", m.SigmaX, m.SigmaY)
			}
		})
	}
}

func TestComputeMoments_TwoPixelsAndScale(t *testing.T) {
	f := New(10, 1, 12)
	f.Set(2, 0, 100)
	f.Set(6, 0, 100)

	m := ComputeMoments(f, 1)
	if m.CentroidX != 4 {
		t.Errorf("CentroidX = %v, want 4", m.CentroidX)
	}
	if math.Abs(m.SigmaX-2) > 1e-12 {
		t.Errorf("SigmaX = %v, want 2", m.SigmaX)
	}

	// 5.5 µm/px を mm 単位に変換
	scaled := ComputeMoments(f, 5.5/1000)
	if math.Abs(scaled.CentroidX-4*5.5/1000) > 1e-12 {
		t.Errorf("scaled CentroidX = %v", scaled.CentroidX)
	}
	if math.Abs(scaled.SigmaX-2*5.5/1000) > 1e-12 {
		t.Errorf("scaled SigmaX = %v", scaled.SigmaX)
	}
}

func TestComputeMoments_EmptyFrame(t *testing.T) {
	m := ComputeMoments(New(8, 8, 12), 1)
	if m.Valid {
		t.Error("Expected invalid moments for an all-zero frame")
	}
	if math.IsNaN(m.CentroidX) || math.IsNaN(m.SigmaX) {
		t.Error("moments must not be NaN")
	}
}

func TestMeasureIntensity(t *testing.T) {
	f := New(3, 1, 12)
	f.Pix = []uint16{4095, 100, 4095}

	in := MeasureIntensity(f)
	if in.Saturated != 2 {
		t.Errorf("Saturated = %d, want 2", in.Saturated)
	}
	if in.Total != 4095*2+100 {
		t.Errorf("Total = %d", in.Total)
	}
	if in.MaxPercent != 100 {
		t.Errorf("MaxPercent = %v, want 100", in.MaxPercent)
	}
}

func TestApplyThreshold(t *testing.T) {
	f := New(4, 1, 12)
	f.Pix = []uint16{1000, 499, 500, 10}

	ApplyThreshold(f, 50)

	want := []uint16{1000, 0, 500, 0}
	for i := range want {
		if f.Pix[i] != want[i] {
			t.Errorf("Pix[%d] = %d, want %d", i, f.Pix[i], want[i])
		}
	}
}

func TestMedianFilter_DoesNotMutateInput(t *testing.T) {
	f := New(5, 5, 12)
	f.Set(2, 2, 4000) // 孤立したホットピクセル

	out := MedianFilter(f, DefaultMedianSize)
	if out.At(2, 2) != 0 {
		t.Errorf("hot pixel survived median filter: %d", out.At(2, 2))
	}
	if f.At(2, 2) != 4000 {
		t.Error("MedianFilter modified its input")
	}
}

func TestImage_PreservesRawValues(t *testing.T) {
	f := New(2, 2, 12)
	f.Pix = []uint16{0, 1, 4094, 4095}

	img, ok := f.Image().(*image.Gray16)
	if !ok {
		t.Fatalf("Expected *image.Gray16, got %T", f.Image())
	}
	back := FromImage(img, 12)
	for i := range f.Pix {
		if back.Pix[i] != f.Pix[i] {
			t.Errorf("Pix[%d] = %d, want %d", i, back.Pix[i], f.Pix[i])
		}
	}

	f8 := New(2, 1, 8)
	f8.Pix = []uint16{7, 255}
	if _, ok := f8.Image().(*image.Gray); !ok {
		t.Errorf("Expected *image.Gray for 8-bit frames, got %T", f8.Image())
	}
}
