package session

import (
	"context"
	"fmt"
	"sync"

	"beamview/internal/camera"
	"beamview/internal/frame"
)

// fakeCamera はテスト用の手動駆動カメラ
//
// フレームは deliver で明示的に届ける。
type fakeCamera struct {
	mu        sync.Mutex
	serial    string
	name      string
	trigger   camera.TriggerMode
	region    camera.Region
	maxW      int
	maxH      int
	gain      int
	exposure  float64
	grabbing  bool
	handler   camera.FrameHandler
	requests  int
	starts    int
	stops     int
	released  bool
	requested chan struct{}
}

func newFakeCamera(trigger camera.TriggerMode) *fakeCamera {
	return &fakeCamera{
		serial:    "fake-0001",
		name:      "Camera 0",
		trigger:   trigger,
		region:    camera.Region{Width: 64, Height: 48},
		maxW:      64,
		maxH:      48,
		exposure:  1,
		requested: make(chan struct{}, 64),
	}
}

func (c *fakeCamera) SerialNumber() string { return c.serial }
func (c *fakeCamera) Model() string { return "Fake" }
func (c *fakeCamera) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}
func (c *fakeCamera) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
}
func (c *fakeCamera) PixelFormat() camera.PixelFormat { return camera.Mono12 }
func (c *fakeCamera) Binning() (int, error) { return 0, camera.ErrNotSupported }

func (c *fakeCamera) Gain() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gain
}
func (c *fakeCamera) SetGain(v int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v < 0 || v > 100 {
		return fmt.Errorf("%w: %d", camera.ErrOutOfRange, v)
	}
	c.gain = v
	return nil
}
func (c *fakeCamera) Exposure() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exposure
}
func (c *fakeCamera) SetExposure(ms float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ms <= 0 || ms > 100 {
		return camera.ErrOutOfRange
	}
	c.exposure = ms
	return nil
}

func (c *fakeCamera) geometry(apply func(r *camera.Region)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.grabbing {
		return camera.ErrGrabbing
	}
	next := c.region
	apply(&next)
	if next.MaxX() > c.maxW || next.MaxY() > c.maxH || next.Width < 4 || next.Height < 4 {
		return camera.ErrOutOfRange
	}
	c.region = next
	return nil
}

func (c *fakeCamera) OffsetX() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region.OffsetX
}
func (c *fakeCamera) OffsetY() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region.OffsetY
}
func (c *fakeCamera) Width() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region.Width
}
func (c *fakeCamera) Height() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region.Height
}
func (c *fakeCamera) SetOffsetX(v int) error {
	return c.geometry(func(r *camera.Region) { r.OffsetX = v })
}
func (c *fakeCamera) SetOffsetY(v int) error {
	return c.geometry(func(r *camera.Region) { r.OffsetY = v })
}
func (c *fakeCamera) SetWidth(v int) error {
	return c.geometry(func(r *camera.Region) { r.Width = v })
}
func (c *fakeCamera) SetHeight(v int) error {
	return c.geometry(func(r *camera.Region) { r.Height = v })
}
func (c *fakeCamera) MaxWidth() int { return c.maxW }
func (c *fakeCamera) MaxHeight() int { return c.maxH }

func (c *fakeCamera) PacketSize() int { return 1500 }
func (c *fakeCamera) TransmissionDelay() (int, error) { return 0, nil }
func (c *fakeCamera) SetTransmissionDelay(int) error { return nil }
func (c *fakeCamera) InterPacketDelay() (int, error) { return 0, nil }
func (c *fakeCamera) SetInterPacketDelay(int) error { return nil }
func (c *fakeCamera) TriggerMode() camera.TriggerMode { return c.trigger }

func (c *fakeCamera) StartGrabbing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grabbing = true
	c.starts++
	return nil
}
func (c *fakeCamera) StopGrabbing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.grabbing {
		c.stops++
	}
	c.grabbing = false
	return nil
}
func (c *fakeCamera) IsGrabbing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grabbing
}
func (c *fakeCamera) RequestFrame(context.Context) error {
	c.mu.Lock()
	c.requests++
	c.mu.Unlock()
	c.requested <- struct{}{}
	return nil
}
func (c *fakeCamera) RegisterFrameHandler(h camera.FrameHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}
func (c *fakeCamera) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	return nil
}

// deliver は取得ゴルーチンの代わりにハンドラーを呼ぶ
func (c *fakeCamera) deliver(r camera.GrabResult) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(r)
	}
}

// spotFrame は (x, y) に1画素だけ値を持つフレームを作る
func (c *fakeCamera) spotFrame(x, y int, v uint16) *frame.Frame {
	r := camera.ReadRegion(c)
	f := frame.New(r.Width, r.Height, 12)
	f.OffsetX = r.OffsetX
	f.OffsetY = r.OffsetY
	f.Set(x, y, v)
	return f
}
