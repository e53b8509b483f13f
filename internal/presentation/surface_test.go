package presentation

import (
	"bytes"
	"errors"
	"image/png"
	"testing"
)

type fakeDecoder struct {
	calls   []string
	openErr error
	playErr error
	loop    bool
	muted   bool
	closed  int
}

func (f *fakeDecoder) Open(url string) error {
	f.calls = append(f.calls, "open:"+url)
	return f.openErr
}

func (f *fakeDecoder) Play() error {
	f.calls = append(f.calls, "play")
	return f.playErr
}

func (f *fakeDecoder) Pause()           { f.calls = append(f.calls, "pause") }
func (f *fakeDecoder) Rewind()          { f.calls = append(f.calls, "rewind") }
func (f *fakeDecoder) SetLoop(l bool)   { f.loop = l }
func (f *fakeDecoder) SetMuted(m bool)  { f.muted = m }
func (f *fakeDecoder) Texture() Texture { return Texture{ID: "fake", Ready: true} }

func (f *fakeDecoder) Close() error {
	f.closed++
	return nil
}

func (f *fakeDecoder) count(call string) int {
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func TestOpenPreparesPausedLoopedMuted(t *testing.T) {
	dec := &fakeDecoder{}
	s := NewSurface("/video.mp4", dec)

	if err := s.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Open(); err != nil {
		t.Fatalf("second Open: %v", err)
	}

	if !dec.loop || !dec.muted {
		t.Error("video must be looped and muted")
	}
	if dec.count("open:/video.mp4") != 1 {
		t.Errorf("decoder opened %d times", dec.count("open:/video.mp4"))
	}
	if dec.count("play") != 0 {
		t.Error("video must stay paused before the countdown ends")
	}

	v := s.View()
	if !v.Placeholder || v.Playing || v.VideoURL != "/video.mp4" || v.Texture.ID != "fake" {
		t.Errorf("unexpected view %+v", v)
	}
}

func TestOpenError(t *testing.T) {
	dec := &fakeDecoder{openErr: errors.New("404")}
	s := NewSurface("/missing.mp4", dec)
	if err := s.Open(); err == nil {
		t.Fatal("expected open error")
	}
	if v := s.View(); v.Texture.Ready {
		t.Error("failed surface should not expose a texture")
	}
}

func TestSyncSwitchesOnceAndNeverReverts(t *testing.T) {
	dec := &fakeDecoder{}
	s := NewSurface("/video.mp4", dec)
	_ = s.Open()

	_ = s.Sync(false, "00:00:02")
	if v := s.View(); !v.Placeholder || v.Overlay != "00:00:02" {
		t.Errorf("expected placeholder with overlay, got %+v", v)
	}

	if err := s.Sync(true, "00:00:00"); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	v := s.View()
	if v.Placeholder || !v.Playing || v.Overlay != "" {
		t.Errorf("expected playing video, got %+v", v)
	}

	_ = s.Sync(false, "00:00:05")
	_ = s.Sync(true, "00:00:00")
	if v := s.View(); v.Placeholder || !v.Playing {
		t.Error("surface reverted to the placeholder")
	}

	if dec.count("rewind") != 1 || dec.count("play") != 1 {
		t.Errorf("expected exactly one rewind+play, calls=%v", dec.calls)
	}
	// rewind must precede play
	var order []string
	for _, c := range dec.calls {
		if c == "rewind" || c == "play" {
			order = append(order, c)
		}
	}
	if order[0] != "rewind" {
		t.Errorf("play before rewind: %v", order)
	}
}

func TestPlayFailureKeepsStarted(t *testing.T) {
	dec := &fakeDecoder{playErr: errors.New("autoplay blocked")}
	s := NewSurface("/video.mp4", dec)
	_ = s.Open()

	if err := s.Sync(true, ""); err == nil {
		t.Fatal("expected play error")
	}
	if !s.Started() || s.Err() == nil {
		t.Error("surface should be started with the error recorded")
	}
	if v := s.View(); v.Placeholder || v.Playing {
		t.Errorf("unexpected view %+v", v)
	}
}

func TestCloseIdempotent(t *testing.T) {
	dec := &fakeDecoder{}
	s := NewSurface("/video.mp4", dec)
	_ = s.Open()

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if dec.closed != 1 {
		t.Errorf("decoder closed %d times", dec.closed)
	}
	if err := s.Sync(true, ""); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := s.Open(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestCloseReleasesDecoderAfterFailedOpen(t *testing.T) {
	dec := &fakeDecoder{openErr: errors.New("unsupported codec")}
	s := NewSurface("/video.mp4", dec)

	if err := s.Open(); err == nil {
		t.Fatal("expected open error")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if dec.closed != 1 {
		t.Errorf("decoder closed %d times, want 1", dec.closed)
	}
	if dec.count("pause") != 0 {
		t.Error("an unopened decoder should not be paused")
	}
}

func TestMirrorRecordsState(t *testing.T) {
	m := NewMirror()
	s := NewSurface("/video.mp4", m)
	_ = s.Open()

	st := m.State()
	if !st.Open || st.Playing || !st.Loop || !st.Muted {
		t.Errorf("unexpected mirror state after open %+v", st)
	}

	_ = s.Sync(true, "")
	st = m.State()
	if !st.Playing || st.Rewinds != 1 {
		t.Errorf("unexpected mirror state after start %+v", st)
	}

	_ = s.Close()
	if st := m.State(); st.Open || st.Playing {
		t.Errorf("mirror still open after close %+v", st)
	}
}

func TestMirrorRejectsEmptyURL(t *testing.T) {
	if err := NewMirror().Open(""); err == nil {
		t.Error("expected error for empty url")
	}
	if err := NewMirror().Play(); err == nil {
		t.Error("expected error playing an unopened mirror")
	}
}

func TestRenderPlaceholder(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderPlaceholder(&buf, 320, 180, "12:34:56"); err != nil {
		t.Fatalf("RenderPlaceholder: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 320 || b.Dy() != 180 {
		t.Errorf("size %dx%d, want 320x180", b.Dx(), b.Dy())
	}
	if _, _, _, a := img.At(b.Dx()/2, 2).RGBA(); a != 0xffff {
		t.Error("placeholder must be opaque")
	}

	if err := RenderPlaceholder(&buf, 0, 10, ""); err == nil {
		t.Error("expected error for zero width")
	}
}
