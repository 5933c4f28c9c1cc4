package ws

import (
	"testing"

	"github.com/onepointltd/kbserver/internal/logger"
)

type capturedFrame struct {
	frameType string
	payload   any
}

type fakeWriter struct {
	frames []capturedFrame
}

func (w *fakeWriter) WriteFrame(frameType string, payload any) error {
	w.frames = append(w.frames, capturedFrame{frameType: frameType, payload: payload})
	return nil
}

func TestSocketSinkEmitsProgressFrames(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	sink := NewSocketSink(w, "req-1", logger.NewNop())

	sink.Notify("Extracting keywords")
	sink.Notify("Searching documents")

	if len(w.frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(w.frames))
	}
	for _, f := range w.frames {
		if f.frameType != FrameProgress {
			t.Fatalf("frame type = %s, want %s", f.frameType, FrameProgress)
		}
	}
	p, ok := w.frames[0].payload.(Payload)
	if !ok {
		t.Fatalf("payload type %T", w.frames[0].payload)
	}
	if p.RequestID != "req-1" || p.Data != "Extracting keywords" {
		t.Fatalf("payload = %+v", p)
	}
}
