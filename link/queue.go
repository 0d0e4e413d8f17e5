package link

import "github.com/ethane-platform/ethane/ethernet"

// frameQueue is the FIFO of frames ready for the lower layer to drain.
//
// The queue is unbounded, an accepted simplification of this component.
// Frames leave in exactly the order they entered; resolution traffic gets
// no priority over data.
type frameQueue struct {
	frames []ethernet.Frame
}

func (q *frameQueue) Push(frame ethernet.Frame) {
	q.frames = append(q.frames, frame)
}

func (q *frameQueue) Pop() (ethernet.Frame, bool) {
	if len(q.frames) == 0 {
		return ethernet.Frame{}, false
	}

	frame := q.frames[0]
	q.frames = q.frames[1:]
	return frame, true
}

func (q *frameQueue) Len() int {
	return len(q.frames)
}
