package media

import "github.com/dkeye/VideoCall/internal/domain"

// Controller holds the enabled flag of each local media kind. The flags live
// on the shared tracks, so a change reaches every peer at once without
// renegotiation.
type Controller struct {
	stream *LocalStream
}

func (c *Controller) Attach(s *LocalStream) { c.stream = s }

func (c *Controller) Detach() { c.stream = nil }

func (c *Controller) Stream() *LocalStream { return c.stream }

// Toggle sets kind to explicit when given, else flips it. ok is false when
// there is no local track of that kind, in which case nothing changes.
func (c *Controller) Toggle(kind domain.MediaKind, explicit *bool) (enabled, ok bool) {
	t := c.track(kind)
	if t == nil {
		return false, false
	}
	want := !t.Enabled()
	if explicit != nil {
		want = *explicit
	}
	t.SetEnabled(want)
	return t.Enabled(), true
}

func (c *Controller) Enabled(kind domain.MediaKind) bool {
	t := c.track(kind)
	return t != nil && t.Enabled()
}

// Flags is the state advertised to other participants.
func (c *Controller) Flags() domain.MediaFlags {
	return domain.MediaFlags{
		Video: c.Enabled(domain.KindVideo),
		Audio: c.Enabled(domain.KindAudio),
	}
}

func (c *Controller) track(kind domain.MediaKind) *LocalTrack {
	if c.stream == nil {
		return nil
	}
	return c.stream.Track(kind)
}
