package realtime

// Publisher delivers addressed events. *Hub implements it.
type Publisher interface {
	Publish(t EventType, data any, recipients ...string)
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(EventType, any, ...string) {}

var _ Publisher = (*Hub)(nil)
