package version

const (
	// Version is the timebox release.
	Version = "v0.1.0"
	// ChannelVersion tracks the request/message wire format; bump when it changes.
	ChannelVersion = "v1"
)
