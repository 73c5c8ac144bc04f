package nidas

// SampleClient receives Samples pushed to it by a SampleSource. Receive's
// bool return distinguishes "consumed" from "rejected by a filter that
// didn't match"; both are normal outcomes and neither is an error. A
// client that needs the Sample to outlive the Receive call must call
// Sample.AddReference before returning, per §4.5.
type SampleClient interface {
	Receive(s *Sample) (bool, error)

	// Flush gives the client a chance to release any buffered state, e.g.
	// when its upstream source is shutting down.
	Flush() error
}

// SampleClientFunc adapts a plain function to SampleClient for clients
// with no Flush-time cleanup.
type SampleClientFunc func(s *Sample) (bool, error)

// Receive calls f.
func (f SampleClientFunc) Receive(s *Sample) (bool, error) { return f(s) }

// Flush is a no-op.
func (f SampleClientFunc) Flush() error { return nil }
