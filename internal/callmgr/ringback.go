package callmgr

// RingbackController starts and stops an early-media ringback tone on the
// caller leg of a call. It is keyed by call ID so the manager can invoke it
// without holding a reference to any particular transport.
type RingbackController interface {
	Start(callID string)
	Stop(callID string)
}

// noopRingback discards every call; used when a manager is built without a
// real ringback source (tests, or a deployment that relies on the far end's
// own early media instead).
type noopRingback struct{}

func (noopRingback) Start(string) {}
func (noopRingback) Stop(string)  {}
