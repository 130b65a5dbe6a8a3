package speech

// SpeechSink is the capability interface of a text-to-speech engine.
//
// Speak starts speaking a fragment and returns a completion channel that
// receives exactly one value: nil once the fragment finished (or was cut
// short by CancelCurrent), or an error if the sink failed. The sink must
// accept another Speak call as soon as that value has been delivered.
type SpeechSink interface {
	// Speak hands a fragment to the engine.
	Speak(fragment Fragment) <-chan error

	// CancelCurrent asks the engine to stop the in-flight fragment. It is
	// cooperative: the completion of the current Speak call is still
	// delivered and acts as the acknowledgment.
	CancelCurrent()
}

// BrailleSink is the capability interface of a braille display driver.
type BrailleSink interface {
	// Render shows a region on the display. The returned channel receives
	// exactly one value, as with SpeechSink.Speak.
	Render(region BrailleRegion) <-chan error
}

// Done returns an already completed channel carrying err. Sinks use it for
// operations that finish synchronously.
func Done(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}
