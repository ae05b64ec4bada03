package capture

// Source delivers blocks of raw PCM16-LE mono audio from a device.
//
// Start begins delivery: onBlock is invoked for every captured block, in
// arrival order, from the device's own thread. The callback must return
// quickly; anything beyond format conversion and a non-blocking enqueue
// risks a device underrun. onError is invoked at most once with a fatal
// device error, after which no further blocks arrive; the engine treats it
// as a stop condition and does not retry.
//
// Stop halts delivery. After Stop returns, neither callback fires again.
// Implementations must tolerate Stop without a prior Start and repeated
// Stop calls.
type Source interface {
	Start(onBlock func(block []byte), onError func(err error)) error
	Stop() error
}
