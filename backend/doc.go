// Package backend defines the polymorphic execution-adapter contract and the
// shared streaming machinery used by every backend variant. It provides:
//
//   - Adapter (the strategy interface: eligibility + streamed execution)
//   - RuntimeContext / RunOptions (immutable per-run inputs)
//   - Callbacks / StreamDelta / RunResult (the single streaming-result contract)
//   - Message (a closed tagged union over the heterogeneous shapes backends emit)
//   - DecodeMessage / ExtractText (shape-tolerant, never-failing decoding)
//   - ConsumeStream (ordering, cancellation and accumulation semantics)
//
// Concrete variants live in subpackages; higher layers (the runner) remain
// decoupled from how any particular backend produces its messages.
package backend
