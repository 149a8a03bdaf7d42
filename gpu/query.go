package gpu

// TimestampQuery records a point-in-time GPU tick value. Queries resolve
// asynchronously: Poll never blocks, and an unresolved query simply reports
// false until the device catches up.
type TimestampQuery interface {
	// Issue records a timestamp at the current point in the command stream.
	// Reissuing before the previous value was polled discards it.
	Issue()

	// Poll attempts to read the recorded tick value without blocking.
	//
	// Returns:
	//   - uint64: the tick value when resolved
	//   - bool: true when the query has resolved since the last Issue
	Poll() (uint64, bool)

	// Release frees the query.
	Release()
}

// DisjointQuery brackets a frame's timestamp queries and reports the tick
// frequency along with whether the counter was disrupted during the bracket.
// Disrupted brackets must be discarded by the caller.
type DisjointQuery interface {
	// Begin opens the bracket at the current point in the command stream.
	Begin()

	// End closes the bracket.
	End()

	// Poll attempts to read the bracket result without blocking.
	//
	// Returns:
	//   - uint64: ticks per second when resolved
	//   - bool: true when the counter was disrupted and the bracket's
	//     timestamps are unusable
	//   - bool: true when the query has resolved since the last Begin/End
	Poll() (uint64, bool, bool)

	// Release frees the query.
	Release()
}
