// Package progress provides progress reporting for long-running searches.
package progress

// Callback reports progress during long operations.
//   - current: number of items completed
//   - total: total number of items
//   - message: human-readable description of the current phase
//
// A nil Callback is valid and is ignored by Call.
type Callback func(current, total int, message string)

// Call invokes cb if it is non-nil.
func Call(cb Callback, current, total int, message string) {
	if cb != nil {
		cb(current, total, message)
	}
}

// Every wraps cb so that it only fires on every step-th update and on the
// final one (current == total). A step below 2 returns cb unchanged.
func Every(cb Callback, step int) Callback {
	if cb == nil || step < 2 {
		return cb
	}
	return func(current, total int, message string) {
		if current%step == 0 || current == total {
			cb(current, total, message)
		}
	}
}
