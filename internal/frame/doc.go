// Package frame provides captured video frames and the bounded queue that
// connects the capture producer to the session sender. The queue favors
// freshness over completeness: when full, the oldest frame is evicted so a
// slow sender always transmits recent pixels.
package frame
