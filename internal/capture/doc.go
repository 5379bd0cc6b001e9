// Package capture provides visual frame sources (full screen, window region)
// and the ticker-driven producer that feeds frames into the bounded queue at
// a fixed rate.
package capture
