// Package throttle limits repeated failed attempts per key within a time window.
package throttle
