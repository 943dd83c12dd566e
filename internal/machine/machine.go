// Package machine holds the small set of hardware constants the epoch core
// aligns itself to.
package machine

// CacheLine is the assumed size, in bytes, of a cache line on the platforms
// this package targets. Entry padding is computed against multiples of it.
const CacheLine = 64
