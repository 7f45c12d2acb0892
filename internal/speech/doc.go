// Package speech implements the segment playback pipeline: an ordered
// walk over text segments that hides synthesis latency behind read-ahead
// prefetching while supporting pause, resume, stop, speed changes and
// recovery from autoplay-blocked audio output.
package speech
