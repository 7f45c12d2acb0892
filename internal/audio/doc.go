// Package audio provides the playable-audio sink for the speech pipeline.
// It decodes synthesized WAV payloads to raw PCM and plays them through a
// single reusable oto device, reporting progress and completion over a
// per-load event channel. A mock sink with virtual time is provided for
// tests.
package audio
