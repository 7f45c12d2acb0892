// Package synth talks to the speech synthesis server. The server exposes
// a small JSON API: POST /synthesize returns WAV audio for a text and
// voice, GET /voices lists available voices, GET /health reports model
// readiness, POST /preload warms the model and POST /paragraphs splits
// raw text server-side. A scriptable in-memory synthesizer is provided
// for tests.
package synth
