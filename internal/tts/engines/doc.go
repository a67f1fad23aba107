// Package engines contains the remote speech synthesizers that implement
// tts.Synthesizer.
package engines
