// Package audio plays cached mp3 files. Playback goes either through the
// system audio device using oto/v3, or through an external command-line
// player such as mpv or ffplay.
package audio
