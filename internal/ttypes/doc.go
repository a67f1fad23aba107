// Package ttypes contains the error taxonomy shared by the cache, tts, audio and
// config packages. It lives apart from them so each can report failures without
// importing the others.
package ttypes
