package cache

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
)

// KeySeparator joins the fields hashed into a cache key.
const KeySeparator = "::"

// KeyLength is the length of every key returned by Key.
const KeyLength = 32

// Key derives the cache key for a (text, voice, style) triple: the lowercase
// hex MD5 digest of text::voice::style. A field containing the separator can
// collide with a different split of the same string; that is accepted.
func Key(text, voice, style string) string {
	sum := md5.Sum([]byte(text + KeySeparator + voice + KeySeparator + style)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
