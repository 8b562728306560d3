package session

import "math/rand"

// Share codes are dictated verbally, so the alphabet drops the characters
// that read ambiguously (0/O, 1/I/L).
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
const codeLength = 6
const maxCodeAttempts = 5

var codeRandFn = rand.Intn

func newShareCode() string {
	buf := make([]byte, codeLength)
	for i := range buf {
		buf[i] = codeAlphabet[codeRandFn(len(codeAlphabet))]
	}
	return string(buf)
}
