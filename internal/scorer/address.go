package scorer

import (
	"crypto/sha256"

	"github.com/mr-tron/base58"
)

// rippleAlphabet is the base58 dictionary XRPL uses for classic
// addresses. It is not the bitcoin dictionary.
const rippleAlphabet = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"

var rippleDict = base58.NewAlphabet(rippleAlphabet)

// accountIDPrefix tags a classic address payload.
const accountIDPrefix = 0x00

// ValidAddress checks an XRPL classic address: ripple-alphabet base58,
// 0x00 type prefix, 20-byte account id, 4-byte double-sha256 checksum.
func ValidAddress(addr string) bool {
	if len(addr) < 25 || len(addr) > 35 || addr[0] != 'r' {
		return false
	}
	payload, err := base58.DecodeAlphabet(addr, rippleDict)
	if err != nil || len(payload) != 25 || payload[0] != accountIDPrefix {
		return false
	}

	body, checksum := payload[:21], payload[21:]
	first := sha256.Sum256(body)
	second := sha256.Sum256(first[:])
	for i := 0; i < 4; i++ {
		if checksum[i] != second[i] {
			return false
		}
	}
	return true
}
