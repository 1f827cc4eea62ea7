package fakebank

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Passwords and account PINs are kept as argon2id PHC strings:
//
//	$argon2id$v=19$m=8192,t=1,p=1$<salt>$<hash>
const (
	hashMemoryKB    uint32 = 8 * 1024
	hashTime        uint32 = 1
	hashParallelism uint8  = 1
	saltLength             = 16
	keyLength       uint32 = 32
	algorithmID            = "argon2id"
)

var errInvalidPHC = errors.New("fakebank: invalid credential hash")

func hashSecret(secret string) string {
	salt := make([]byte, saltLength)
	_, _ = rand.Read(salt)
	sum := argon2.IDKey([]byte(secret), salt, hashTime, hashMemoryKB, hashParallelism, keyLength)
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version, hashMemoryKB, hashTime, hashParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	)
}

// verifySecret reports whether secret matches encoded. Malformed hashes never match.
func verifySecret(secret, encoded string) bool {
	p, err := parsePHC(encoded)
	if err != nil {
		return false
	}
	sum := argon2.IDKey([]byte(secret), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(sum, p.hash) == 1
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func parsePHC(encoded string) (phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return phc{}, errInvalidPHC
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return phc{}, errInvalidPHC
	}

	var p phc
	for _, pair := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return phc{}, errInvalidPHC
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return phc{}, errInvalidPHC
		}
		switch k {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.time = uint32(n)
		case "p":
			if n > 255 {
				return phc{}, errInvalidPHC
			}
			p.parallelism = uint8(n)
		default:
			return phc{}, errInvalidPHC
		}
	}
	if p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return phc{}, errInvalidPHC
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(p.salt) < saltLength {
		return phc{}, errInvalidPHC
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(p.hash) == 0 {
		return phc{}, errInvalidPHC
	}
	return p, nil
}
