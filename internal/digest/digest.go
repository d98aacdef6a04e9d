// Package digest computes content fingerprints for files and byte buffers.
//
// Hash states are pooled per algorithm, so repeated calls reuse an already
// initialised state (Reset) instead of constructing a new one. Streaming
// digests read in ChunkSize pieces and never hold the whole input in memory.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/spf13/afero"
)

// ChunkSize is the read buffer size used for streaming digests.
const ChunkSize = 512 * 1024

// Algorithm names a supported digest algorithm.
type Algorithm string

const (
	MD5    Algorithm = "MD5"
	SHA1   Algorithm = "SHA-1"
	SHA256 Algorithm = "SHA-256"
	SHA512 Algorithm = "SHA-512"
)

// ErrUnknownAlgorithm is returned for algorithm names outside the supported set.
var ErrUnknownAlgorithm = errors.New("unknown digest algorithm")

// ReadError reports a failed read while digesting a file or stream.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

var constructors = map[Algorithm]func() hash.Hash{
	MD5:    md5.New,
	SHA1:   sha1.New,
	SHA256: sha256.New,
	SHA512: sha512.New,
}

var pools = func() map[Algorithm]*sync.Pool {
	m := make(map[Algorithm]*sync.Pool, len(constructors))
	for alg, ctor := range constructors {
		ctor := ctor
		m[alg] = &sync.Pool{New: func() any { return ctor() }}
	}
	return m
}()

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, ChunkSize)
		return &b
	},
}

// Algorithms returns the supported algorithms in a stable order.
func Algorithms() []Algorithm {
	return []Algorithm{MD5, SHA1, SHA256, SHA512}
}

// ParseAlgorithm resolves a user supplied name such as "sha256", "SHA-256"
// or "md5". Unknown names produce an error that suggests the closest match.
func ParseAlgorithm(name string) (Algorithm, error) {
	key := normalizeName(name)
	for _, alg := range Algorithms() {
		if normalizeName(string(alg)) == key {
			return alg, nil
		}
	}
	return "", unknownAlgorithm(name)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "-", ""))
}

func unknownAlgorithm(name string) error {
	type candidate struct {
		alg  Algorithm
		dist int
	}
	var cands []candidate
	for _, alg := range Algorithms() {
		cands = append(cands, candidate{alg, levenshtein.ComputeDistance(normalizeName(name), normalizeName(string(alg)))})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	if cands[0].dist <= 2 {
		return fmt.Errorf("%w %q (did you mean %s?)", ErrUnknownAlgorithm, name, cands[0].alg)
	}
	return fmt.Errorf("%w %q", ErrUnknownAlgorithm, name)
}

// New returns a fresh hash for alg. The caller owns the returned hash.
func New(alg Algorithm) (hash.Hash, error) {
	h, err := acquire(alg)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func acquire(alg Algorithm) (hash.Hash, error) {
	pool, ok := pools[alg]
	if !ok {
		return nil, unknownAlgorithm(string(alg))
	}
	h := pool.Get().(hash.Hash)
	h.Reset()
	return h, nil
}

func release(alg Algorithm, h hash.Hash) {
	pools[alg].Put(h)
}

// Hex renders the current sum of h as lowercase hexadecimal.
func Hex(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// Bytes digests an in-memory buffer.
func Bytes(data []byte, alg Algorithm) (string, error) {
	h, err := acquire(alg)
	if err != nil {
		return "", err
	}
	defer release(alg, h)

	h.Write(data)
	return Hex(h), nil
}

// SHA256Hex is shorthand for Bytes(data, SHA256).
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Reader digests everything readable from r in ChunkSize reads.
func Reader(r io.Reader, alg Algorithm) (string, error) {
	return reader("stream", r, alg)
}

// File digests the file at path on fs without loading it into memory.
func File(fs afero.Fs, path string, alg Algorithm) (string, error) {
	if _, ok := pools[alg]; !ok {
		return "", unknownAlgorithm(string(alg))
	}
	f, err := fs.Open(path)
	if err != nil {
		return "", &ReadError{Path: path, Err: err}
	}
	defer f.Close()
	return reader(path, f, alg)
}

func reader(name string, r io.Reader, alg Algorithm) (string, error) {
	h, err := acquire(alg)
	if err != nil {
		return "", err
	}
	defer release(alg, h)

	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)

	if err := Update(h, r, *bufp); err != nil {
		return "", &ReadError{Path: name, Err: err}
	}
	return Hex(h), nil
}

// Update feeds r into h using buf as the read buffer until r reports io.EOF.
// A short read is not treated as the end of input.
func Update(h hash.Hash, r io.Reader, buf []byte) error {
	if len(buf) == 0 {
		buf = make([]byte, ChunkSize)
	}
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
