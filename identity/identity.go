// Package identity owns the stable device id and the pairing code other
// devices use to reach this one.
package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jd-code76/provinent-scripture-study-sub000/log"
	"github.com/jd-code76/provinent-scripture-study-sub000/state"
	"github.com/jd-code76/provinent-scripture-study-sub000/store"
)

// Alphabet of pairing codes.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultCodeLength gives 36^8 possible codes. Nothing prevents two devices
// from drawing the same code; the rendezvous service reports the collision
// and the code is regenerated.
const DefaultCodeLength = 8

const (
	minCodeLength = 4
	maxCodeLength = 64
)

// ErrInvalidCode is returned for codes outside the pairing alphabet.
var ErrInvalidCode = errors.New("identity: invalid pairing code")

// ValidCode reports whether code could have been produced by GenerateCode.
func ValidCode(code string) bool {
	if len(code) < minCodeLength || len(code) > maxCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

// GenerateCode draws n characters from Alphabet using r. Bytes that would
// bias the distribution are discarded.
func GenerateCode(r io.Reader, n int) (string, error) {
	const limit = 256 - 256%len(Alphabet)
	var (
		code = make([]byte, 0, n)
		buf  = make([]byte, n)
	)
	for len(code) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, Alphabet[int(b)%len(Alphabet)])
			if len(code) == n {
				break
			}
		}
	}
	return string(code), nil
}

// Opt configures an Identity.
type Opt func(*Identity)

// WithRand sets the random source for device ids and codes.
func WithRand(r io.Reader) Opt {
	return func(i *Identity) {
		i.rand = r
	}
}

// WithCodeLength sets the pairing code length.
func WithCodeLength(n int) Opt {
	return func(i *Identity) {
		i.codeLength = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(i *Identity) {
		i.logger = logger
	}
}

// Identity reads and writes the local device identity in a store.KV.
type Identity struct {
	logger     *zap.Logger
	kv         store.KV
	rand       io.Reader
	codeLength int

	mu       sync.Mutex
	deviceID string
}

// New returns an Identity backed by kv.
func New(kv store.KV, opts ...Opt) *Identity {
	i := &Identity{
		logger:     zap.NewNop(),
		kv:         kv,
		rand:       rand.Reader,
		codeLength: DefaultCodeLength,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// DeviceID returns the persisted device id, creating it on first use. Once
// written it is never regenerated.
func (i *Identity) DeviceID() (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.deviceID != "" {
		return i.deviceID, nil
	}
	v, err := i.kv.Get(state.KeyDeviceID)
	switch {
	case err == nil && len(v) > 0:
		i.deviceID = string(v)
		return i.deviceID, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return "", fmt.Errorf("load device id: %w", err)
	}
	id, err := uuid.NewRandomFromReader(i.rand)
	if err != nil {
		return "", fmt.Errorf("generate device id: %w", err)
	}
	if err := i.kv.Put(state.KeyDeviceID, []byte(id.String())); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	i.deviceID = id.String()
	i.logger.Info("created device id", log.ZDevice(i.deviceID))
	return i.deviceID, nil
}

// NewCode draws a fresh pairing code without persisting it.
func (i *Identity) NewCode() (string, error) {
	return GenerateCode(i.rand, i.codeLength)
}

// PeerID returns the persisted pairing code, or "" if there is none.
func (i *Identity) PeerID() (string, error) {
	v, err := i.kv.Get(state.KeyPeerID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load pairing code: %w", err)
	}
	return string(v), nil
}

// SetPeerID persists code as the current pairing code.
func (i *Identity) SetPeerID(code string) error {
	if !ValidCode(code) {
		return fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	if err := i.kv.Put(state.KeyPeerID, []byte(code)); err != nil {
		return fmt.Errorf("persist pairing code: %w", err)
	}
	return nil
}

// ClearPeerID forgets the pairing code.
func (i *Identity) ClearPeerID() error {
	if err := i.kv.Delete(state.KeyPeerID); err != nil {
		return fmt.Errorf("clear pairing code: %w", err)
	}
	return nil
}

// CurrentCode returns the persisted pairing code, generating and persisting
// one if there is none.
func (i *Identity) CurrentCode() (string, error) {
	code, err := i.PeerID()
	if err != nil {
		return "", err
	}
	if code != "" {
		return code, nil
	}
	return i.RegenerateCode()
}

// RegenerateCode replaces the pairing code with a new one.
func (i *Identity) RegenerateCode() (string, error) {
	code, err := i.NewCode()
	if err != nil {
		return "", err
	}
	if err := i.SetPeerID(code); err != nil {
		return "", err
	}
	i.logger.Debug("new pairing code", log.ZShortString("code", code))
	return code, nil
}
