package password

import "errors"

var (
	// ErrEmptyPassword is returned when hashing an empty string.
	ErrEmptyPassword = errors.New("password is empty")
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrUnknownScheme is returned when no registered scheme recognises a hash.
	ErrUnknownScheme = errors.New("unknown password hash scheme")
)

// Hasher is the capability every password scheme provides.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password string, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

type scheme interface {
	Hasher
	handles(encodedHash string) bool
}

// Chain hashes with a primary scheme and verifies any hash produced by the
// primary or one of the legacy schemes. A hash from a legacy scheme always
// needs an upgrade.
type Chain struct {
	primary scheme
	legacy  []scheme
}

// NewChain builds the default chain: Argon2id for new hashes, bcrypt accepted
// for verification.
func NewChain(cfg Config) (*Chain, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &Chain{primary: a, legacy: []scheme{NewBcrypt(0)}}, nil
}

func (c *Chain) Hash(password string) (string, error) {
	return c.primary.Hash(password)
}

func (c *Chain) Verify(password string, encodedHash string) (bool, error) {
	s, err := c.schemeFor(encodedHash)
	if err != nil {
		return false, err
	}
	return s.Verify(password, encodedHash)
}

func (c *Chain) NeedsUpgrade(encodedHash string) (bool, error) {
	if c.primary.handles(encodedHash) {
		return c.primary.NeedsUpgrade(encodedHash)
	}
	if _, err := c.schemeFor(encodedHash); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Chain) schemeFor(encodedHash string) (scheme, error) {
	if c.primary.handles(encodedHash) {
		return c.primary, nil
	}
	for _, s := range c.legacy {
		if s.handles(encodedHash) {
			return s, nil
		}
	}
	return nil, ErrUnknownScheme
}
