package signing

// SecretKeyProvider hands back the raw operator-configured secret used to
// derive the Toll- and Visa-signing sub-keys. Implementations must
// guarantee the returned slice outlives all readers.
type SecretKeyProvider interface {
	ReadSecretKey() []byte
}

// InMemoryProvider is a SecretKeyProvider backed by a key held in process
// memory. Not advised for production key management, but matches the
// configuration file's "InMemory" provider form.
type InMemoryProvider struct {
	key []byte
}

// NewInMemoryProvider wraps key.
func NewInMemoryProvider(key []byte) InMemoryProvider {
	return InMemoryProvider{key: key}
}

// ReadSecretKey returns the wrapped key.
func (p InMemoryProvider) ReadSecretKey() []byte {
	return p.key
}
