package cachekey

import "github.com/Norgate-AV/outcache/internal/hashing"

// Section tags keep an action from hashing like an input of the same name
const (
	kindImplementation byte = iota + 1
	kindAction
	kindInput
	kindOutput
)

// KeyBuilder collects the components of a cache key
type KeyBuilder interface {
	AppendImplementation(impl Implementation)
	AppendActionImplementations(actions []Implementation)
	AppendInputHash(name string, hash hashing.HashCode)
	AppendInputPropertyFromUnknownOrigin(name string)
	AppendOutputPropertyName(name string)
	Build() Key
}

// Builder is the default KeyBuilder
type Builder struct {
	hasher  *hashing.Builder
	inputs  Inputs
	invalid bool
}

// NewBuilder creates a builder hashing with SHA-256
func NewBuilder() *Builder {
	return &Builder{hasher: hashing.NewBuilder(hashing.NewKeyHash())}
}

// AppendImplementation adds the implementation of the work unit itself
func (b *Builder) AppendImplementation(impl Implementation) {
	b.inputs.Implementation = &impl
	b.appendImplementation(kindImplementation, impl)
}

// AppendActionImplementations adds the implementations of the unit's actions
func (b *Builder) AppendActionImplementations(actions []Implementation) {
	b.inputs.ActionImplementations = append(b.inputs.ActionImplementations, actions...)
	b.hasher.PutKind(kindAction)
	b.hasher.PutInt(int64(len(actions)))

	for _, action := range actions {
		b.appendImplementation(kindAction, action)
	}
}

func (b *Builder) appendImplementation(kind byte, impl Implementation) {
	if impl.Unknown() {
		b.invalid = true
	}

	b.hasher.PutKind(kind)
	b.hasher.PutString(impl.TypeName)
	b.hasher.PutHash(impl.OriginHash)
}

// AppendInputHash adds the hash of a named input property
func (b *Builder) AppendInputHash(name string, hash hashing.HashCode) {
	b.inputs.InputHashes = append(b.inputs.InputHashes, NamedHash{Name: name, Hash: hash})
	b.hasher.PutKind(kindInput)
	b.hasher.PutString(name)
	b.hasher.PutHash(hash)
}

// AppendInputPropertyFromUnknownOrigin records an input whose value was
// produced by code of unknown origin; the resulting key is not cacheable
func (b *Builder) AppendInputPropertyFromUnknownOrigin(name string) {
	b.inputs.InputPropertiesFromUnknownOrigin = append(b.inputs.InputPropertiesFromUnknownOrigin, name)
	b.invalid = true
}

// AppendOutputPropertyName adds the name of a declared output property
func (b *Builder) AppendOutputPropertyName(name string) {
	b.inputs.OutputPropertyNames = append(b.inputs.OutputPropertyNames, name)
	b.hasher.PutKind(kindOutput)
	b.hasher.PutString(name)
}

// Build returns the key. A key with an unknown implementation origin has no hash.
func (b *Builder) Build() Key {
	inputs := b.inputs.clone()

	if b.invalid {
		return Key{inputs: inputs}
	}

	return Key{hash: b.hasher.Hash(), inputs: inputs}
}
