package cachekey

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/outcache/internal/hashing"
)

func hashOf(s string) hashing.HashCode {
	return hashing.Sum(hashing.NewKeyHash, []byte(s))
}

type keyParts struct {
	impl    Implementation
	actions []Implementation
	inputs  []NamedHash
	outputs []string
}

func defaultParts() keyParts {
	return keyParts{
		impl:    Implementation{TypeName: "compile-go", OriginHash: hashOf("toolchain-1.25")},
		actions: []Implementation{{TypeName: "vet", OriginHash: hashOf("vet")}},
		inputs: []NamedHash{
			{Name: "flags", Hash: hashOf("-trimpath")},
			{Name: "sources", Hash: hashOf("main.go")},
		},
		outputs: []string{"binary", "log"},
	}
}

func buildKey(b KeyBuilder, p keyParts) Key {
	b.AppendImplementation(p.impl)
	b.AppendActionImplementations(p.actions)
	for _, in := range p.inputs {
		b.AppendInputHash(in.Name, in.Hash)
	}
	for _, out := range p.outputs {
		b.AppendOutputPropertyName(out)
	}

	return b.Build()
}

func TestBuilder_Deterministic(t *testing.T) {
	k1 := buildKey(NewBuilder(), defaultParts())
	k2 := buildKey(NewBuilder(), defaultParts())

	require.True(t, k1.Valid())
	assert.Equal(t, k1.Hash(), k2.Hash())
	assert.Len(t, k1.Hash(), 32, "keys should be 256-bit")
}

func TestBuilder_Sensitivity(t *testing.T) {
	base := buildKey(NewBuilder(), defaultParts())

	tests := []struct {
		name   string
		mutate func(p *keyParts)
	}{
		{"implementation type", func(p *keyParts) { p.impl.TypeName = "compile-c" }},
		{"implementation origin", func(p *keyParts) { p.impl.OriginHash = hashOf("toolchain-1.26") }},
		{"action origin", func(p *keyParts) { p.actions[0].OriginHash = hashOf("vet-2") }},
		{"extra action", func(p *keyParts) {
			p.actions = append(p.actions, Implementation{TypeName: "lint", OriginHash: hashOf("lint")})
		}},
		{"input hash", func(p *keyParts) { p.inputs[1].Hash = hashOf("main2.go") }},
		{"input name", func(p *keyParts) { p.inputs[0].Name = "flagz" }},
		{"input order", func(p *keyParts) { p.inputs[0], p.inputs[1] = p.inputs[1], p.inputs[0] }},
		{"output name", func(p *keyParts) { p.outputs[1] = "logs" }},
		{"output removed", func(p *keyParts) { p.outputs = p.outputs[:1] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := defaultParts()
			tt.mutate(&parts)

			key := buildKey(NewBuilder(), parts)
			require.True(t, key.Valid())
			assert.NotEqual(t, base.Hash(), key.Hash())
		})
	}
}

func TestBuilder_ActionDoesNotCollideWithInput(t *testing.T) {
	withAction := NewBuilder()
	withAction.AppendImplementation(Implementation{TypeName: "t", OriginHash: hashOf("t")})
	withAction.AppendActionImplementations([]Implementation{{TypeName: "x", OriginHash: hashOf("x")}})

	withInput := NewBuilder()
	withInput.AppendImplementation(Implementation{TypeName: "t", OriginHash: hashOf("t")})
	withInput.AppendActionImplementations(nil)
	withInput.AppendInputHash("x", hashOf("x"))

	assert.NotEqual(t, withAction.Build().Hash(), withInput.Build().Hash())
}

func TestBuilder_UnknownOrigin(t *testing.T) {
	t.Run("implementation", func(t *testing.T) {
		parts := defaultParts()
		parts.impl.OriginHash = nil

		key := buildKey(NewBuilder(), parts)
		assert.False(t, key.Valid())
		assert.Nil(t, key.Hash())
		assert.Equal(t, "INVALID", key.String())
		assert.Empty(t, key.Digest())

		// Diagnostics are still available
		require.NotNil(t, key.Inputs().Implementation)
		assert.Equal(t, "compile-go", key.Inputs().Implementation.TypeName)
		assert.Len(t, key.Inputs().InputHashes, 2)
	})

	t.Run("action", func(t *testing.T) {
		parts := defaultParts()
		parts.actions[0].OriginHash = nil

		assert.False(t, buildKey(NewBuilder(), parts).Valid())
	})

	t.Run("input property", func(t *testing.T) {
		b := NewBuilder()
		b.AppendImplementation(defaultParts().impl)
		b.AppendInputPropertyFromUnknownOrigin("generated")

		key := b.Build()
		assert.False(t, key.Valid())
		assert.Equal(t, []string{"generated"}, key.Inputs().InputPropertiesFromUnknownOrigin)
	})
}

func TestBuilder_InputsDoNotAffectHash(t *testing.T) {
	b := NewBuilder()
	key := buildKey(b, defaultParts())

	inputs := key.Inputs()
	assert.Equal(t, []string{"binary", "log"}, inputs.OutputPropertyNames)
	assert.Equal(t, "sources", inputs.InputHashes[1].Name)

	// Mutating the returned record must not leak into the key
	inputs.OutputPropertyNames[0] = "changed"
	inputs.InputHashes[0].Name = "changed"
	inputs.Implementation.TypeName = "changed"

	again := key.Inputs()
	assert.Equal(t, "binary", again.OutputPropertyNames[0])
	assert.Equal(t, "flags", again.InputHashes[0].Name)
	assert.Equal(t, defaultParts().impl.TypeName, again.Implementation.TypeName)
}

func TestKey_Digest(t *testing.T) {
	key := buildKey(NewBuilder(), defaultParts())

	d := key.Digest()
	require.NoError(t, d.Validate())
	assert.Equal(t, key.String(), d.Encoded())

	parsed, err := ParseDigest(d.String())
	require.NoError(t, err)
	assert.Equal(t, key.String(), parsed)

	parsed, err = ParseDigest(key.String())
	require.NoError(t, err)
	assert.Equal(t, key.String(), parsed)

	_, err = ParseDigest("nonsense")
	assert.Error(t, err)
}

func TestDebugBuilder(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	debugKey := buildKey(NewDebugBuilder(NewBuilder(), logger, slog.LevelDebug, ":app:compile"), defaultParts())
	plainKey := buildKey(NewBuilder(), defaultParts())

	assert.Equal(t, plainKey.Hash(), debugKey.Hash(), "logging must not influence the hash")

	out := buf.String()
	assert.Contains(t, out, "appending implementation to build cache key")
	assert.Contains(t, out, "property=sources")
	assert.Contains(t, out, "property=binary")
	assert.Contains(t, out, "key="+plainKey.String())
	assert.Contains(t, out, "unit=:app:compile")
}

func TestDebugBuilder_InvalidKeyDumpsInputs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	b := NewDebugBuilder(NewBuilder(), logger, slog.LevelDebug, "unit")
	b.AppendImplementation(Implementation{TypeName: "mystery"})

	key := b.Build()
	assert.False(t, key.Valid())
	assert.Contains(t, buf.String(), "not cacheable")
	assert.Contains(t, buf.String(), "mystery")
}
