package cachekey

import (
	"context"
	"log/slog"

	"github.com/davecgh/go-spew/spew"

	"github.com/Norgate-AV/outcache/internal/hashing"
)

// DebugBuilder logs every component before handing it to the wrapped builder
type DebugBuilder struct {
	delegate KeyBuilder
	logger   *slog.Logger
	level    slog.Level
	unit     string
}

// NewDebugBuilder wraps delegate. unit names the work unit in log records.
func NewDebugBuilder(delegate KeyBuilder, logger *slog.Logger, level slog.Level, unit string) *DebugBuilder {
	if logger == nil {
		logger = slog.Default()
	}

	return &DebugBuilder{delegate: delegate, logger: logger, level: level, unit: unit}
}

func (d *DebugBuilder) log(msg string, args ...any) {
	d.logger.Log(context.Background(), d.level, msg, append([]any{"unit", d.unit}, args...)...)
}

func (d *DebugBuilder) AppendImplementation(impl Implementation) {
	d.log("appending implementation to build cache key", "type", impl.TypeName, "origin", originString(impl))
	d.delegate.AppendImplementation(impl)
}

func (d *DebugBuilder) AppendActionImplementations(actions []Implementation) {
	for _, action := range actions {
		d.log("appending action implementation to build cache key", "type", action.TypeName, "origin", originString(action))
	}

	d.delegate.AppendActionImplementations(actions)
}

func (d *DebugBuilder) AppendInputHash(name string, hash hashing.HashCode) {
	d.log("appending input value fingerprint", "property", name, "hash", hash.String())
	d.delegate.AppendInputHash(name, hash)
}

func (d *DebugBuilder) AppendInputPropertyFromUnknownOrigin(name string) {
	d.log("non-cacheable input property, produced by unknown origin", "property", name)
	d.delegate.AppendInputPropertyFromUnknownOrigin(name)
}

func (d *DebugBuilder) AppendOutputPropertyName(name string) {
	d.log("appending output property name", "property", name)
	d.delegate.AppendOutputPropertyName(name)
}

func (d *DebugBuilder) Build() Key {
	key := d.delegate.Build()
	if key.Valid() {
		d.log("build cache key computed", "key", key.String())
		return key
	}

	d.log("build cache key is not cacheable", "inputs", spew.Sdump(key.Inputs()))
	return key
}

func originString(impl Implementation) string {
	if impl.Unknown() {
		return "unknown"
	}

	return impl.OriginHash.String()
}
