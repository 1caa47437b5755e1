// Package logging provides structured logging built on zap.
//
// The Logger carries correlation data from context (trace IDs, memory scope
// identifiers, request IDs) into every entry, and the encoder redacts
// sensitive field names and value patterns before output.
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig())
//	logger.Info(ctx, "memory stored", zap.String("memory_id", id))
package logging
