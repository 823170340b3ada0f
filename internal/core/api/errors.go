package api

// Error mapping is done in the handlers.
// Auth errors mapped in auth package interceptor.
// Malformed requests and oversized payloads map to INVALID_ARGUMENT.
// Capability failures (classifier, temp files) map to INTERNAL.
// Context timeouts map to DEADLINE_EXCEEDED.
// Journal errors are logged, never returned.
