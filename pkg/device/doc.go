// Package device defines the execution boundary the command engine hands work
// to: devices with a monotonic clock, per-queue execution contexts, contexts
// that own queues and user commands, and a platform registry.
//
// The engine never reaches for DefaultPlatform on its own; callers pass the
// device and context they want a queue bound to.
package device
