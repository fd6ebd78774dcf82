// Package timeouts defines shared timeout constants used by the N1X processes.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight work during graceful shutdown.
const Shutdown = 5 * time.Second

// Narrative caps a single narrative generation call. Room bookkeeping is
// committed before the call starts, so hitting this only drops the bot reply.
const Narrative = 20 * time.Second

// Storage caps a single durable room storage operation.
const Storage = 3 * time.Second

// Dial caps the terminal client's websocket and HTTP dials.
const Dial = 5 * time.Second
