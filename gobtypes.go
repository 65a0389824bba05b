package main

import (
	"encoding/gob"

	"github.com/tonimelisma/fstrackd/internal/fsmonitor"
)

// Every non-builtin type this CLI ever puts into a persistent queue must be
// registered here, once, at process start. encode() additionally registers
// a payload's concrete type on every Put so a process that only writes (and
// never reads) still produces decodable output, but that registration is
// local to the encoding process — a separate `queue get`/`peek` invocation
// never calls encode() at all, so without this init it would fail to
// decode an fsmonitor.Event with a "name not registered for interface"
// error. watch.go is the only producer of non-builtin payloads today.
func init() {
	gob.Register(fsmonitor.Event{})
}
