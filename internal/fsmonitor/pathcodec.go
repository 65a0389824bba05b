package fsmonitor

import "golang.org/x/text/unicode/norm"

// PathCodec decodes a raw path reported by the kernel facility into the
// canonical string form used throughout the engine. It is an injected
// dependency of the event processor rather than a process-global (spec.md
// §9's design note): this avoids test pollution and lets a multi-root
// deployment mix encodings if it ever needs to.
type PathCodec interface {
	Decode(raw string) string
}

// nfcPathCodec normalizes paths to NFC, matching the teacher's handling of
// macOS's NFD-decomposed filenames so Shadow Index keys are stable across
// platforms.
type nfcPathCodec struct{}

// NewNFCPathCodec returns the default PathCodec: NFC normalization.
func NewNFCPathCodec() PathCodec { return nfcPathCodec{} }

func (nfcPathCodec) Decode(raw string) string { return norm.NFC.String(raw) }
