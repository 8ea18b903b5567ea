package bytecode

import "math/rand"

// Obfuscator scatters NOPs through the code so that identical sources need
// not produce identical modules. The same seed always yields the same
// output.
type Obfuscator struct {
	rng *rand.Rand
}

// NewObfuscator returns an obfuscator seeded with seed.
func NewObfuscator(seed int64) *Obfuscator {
	return &Obfuscator{rng: rand.New(rand.NewSource(seed))}
}

// Maybe writes a NOP with probability one half. A nil Obfuscator does
// nothing.
func (o *Obfuscator) Maybe(w *Writer) {
	if o == nil {
		return
	}
	if o.rng.Intn(2) == 0 {
		w.WriteOpcode(OpNop)
	}
}
