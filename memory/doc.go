// Package memory provides bounds-checked views over guest linear memory.
//
// Guest memory is a single growable byte buffer owned by the engine. When the
// guest executes memory.grow the engine may move the buffer, which silently
// invalidates any slice taken from it earlier. Accessor hides this: every view
// it hands out is re-validated against the engine's current buffer and rebuilt
// if the buffer's identity changed.
//
//	acc := memory.NewAccessor(inst.Memory())
//	n, err := acc.ReadU32(ptr)      // bounds-checked
//	w := acc.Words()                // little-endian u32 view
//	h, err := w.At(ptr / 4)
//
// Out-of-range accesses return an errors.KindOutOfBounds error rather than
// reading neighbouring memory.
package memory
