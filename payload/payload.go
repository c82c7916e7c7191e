// Package payload implements the zero-copy-when-possible view over
// incoming fabric bytes handed to a subscription callback.
package payload

// Kind tags which representation a View holds.
type Kind int

const (
	// Empty means the sample carried no bytes.
	Empty Kind = iota
	// Contiguous means the view retains a reference to a single fabric
	// slice without copying.
	Contiguous
	// Coalesced means the view owns a freshly allocated, concatenated
	// byte slice because the fabric delivered more than one backing
	// slice.
	Coalesced
)

// Retained is the minimal capability a fabric byte container must
// expose so a contiguous View can keep it alive without copying:
// cloning bumps a refcount, Release drops it.
type Retained interface {
	Clone() Retained
	Release()
	Bytes() []byte
}

// View is a tagged union over empty / contiguous / coalesced payload
// representations. The zero value is Empty.
type View struct {
	kind     Kind
	data     []byte
	retained Retained
}

// FromSlices constructs a View from the fabric's backing slices. Zero
// slices produces Empty; exactly one slice retains a clone of the
// fabric bytes (no copy); more than one concatenates into an owned
// buffer (the only allocating path).
func FromSlices(slices [][]byte, retain func([]byte) Retained) View {
	switch len(slices) {
	case 0:
		return View{kind: Empty}
	case 1:
		r := retain(slices[0])
		return View{kind: Contiguous, data: slices[0], retained: r}
	default:
		total := 0
		for _, s := range slices {
			total += len(s)
		}
		buf := make([]byte, 0, total)
		for _, s := range slices {
			buf = append(buf, s...)
		}
		return View{kind: Coalesced, data: buf}
	}
}

// FromContiguous is a convenience constructor for the common
// single-slice case, retaining a clone of ref for the View's lifetime.
func FromContiguous(data []byte, ref Retained) View {
	if len(data) == 0 {
		return View{kind: Empty}
	}
	return View{kind: Contiguous, data: data, retained: ref.Clone()}
}

// FromCoalesced wraps an already-owned byte slice.
func FromCoalesced(data []byte) View {
	if len(data) == 0 {
		return View{kind: Empty}
	}
	return View{kind: Coalesced, data: data}
}

// Kind reports which representation this view holds.
func (v View) Kind() Kind {
	return v.kind
}

// Data returns the view's bytes. Callers must not retain the slice
// past Release for a Contiguous view.
func (v View) Data() []byte {
	return v.data
}

// Size returns len(Data()).
func (v View) Size() int {
	return len(v.data)
}

// Empty reports whether the view carries no bytes.
func (v View) Empty() bool {
	return v.kind == Empty || len(v.data) == 0
}

// Release drops the retained fabric reference, if any. Safe to call on
// Empty or Coalesced views (no-op).
func (v View) Release() {
	if v.retained != nil {
		v.retained.Release()
	}
}
