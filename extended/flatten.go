package extended

import (
	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/vec"
)

// The defining systems work on vec.Stacked unknowns. Direct solvers want a
// flat dense view, so the extended operators are bridged through these
// helpers. They require every leaf to be vec.Dense, which is the case for
// the problems this package assembles.

func flatten(s vec.Stacked) vec.Dense {
	out := make(vec.Dense, 0, s.Len())
	for _, v := range s {
		switch leaf := v.(type) {
		case vec.Dense:
			out = append(out, leaf...)
		case vec.Stacked:
			out = append(out, flatten(leaf)...)
		default:
			panic("extended: stacked unknown with non-dense leaf")
		}
	}
	return out
}

func unflatten(d vec.Dense, template vec.Stacked) vec.Stacked {
	out := make(vec.Stacked, len(template))
	at := 0
	for i, v := range template {
		switch leaf := v.(type) {
		case vec.Dense:
			part := make(vec.Dense, len(leaf))
			copy(part, d[at:at+len(leaf)])
			out[i] = part
			at += len(leaf)
		case vec.Stacked:
			sub := unflatten(d[at:at+leaf.Len()], leaf)
			out[i] = sub
			at += leaf.Len()
		default:
			panic("extended: stacked unknown with non-dense leaf")
		}
	}
	return out
}

// flatOp exposes an operator on Stacked vectors as one on vec.Dense, so
// [linsolve.LU] and friends can materialize it.
type flatOp struct {
	inner    linsolve.Op
	template vec.Stacked
}

func (f flatOp) Apply(v vec.Vector) vec.Vector {
	s := unflatten(v.(vec.Dense), f.template)
	return flatten(f.inner.Apply(s).(vec.Stacked))
}
