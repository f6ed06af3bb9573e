package compiler

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/roach88/sierra-toolchain/internal/casm"
	"github.com/roach88/sierra-toolchain/internal/extensions"
	"github.com/roach88/sierra-toolchain/internal/metadata"
	"github.com/roach88/sierra-toolchain/internal/sierra"
)

// cell is a memory location. AP cells are kept as an absolute position
// within an ap epoch so they stay valid while ap moves by known amounts;
// FP cells are a plain fp offset.
type cell struct {
	reg   casm.Register
	epoch int
	pos   int
}

func apCell(st metadata.ApState, pos int) cell {
	return cell{reg: casm.AP, epoch: st.Epoch, pos: pos}
}

func fpCell(offset int) cell { return cell{reg: casm.FP, pos: offset} }

// at renders the cell relative to the ap state the instruction runs at.
func (c cell) at(st metadata.ApState) (casm.CellRef, bool) {
	if c.reg == casm.FP {
		return casm.CellRef{Register: casm.FP, Offset: c.pos}, true
	}
	if c.epoch != st.Epoch {
		return casm.CellRef{}, false
	}
	return casm.CellRef{Register: casm.AP, Offset: c.pos - st.Offset}, true
}

type exprKind int

const (
	exprDeref exprKind = iota
	exprDoubleDeref
	exprImmediate
	exprBinOp
	// exprInvalid marks an ap-based value whose epoch ended.
	exprInvalid
)

// operand is a cell or an immediate.
type operand struct {
	isImm bool
	cell  cell
	imm   *big.Int
}

func (o operand) equal(p operand) bool {
	if o.isImm != p.isImm {
		return false
	}
	if o.isImm {
		return o.imm.Cmp(p.imm) == 0
	}
	return o.cell == p.cell
}

// cellExpr is the value of one cell of a variable. Arithmetic is deferred
// until the value is stored.
type cellExpr struct {
	kind   exprKind
	a      cell // deref, inner cell of a double deref, left operand of a binop
	offset int  // double deref
	imm    *big.Int
	op     extensions.BinaryOp
	b      operand
}

func derefExpr(c cell) cellExpr         { return cellExpr{kind: exprDeref, a: c} }
func immediateExpr(v *big.Int) cellExpr { return cellExpr{kind: exprImmediate, imm: v} }

func (e cellExpr) usesAp() bool {
	switch e.kind {
	case exprDeref, exprDoubleDeref:
		return e.a.reg == casm.AP
	case exprBinOp:
		return e.a.reg == casm.AP || (!e.b.isImm && e.b.cell.reg == casm.AP)
	default:
		return false
	}
}

func (e cellExpr) equal(o cellExpr) bool {
	if e.kind != o.kind {
		return false
	}
	switch e.kind {
	case exprDeref:
		return e.a == o.a
	case exprDoubleDeref:
		return e.a == o.a && e.offset == o.offset
	case exprImmediate:
		return e.imm.Cmp(o.imm) == 0
	case exprBinOp:
		return e.a == o.a && e.op == o.op && e.b.equal(o.b)
	default:
		return true
	}
}

// ref is the value of a variable: a type and one expression per cell.
type ref struct {
	ty    sierra.TypeID
	cells []cellExpr
}

func (r ref) equal(o ref) bool {
	if r.ty.ID != o.ty.ID || len(r.cells) != len(o.cells) {
		return false
	}
	for i := range r.cells {
		if !r.cells[i].equal(o.cells[i]) {
			return false
		}
	}
	return true
}

// env maps live variables to their values.
type env map[uint64]ref

func (e env) clone() env {
	out := make(env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

func (e env) equal(o env) bool {
	if len(e) != len(o) {
		return false
	}
	for k, v := range e {
		w, ok := o[k]
		if !ok || !v.equal(w) {
			return false
		}
	}
	return true
}

// invalidateAp marks every ap-based value as unusable.
func (e env) invalidateAp() env {
	out := make(env, len(e))
	for k, v := range e {
		cells := make([]cellExpr, len(v.cells))
		for i, c := range v.cells {
			if c.usesAp() {
				c = cellExpr{kind: exprInvalid}
			}
			cells[i] = c
		}
		out[k] = ref{ty: v.ty, cells: cells}
	}
	return out
}

// names lists the live variables in id order.
func (e env) names() string {
	ids := make([]int, 0, len(e))
	for k := range e {
		ids = append(ids, int(k))
	}
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("[%d]", id)
	}
	return strings.Join(parts, ", ")
}
