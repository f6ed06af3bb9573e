package compiler

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/roach88/sierra-toolchain/internal/casm"
	"github.com/roach88/sierra-toolchain/internal/extensions"
	"github.com/roach88/sierra-toolchain/internal/felt"
	"github.com/roach88/sierra-toolchain/internal/metadata"
	"github.com/roach88/sierra-toolchain/internal/sierra"
)

// lower emits the code of one invocation and returns the output references
// of each branch.
func (b *builder) lower(idx sierra.StatementIdx, st metadata.ApState, lib *extensions.ConcreteLibfunc, inv sierra.Invocation, args []ref) ([][]ref, error) {
	sig := lib.Signature
	outTypes := func(branch int) []sierra.TypeID { return sig.Branches[branch].Outputs }
	single := func(cells ...[]cellExpr) [][]ref {
		refs := make([]ref, len(cells))
		for i, c := range cells {
			refs[i] = ref{ty: outTypes(0)[i], cells: c}
		}
		return [][]ref{refs}
	}

	switch lib.Kind {
	case extensions.LibFelt252Const, extensions.LibUintConst, extensions.LibConstAsImmediate:
		return single([]cellExpr{immediateExpr(lib.Value)}), nil

	case extensions.LibFelt252BinaryOp:
		expr, err := binaryOp(lib.Op, args[0].cells[0], args[1].cells[0])
		if err != nil {
			return nil, compileErr(idx, "%v", err)
		}
		return single([]cellExpr{expr}), nil

	case extensions.LibStoreTemp:
		cells := make([]cellExpr, len(args[0].cells))
		for k, c := range args[0].cells {
			at := metadata.ApState{Epoch: st.Epoch, Offset: st.Offset + k, Tracking: st.Tracking}
			insn, err := storeCell(c, at)
			if err != nil {
				return nil, compileErr(idx, "store_temp: %v", err)
			}
			b.emit(insn)
			cells[k] = derefExpr(apCell(st, st.Offset+k))
		}
		return single(cells), nil

	case extensions.LibRename, extensions.LibUintToFelt252, extensions.LibUnwrapNonZero:
		return single(args[0].cells), nil

	case extensions.LibDup:
		return single(args[0].cells, args[0].cells), nil

	case extensions.LibDrop:
		return [][]ref{nil}, nil

	case extensions.LibBranchAlign, extensions.LibDisableApTracking, extensions.LibEnableApTracking:
		return [][]ref{nil}, nil

	case extensions.LibJump:
		b.emitJump(casm.JumpRel(0), inv.Branches[0].Target.Statement)
		return [][]ref{nil}, nil

	case extensions.LibFelt252IsZero:
		cond, err := storedCell(args[0].cells[0], st)
		if err != nil {
			return nil, compileErr(idx, "felt252_is_zero: %v", err)
		}
		b.emitJump(casm.Jnz(0, cond), inv.Branches[1].Target.Statement)
		nonZero := ref{ty: outTypes(1)[0], cells: args[0].cells}
		return [][]ref{nil, {nonZero}}, nil

	case extensions.LibFunctionCall:
		return b.lowerCall(idx, st, lib, args)

	case extensions.LibWithdrawGas:
		return b.lowerWithdrawGas(idx, st, inv, args)

	case extensions.LibStructConstruct:
		var cells []cellExpr
		for _, a := range args {
			cells = append(cells, a.cells...)
		}
		return single(cells), nil

	case extensions.LibStructDeconstruct:
		outs := make([][]cellExpr, 0, len(outTypes(0)))
		k := 0
		for _, member := range outTypes(0) {
			size, err := b.info.Size(member)
			if err != nil {
				return nil, compileErr(idx, "%v", err)
			}
			outs = append(outs, args[0].cells[k:k+size])
			k += size
		}
		return single(outs...), nil

	case extensions.LibUnbox:
		if _, err := storedCell(args[0].cells[0], st); err != nil {
			return nil, compileErr(idx, "unbox: %v", err)
		}
		size, err := b.info.Size(lib.Type)
		if err != nil {
			return nil, compileErr(idx, "%v", err)
		}
		cells := make([]cellExpr, size)
		for i := range cells {
			cells[i] = cellExpr{kind: exprDoubleDeref, a: args[0].cells[0].a, offset: i}
		}
		return single(cells), nil

	case extensions.LibConstAsBox:
		pos := b.addConst(lib.Segment, lib.Value)
		i := b.emit(casm.Instruction{
			Kind:       casm.InsnAssertEq,
			Dst:        casm.CellRef{Register: casm.AP, Offset: 0},
			Res:        casm.ResOperand{Kind: casm.ResImmediate, Imm: big.NewInt(0)},
			ApPlusPlus: true,
		})
		b.relocs = append(b.relocs, relocation{insn: i, kind: relocConst, segment: lib.Segment, value: pos})
		return single([]cellExpr{derefExpr(apCell(st, st.Offset))}), nil
	}
	return nil, compileErr(idx, "libfunc %s has no lowering", inv.LibfuncID)
}

func (b *builder) lowerCall(idx sierra.StatementIdx, st metadata.ApState, lib *extensions.ConcreteLibfunc, args []ref) ([][]ref, error) {
	if err := onTopOfStack(st, args); err != nil {
		return nil, compileErr(idx, "call arguments %v", err)
	}
	b.emitJump(casm.CallRel(0), lib.Callee.EntryPoint)

	after, _ := b.md.BranchState(idx, 0)
	rets := lib.Signature.Branches[0].Outputs
	total, err := b.info.TotalSize(rets)
	if err != nil {
		return nil, compileErr(idx, "%v", err)
	}
	refs := make([]ref, len(rets))
	pos := after.Offset - total
	for i, ty := range rets {
		size, _ := b.info.Size(ty)
		cells := make([]cellExpr, size)
		for k := range cells {
			cells[k] = derefExpr(apCell(after, pos))
			pos++
		}
		refs[i] = ref{ty: ty, cells: cells}
	}
	return [][]ref{refs}, nil
}

// lowerWithdrawGas copies the gas counter to the top of the stack and
// branches on it: a nonzero counter skips over the jump to the failure
// branch.
func (b *builder) lowerWithdrawGas(idx sierra.StatementIdx, st metadata.ApState, inv sierra.Invocation, args []ref) ([][]ref, error) {
	rc, gas := args[0], args[1]
	gasCell, err := storedCell(gas.cells[0], st)
	if err != nil {
		return nil, compileErr(idx, "withdraw_gas: %v", err)
	}
	b.emit(casm.Instruction{
		Kind:       casm.InsnAssertEq,
		Dst:        casm.CellRef{Register: casm.AP, Offset: 0},
		Res:        casm.ResOperand{Kind: casm.ResDeref, Cell: gasCell},
		ApPlusPlus: true,
	})
	b.emit(casm.Jnz(4, casm.CellRef{Register: casm.AP, Offset: -1}))
	b.emitJump(casm.JumpRel(0), inv.Branches[1].Target.Statement)

	counter := ref{ty: gas.ty, cells: []cellExpr{derefExpr(apCell(st, st.Offset))}}
	return [][]ref{{rc, counter}, {rc, counter}}, nil
}

// storedCell renders a value that must already be in memory.
func storedCell(c cellExpr, st metadata.ApState) (casm.CellRef, error) {
	switch c.kind {
	case exprInvalid:
		return casm.CellRef{}, errLostAp
	case exprDeref:
		ref, ok := c.a.at(st)
		if !ok {
			return casm.CellRef{}, errLostAp
		}
		return ref, nil
	default:
		return casm.CellRef{}, fmt.Errorf("expected a stored value")
	}
}

var errLostAp = errors.New("value was lost across an unknown ap change")

func renderOperand(o operand, st metadata.ApState) (casm.DerefOrImmediate, error) {
	if o.isImm {
		return casm.Immediate(o.imm), nil
	}
	c, ok := o.cell.at(st)
	if !ok {
		return casm.DerefOrImmediate{}, errLostAp
	}
	return casm.Deref(c), nil
}

// storeCell writes one cell expression to [ap + 0] and advances ap.
func storeCell(c cellExpr, st metadata.ApState) (casm.Instruction, error) {
	top := casm.CellRef{Register: casm.AP, Offset: 0}
	switch c.kind {
	case exprInvalid:
		return casm.Instruction{}, errLostAp
	case exprImmediate:
		insn := casm.AssertEq(top, casm.ResOperand{Kind: casm.ResImmediate, Imm: c.imm})
		insn.ApPlusPlus = true
		return insn, nil
	case exprDeref, exprDoubleDeref:
		a, ok := c.a.at(st)
		if !ok {
			return casm.Instruction{}, errLostAp
		}
		res := casm.ResOperand{Kind: casm.ResDeref, Cell: a}
		if c.kind == exprDoubleDeref {
			res = casm.ResOperand{Kind: casm.ResDoubleDeref, Cell: a, Offset: c.offset}
		}
		insn := casm.AssertEq(top, res)
		insn.ApPlusPlus = true
		return insn, nil
	case exprBinOp:
		a, ok := c.a.at(st)
		if !ok {
			return casm.Instruction{}, errLostAp
		}
		bop, err := renderOperand(c.b, st)
		if err != nil {
			return casm.Instruction{}, err
		}
		var insn casm.Instruction
		switch c.op {
		case extensions.OpSub:
			// a - b is stored as a = [ap + 0] + b.
			insn = casm.AssertEq(a, casm.ResOperand{Kind: casm.ResBinOp, Cell: top, Op: casm.OpAdd, B: bop})
		case extensions.OpMul:
			insn = casm.AssertEq(top, casm.ResOperand{Kind: casm.ResBinOp, Cell: a, Op: casm.OpMul, B: bop})
		default:
			insn = casm.AssertEq(top, casm.ResOperand{Kind: casm.ResBinOp, Cell: a, Op: casm.OpAdd, B: bop})
		}
		insn.ApPlusPlus = true
		return insn, nil
	}
	return casm.Instruction{}, fmt.Errorf("unsupported value")
}

// binaryOp builds the deferred expression of a felt252 operation. Two
// immediates fold into one; otherwise the left operand must be in memory.
func binaryOp(op extensions.BinaryOp, a, b cellExpr) (cellExpr, error) {
	if a.kind == exprInvalid || b.kind == exprInvalid {
		return cellExpr{}, errLostAp
	}
	if a.kind == exprImmediate && b.kind == exprImmediate {
		x, y := felt.FromBigInt(a.imm), felt.FromBigInt(b.imm)
		var r felt.Felt
		switch op {
		case extensions.OpSub:
			r = x.Sub(y)
		case extensions.OpMul:
			r = x.Mul(y)
		default:
			r = x.Add(y)
		}
		return immediateExpr(r.Signed()), nil
	}
	if op != extensions.OpSub && a.kind == exprImmediate {
		a, b = b, a
	}
	if a.kind != exprDeref {
		return cellExpr{}, fmt.Errorf("left operand must be a stored value")
	}
	switch b.kind {
	case exprDeref:
		return cellExpr{kind: exprBinOp, op: op, a: a.a, b: operand{cell: b.a}}, nil
	case exprImmediate:
		if op == extensions.OpSub {
			neg := felt.FromBigInt(b.imm).Neg()
			return cellExpr{kind: exprBinOp, op: extensions.OpAdd, a: a.a, b: operand{isImm: true, imm: neg.Signed()}}, nil
		}
		return cellExpr{kind: exprBinOp, op: op, a: a.a, b: operand{isImm: true, imm: b.imm}}, nil
	default:
		return cellExpr{}, fmt.Errorf("right operand must be a stored value or an immediate")
	}
}
