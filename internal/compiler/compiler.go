// Package compiler lowers a validated Sierra program to CASM.
//
// Statements are lowered in index order. Each statement starts from the
// references (variable to cell expression) it inherits from its
// predecessors and from the ap state metadata gives it; arithmetic is
// deferred until a value is stored, so most libfuncs emit no code at all.
// Jump and call targets are statement indices until relocation replaces them
// with relative offsets in words.
package compiler

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/roach88/sierra-toolchain/internal/casm"
	"github.com/roach88/sierra-toolchain/internal/metadata"
	"github.com/roach88/sierra-toolchain/internal/registry"
	"github.com/roach88/sierra-toolchain/internal/sierra"
	"github.com/roach88/sierra-toolchain/internal/typesize"
)

type relocKind int

const (
	relocStatement relocKind = iota
	relocConst
)

// relocation patches an instruction's immediate once code offsets are known.
type relocation struct {
	insn    int
	kind    relocKind
	target  sierra.StatementIdx // relocStatement
	segment int                 // relocConst
	value   int                 // relocConst: index of the value within its segment
}

type constSegment struct {
	values []*big.Int
	index  map[string]int
}

type builder struct {
	program  *sierra.Program
	reg      *registry.Registry
	info     *typesize.Info
	md       *metadata.Metadata
	insns    []casm.Instruction
	relocs   []relocation
	stmtInsn []int
	envs     []env
	consts   map[int]*constSegment
}

// Compile lowers the program info was built from, using the ap-change
// metadata md.
func Compile(info *typesize.Info, md *metadata.Metadata, cfg Config) (*casm.Program, error) {
	reg := info.Registry
	program := reg.Program()

	if cfg.GasUsageCheck {
		if err := checkGasUsage(reg, md); err != nil {
			return nil, err
		}
	}

	n := len(program.Statements)
	b := &builder{
		program:  program,
		reg:      reg,
		info:     info,
		md:       md,
		stmtInsn: make([]int, n),
		envs:     make([]env, n),
		consts:   make(map[int]*constSegment),
	}
	if err := b.initEntries(); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		if err := b.statement(sierra.StatementIdx(i)); err != nil {
			return nil, err
		}
	}

	out := b.relocate()
	if cfg.MaxBytecodeSize > 0 && out.BytecodeSize() > cfg.MaxBytecodeSize {
		return nil, fmt.Errorf("%w: %d words, limit is %d", ErrInstructionLimitExceeded, out.BytecodeSize(), cfg.MaxBytecodeSize)
	}
	return out, nil
}

// initEntries binds function params at their fp offsets: the last param
// cell sits at [fp - 3], below the return pc and saved fp.
func (b *builder) initEntries() error {
	for _, fn := range b.program.Funcs {
		if int(fn.EntryPoint) >= len(b.program.Statements) {
			continue
		}
		total, err := b.info.TotalSize(fn.Signature.ParamTypes)
		if err != nil {
			return compileErr(fn.EntryPoint, "%v", err)
		}
		e := make(env, len(fn.Params))
		k := 0
		for _, p := range fn.Params {
			size, _ := b.info.Size(p.Type)
			cells := make([]cellExpr, size)
			for i := range cells {
				cells[i] = derefExpr(fpCell(k - total - 2))
				k++
			}
			e[p.ID.ID] = ref{ty: p.Type, cells: cells}
		}
		b.envs[fn.EntryPoint] = e
	}
	return nil
}

func (b *builder) emit(insn casm.Instruction) int {
	b.insns = append(b.insns, insn)
	return len(b.insns) - 1
}

func (b *builder) emitJump(insn casm.Instruction, target sierra.StatementIdx) {
	i := b.emit(insn)
	b.relocs = append(b.relocs, relocation{insn: i, kind: relocStatement, target: target})
}

func (b *builder) statement(idx sierra.StatementIdx) error {
	st, reached := b.md.State(idx)
	e := b.envs[idx]
	if !reached || e == nil {
		return compileErr(idx, "statement is unreachable")
	}
	b.stmtInsn[idx] = len(b.insns)

	stmt := b.program.Statements[idx]
	if stmt.Kind == sierra.StatementReturn {
		return b.lowerReturn(idx, st, e, stmt.Return)
	}

	inv := stmt.Invocation
	lib, _ := b.reg.Libfunc(inv.LibfuncID)
	args, rest, err := takeArgs(idx, e, inv.Args, lib.Signature.Params)
	if err != nil {
		return err
	}
	outputs, err := b.lower(idx, st, lib, inv, args)
	if err != nil {
		return err
	}
	for i, branch := range inv.Branches {
		if err := b.flow(idx, i, rest, branch, outputs[i]); err != nil {
			return err
		}
	}
	return nil
}

// takeArgs removes the invocation args from the references and checks them
// against the param types.
func takeArgs(idx sierra.StatementIdx, e env, vars []sierra.VarID, params []sierra.TypeID) ([]ref, env, error) {
	rest := e.clone()
	args := make([]ref, len(vars))
	for i, v := range vars {
		r, ok := rest[v.ID]
		if !ok {
			return nil, nil, compileErr(idx, "variable %s is not defined", v)
		}
		if r.ty.ID != params[i].ID {
			return nil, nil, compileErr(idx, "variable %s has type %s, expected %s", v, r.ty, params[i])
		}
		delete(rest, v.ID)
		args[i] = r
	}
	return args, rest, nil
}

// flow passes the references of branch bi to its target statement.
func (b *builder) flow(idx sierra.StatementIdx, bi int, rest env, branch sierra.BranchInfo, outputs []ref) error {
	next := rest.clone()
	for i, v := range branch.Results {
		if _, exists := next[v.ID]; exists {
			return compileErr(idx, "variable %s is overridden", v)
		}
		next[v.ID] = outputs[i]
	}

	target := branch.Target.Resolve(idx)
	after, _ := b.md.BranchState(idx, bi)
	at, _ := b.md.State(target)
	if after.Epoch != at.Epoch {
		next = next.invalidateAp()
	}

	if existing := b.envs[target]; existing != nil {
		if !existing.equal(next) {
			return compileErr(target, "inconsistent references (%s)", next.names())
		}
		return nil
	}
	if target <= idx {
		return compileErr(target, "backward jump from statement %s reaches a statement with no references", idx)
	}
	b.envs[target] = next
	return nil
}

func (b *builder) lowerReturn(idx sierra.StatementIdx, st metadata.ApState, e env, vars []sierra.VarID) error {
	fn, _ := b.md.Owner(idx)
	rets := fn.Signature.RetTypes
	if len(vars) != len(rets) {
		return compileErr(idx, "function %s returns %d values, got %d", fn.ID, len(rets), len(vars))
	}
	values, rest, err := takeArgs(idx, e, vars, rets)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return compileErr(idx, "variables %s are still alive at return", rest.names())
	}
	if err := onTopOfStack(st, values); err != nil {
		return compileErr(idx, "return values %v", err)
	}
	b.emit(casm.Ret())
	return nil
}

// onTopOfStack checks that values occupy the cells right below ap, in order.
func onTopOfStack(st metadata.ApState, values []ref) error {
	var cells []cellExpr
	for _, v := range values {
		cells = append(cells, v.cells...)
	}
	for k, c := range cells {
		want := apCell(st, st.Offset-len(cells)+k)
		if c.kind != exprDeref || c.a != want {
			return fmt.Errorf("are not on top of the stack (cell %d)", k)
		}
	}
	return nil
}

func (b *builder) addConst(segment int, v *big.Int) int {
	seg, ok := b.consts[segment]
	if !ok {
		seg = &constSegment{index: make(map[string]int)}
		b.consts[segment] = seg
	}
	key := v.String()
	if i, ok := seg.index[key]; ok {
		return i
	}
	seg.values = append(seg.values, v)
	seg.index[key] = len(seg.values) - 1
	return len(seg.values) - 1
}

// relocate resolves jump targets and const addresses and assembles the
// final program.
func (b *builder) relocate() *casm.Program {
	pcs := make([]int, len(b.insns)+1)
	for i, insn := range b.insns {
		pcs[i+1] = pcs[i] + insn.Size()
	}
	codeSize := pcs[len(b.insns)]

	stmtPC := func(idx sierra.StatementIdx) int {
		if int(idx) >= len(b.stmtInsn) {
			return codeSize
		}
		return pcs[b.stmtInsn[idx]]
	}

	indices := make([]int, 0, len(b.consts))
	for i := range b.consts {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	out := &casm.Program{}
	segOffsets := make(map[int]int, len(indices))
	offset := codeSize
	for _, i := range indices {
		seg := b.consts[i]
		segOffsets[i] = offset
		out.ConstsInfo.Segments = append(out.ConstsInfo.Segments, casm.ConstSegment{
			Index:      i,
			CodeOffset: offset,
			Values:     seg.values,
		})
		offset += len(seg.values)
	}

	for _, r := range b.relocs {
		insn := &b.insns[r.insn]
		switch r.kind {
		case relocStatement:
			insn.Target = casm.Immediate(big.NewInt(int64(stmtPC(r.target) - pcs[r.insn])))
		case relocConst:
			addr := segOffsets[r.segment] + r.value
			insn.Res = casm.ResOperand{Kind: casm.ResImmediate, Imm: big.NewInt(int64(addr))}
		}
	}
	out.Instructions = b.insns
	return out
}
