// Package metadata computes the ap-change metadata of a validated program:
// the allocation pointer state at every reachable statement and the total ap
// change of every function.
//
// Gas metadata is not computed. The compiler only relies on ap changes.
package metadata

import (
	"fmt"
	"sort"

	"github.com/roach88/sierra-toolchain/internal/extensions"
	"github.com/roach88/sierra-toolchain/internal/registry"
	"github.com/roach88/sierra-toolchain/internal/sierra"
)

// ApChange is the total ap displacement of a function: a known number of
// cells, or unknown.
type ApChange struct {
	Known bool
	Value int
}

// Unknown is the ap change of a function whose displacement cannot be
// determined statically.
var Unknown = ApChange{}

// KnownChange is a fixed ap change of n cells.
func KnownChange(n int) ApChange { return ApChange{Known: true, Value: n} }

func (c ApChange) String() string {
	if !c.Known {
		return "Unknown"
	}
	return fmt.Sprintf("Known(%d)", c.Value)
}

// ApState is the allocation pointer at a statement, relative to the base of
// its epoch. A new epoch starts whenever ap moves by an unknown amount;
// epoch 0 starts at function entry.
type ApState struct {
	Epoch    int
	Offset   int
	Tracking bool
}

// Error reports ap-change metadata that cannot be computed.
type Error struct {
	Statement sierra.StatementIdx
	Message   string
}

func (e *Error) Error() string { return e.Message }

// Metadata is the result of Compute.
type Metadata struct {
	functions map[uint64]ApChange
	states    []ApState
	reached   []bool
	owners    []int
	branches  [][]ApState
	program   *sierra.Program
}

// FunctionApChange returns the ap change of a function.
func (m *Metadata) FunctionApChange(id sierra.FunctionID) ApChange {
	return m.functions[id.ID]
}

// State returns the ap state at entry to statement idx, or false when no
// function reaches it.
func (m *Metadata) State(idx sierra.StatementIdx) (ApState, bool) {
	if idx < 0 || int(idx) >= len(m.states) || !m.reached[idx] {
		return ApState{}, false
	}
	return m.states[idx], true
}

// BranchState returns the ap state right after branch b of statement idx is
// taken, before it joins with other edges at the branch target.
func (m *Metadata) BranchState(idx sierra.StatementIdx, b int) (ApState, bool) {
	if idx < 0 || int(idx) >= len(m.branches) || b < 0 || b >= len(m.branches[idx]) {
		return ApState{}, false
	}
	return m.branches[idx][b], true
}

// Owner returns the function whose body contains statement idx.
func (m *Metadata) Owner(idx sierra.StatementIdx) (*sierra.Function, bool) {
	if idx < 0 || int(idx) >= len(m.states) || !m.reached[idx] {
		return nil, false
	}
	return &m.program.Funcs[m.owners[idx]], true
}

type resolveStatus int

const (
	unresolved resolveStatus = iota
	resolving
	resolved
)

type computer struct {
	reg       *registry.Registry
	program   *sierra.Program
	funcIndex map[uint64]int
	status    []resolveStatus
	md        *Metadata
}

// Compute derives the metadata of a program from its registry. Functions are
// resolved depth first in declaration order; a call into a function that is
// still being resolved has an unknown ap change.
func Compute(reg *registry.Registry) (*Metadata, error) {
	program := reg.Program()
	n := len(program.Statements)
	c := &computer{
		reg:       reg,
		program:   program,
		funcIndex: make(map[uint64]int, len(program.Funcs)),
		status:    make([]resolveStatus, len(program.Funcs)),
		md: &Metadata{
			functions: make(map[uint64]ApChange, len(program.Funcs)),
			states:    make([]ApState, n),
			reached:   make([]bool, n),
			owners:    make([]int, n),
			branches:  make([][]ApState, n),
			program:   program,
		},
	}
	for i, fn := range program.Funcs {
		c.funcIndex[fn.ID.ID] = i
	}
	for i := range program.Funcs {
		if err := c.resolve(i); err != nil {
			return nil, err
		}
	}
	return c.md, nil
}

func (c *computer) resolve(fnIdx int) error {
	if c.status[fnIdx] != unresolved {
		return nil
	}
	c.status[fnIdx] = resolving
	change, err := c.walk(fnIdx)
	if err != nil {
		return err
	}
	c.md.functions[c.program.Funcs[fnIdx].ID.ID] = change
	c.status[fnIdx] = resolved
	return nil
}

func (c *computer) calleeChange(id sierra.FunctionID) (ApChange, error) {
	fnIdx, ok := c.funcIndex[id.ID]
	if !ok {
		return Unknown, nil
	}
	if err := c.resolve(fnIdx); err != nil {
		return Unknown, err
	}
	if c.status[fnIdx] != resolved {
		return Unknown, nil
	}
	return c.md.functions[id.ID], nil
}

// walk propagates ap states through one function body until no state
// changes, then derives the function's ap change from its returns.
func (c *computer) walk(fnIdx int) (ApChange, error) {
	fn := &c.program.Funcs[fnIdx]
	n := len(c.program.Statements)
	if int(fn.EntryPoint) >= n {
		return Unknown, nil
	}

	pending := []sierra.StatementIdx{}
	push := func(idx sierra.StatementIdx) {
		i := sort.Search(len(pending), func(i int) bool { return pending[i] >= idx })
		if i < len(pending) && pending[i] == idx {
			return
		}
		pending = append(pending, 0)
		copy(pending[i+1:], pending[i:])
		pending[i] = idx
	}

	if _, err := c.merge(fn.EntryPoint, ApState{Tracking: true}, fnIdx); err != nil {
		return Unknown, err
	}
	push(fn.EntryPoint)

	var returns []sierra.StatementIdx
	for len(pending) > 0 {
		idx := pending[0]
		pending = pending[1:]
		stmt := c.program.Statements[idx]
		state := c.md.states[idx]

		if stmt.Kind == sierra.StatementReturn {
			returns = append(returns, idx)
			continue
		}

		lib, _ := c.reg.Libfunc(stmt.Invocation.LibfuncID)
		after := make([]ApState, len(stmt.Invocation.Branches))
		c.md.branches[idx] = after
		for b, branch := range stmt.Invocation.Branches {
			next, err := c.advance(idx, state, lib.Signature.Branches[b].ApChange)
			if err != nil {
				return Unknown, err
			}
			after[b] = next
			target := branch.Target.Resolve(idx)
			if int(target) >= n {
				return Unknown, &Error{
					Statement: idx,
					Message:   fmt.Sprintf("statement %s falls through past the end of the program", idx),
				}
			}
			changed, err := c.merge(target, next, fnIdx)
			if err != nil {
				return Unknown, err
			}
			if changed {
				push(target)
			}
		}
	}

	return c.functionChange(returns), nil
}

func (c *computer) functionChange(returns []sierra.StatementIdx) ApChange {
	if len(returns) == 0 {
		return Unknown
	}
	offset := -1
	for _, idx := range returns {
		st := c.md.states[idx]
		if st.Epoch != 0 || (offset >= 0 && st.Offset != offset) {
			return Unknown
		}
		offset = st.Offset
	}
	return KnownChange(offset)
}

// Epochs are numbered by the statement that opens them: odd ids after a
// statement, even ids at a join. Function entry is epoch 0.
func epochAfter(idx sierra.StatementIdx) int { return 2*(int(idx)+1) + 1 }

func epochAtJoin(idx sierra.StatementIdx) int { return 2 * (int(idx) + 1) }

func (c *computer) advance(idx sierra.StatementIdx, s ApState, ap extensions.ApChange) (ApState, error) {
	switch ap.Kind {
	case extensions.ApKnown:
		s.Offset += ap.Value
	case extensions.ApFunctionCall:
		change, err := c.calleeChange(ap.Callee)
		if err != nil {
			return s, err
		}
		if change.Known {
			s.Offset += change.Value + 2
		} else {
			s = ApState{Epoch: epochAfter(idx), Tracking: s.Tracking}
		}
	case extensions.ApEnableTracking:
		s = ApState{Epoch: epochAfter(idx), Tracking: true}
	case extensions.ApDisableTracking:
		s.Tracking = false
	}
	return s, nil
}

// merge records state s flowing into statement idx and reports whether the
// recorded state changed.
func (c *computer) merge(idx sierra.StatementIdx, s ApState, fnIdx int) (bool, error) {
	md := c.md
	if !md.reached[idx] {
		md.reached[idx] = true
		md.states[idx] = s
		md.owners[idx] = fnIdx
		return true, nil
	}
	if md.owners[idx] != fnIdx {
		return false, &Error{
			Statement: idx,
			Message: fmt.Sprintf("statement %s is reachable from both %s and %s",
				idx, c.program.Funcs[md.owners[idx]].ID, c.program.Funcs[fnIdx].ID),
		}
	}
	cur := md.states[idx]
	if cur == s {
		return false, nil
	}
	if cur.Tracking && s.Tracking {
		return false, &Error{
			Statement: idx,
			Message:   fmt.Sprintf("ap change mismatch at statement %s", idx),
		}
	}
	joined := ApState{Epoch: epochAtJoin(idx), Tracking: cur.Tracking && s.Tracking}
	if joined == cur {
		return false, nil
	}
	md.states[idx] = joined
	return true, nil
}
