package compiler

import (
	"sort"

	"github.com/roach88/sierra-toolchain/internal/extensions"
	"github.com/roach88/sierra-toolchain/internal/metadata"
	"github.com/roach88/sierra-toolchain/internal/registry"
	"github.com/roach88/sierra-toolchain/internal/sierra"
)

// checkGasUsage rejects programs that can run forever without paying gas.
//
// The algorithm:
//  1. Build a statement graph from branch targets and call edges (caller
//     statement → callee entry point)
//  2. Drop every withdraw_gas statement, which breaks any cycle through it
//  3. Use Tarjan's algorithm to find strongly connected components
//  4. Report the first SCC with size > 1 or a self-loop, by lowest statement
func checkGasUsage(reg *registry.Registry, md *metadata.Metadata) error {
	graph := buildStatementGraph(reg, md)

	var cycles [][]int
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			sort.Ints(scc)
			cycles = append(cycles, scc)
		}
	}
	if len(cycles) == 0 {
		return nil
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })

	first := cycles[0]
	fn, _ := md.Owner(sierra.StatementIdx(first[0]))
	cycle := make([]sierra.StatementIdx, len(first))
	for i, idx := range first {
		cycle[i] = sierra.StatementIdx(idx)
	}
	return &GasCheckError{Function: fn.ID, Cycle: cycle}
}

// statementGraph maps a statement to the statements control can reach next.
// Nodes are listed in ascending order.
type statementGraph struct {
	nodes []int
	edges map[int][]int
}

func buildStatementGraph(reg *registry.Registry, md *metadata.Metadata) statementGraph {
	program := reg.Program()
	n := len(program.Statements)

	withdraws := func(idx int) bool {
		stmt := program.Statements[idx]
		if stmt.Kind != sierra.StatementInvocation {
			return false
		}
		lib, _ := reg.Libfunc(stmt.Invocation.LibfuncID)
		return lib.Kind == extensions.LibWithdrawGas
	}

	graph := statementGraph{edges: make(map[int][]int)}
	for idx := 0; idx < n; idx++ {
		if _, reached := md.State(sierra.StatementIdx(idx)); !reached || withdraws(idx) {
			continue
		}
		graph.nodes = append(graph.nodes, idx)
		stmt := program.Statements[idx]
		if stmt.Kind != sierra.StatementInvocation {
			continue
		}

		var succ []int
		lib, _ := reg.Libfunc(stmt.Invocation.LibfuncID)
		if lib.Kind == extensions.LibFunctionCall {
			succ = append(succ, int(lib.Callee.EntryPoint))
		}
		for _, branch := range stmt.Invocation.Branches {
			succ = append(succ, int(branch.Target.Resolve(sierra.StatementIdx(idx))))
		}
		for _, to := range succ {
			if to < n && !withdraws(to) {
				graph.edges[idx] = append(graph.edges[idx], to)
			}
		}
	}
	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node int, graph statementGraph) bool {
	for _, neighbor := range graph.edges[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph statementGraph) [][]int {
	var (
		index   = 0
		stack   []int
		indices = make(map[int]int)
		lowlink = make(map[int]int)
		onStack = make(map[int]bool)
		sccs    [][]int
	)

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range graph.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}
