package design

import "fmt"

// NodeKind enumerates latency AST node kinds.
type NodeKind int

// Latency AST node kinds.
const (
	KindBlock NodeKind = iota
	KindFor
	KindMark
	KindUser
	KindIf
	KindArrayTile
)

// Marks with latency semantics. Other marks are transparent.
const (
	MarkSIMD      = "simd"
	MarkUnroll    = "unroll"
	MarkCoalesce  = "coalesce"
	MarkSerialize = "serialize"
)

// User statement calls.
const (
	CallStmt       = "stmt"
	CallInterTrans = "inter_trans"
	CallIntraTrans = "intra_trans"
)

type node interface {
	kind() NodeKind
	// hasLeaf reports whether the subtree contains a user statement.
	hasLeaf() bool
}

type blockNode struct {
	children []node
	leaf     bool
}

type forNode struct {
	iterator string
	lb, ub   *Expr
	child    node
}

type markNode struct {
	mark  string
	burst *Expr
	child node
}

type userNode struct {
	call      string
	dram      bool
	ii, depth *Expr
}

type ifNode struct {
	then, els node
}

type arrayTileNode struct {
	child node
}

func (n *blockNode) kind() NodeKind     { return KindBlock }
func (n *forNode) kind() NodeKind       { return KindFor }
func (n *markNode) kind() NodeKind      { return KindMark }
func (n *userNode) kind() NodeKind      { return KindUser }
func (n *ifNode) kind() NodeKind        { return KindIf }
func (n *arrayTileNode) kind() NodeKind { return KindArrayTile }

func (n *blockNode) hasLeaf() bool     { return n.leaf }
func (n *forNode) hasLeaf() bool       { return n.child != nil && n.child.hasLeaf() }
func (n *markNode) hasLeaf() bool      { return n.child != nil && n.child.hasLeaf() }
func (n *userNode) hasLeaf() bool      { return true }
func (n *ifNode) hasLeaf() bool        { return hasLeaf(n.then) || hasLeaf(n.els) }
func (n *arrayTileNode) hasLeaf() bool { return n.child != nil && n.child.hasLeaf() }

func accessesDRAM(n node) bool {
	switch n := n.(type) {
	case *blockNode:
		for _, c := range n.children {
			if accessesDRAM(c) {
				return true
			}
		}
	case *forNode:
		return accessesDRAM(n.child)
	case *markNode:
		return accessesDRAM(n.child)
	case *arrayTileNode:
		return accessesDRAM(n.child)
	case *ifNode:
		return accessesDRAM(n.then) || accessesDRAM(n.els)
	case *userNode:
		return n.dram
	}

	return false
}

func hasLeaf(n node) bool {
	return n != nil && n.hasLeaf()
}

// astCompiler turns descriptor nodes into typed nodes, compiling every
// expression against the parameter names of the design.
type astCompiler struct {
	names []string
}

func (c astCompiler) compile(d *NodeDesc) (node, error) {
	if d == nil {
		return nil, nil
	}

	switch d.Type {
	case "block":
		return c.compileBlock(d)
	case "for", "loop":
		return c.compileFor(d)
	case "mark":
		return c.compileMark(d)
	case "user":
		return c.compileUser(d)
	case "if":
		return c.compileIf(d)
	case "array_tile":
		child, err := c.compile(d.Child)
		if err != nil {
			return nil, err
		}

		return &arrayTileNode{child: child}, nil
	default:
		return nil, fmt.Errorf("unknown latency node type %q", d.Type)
	}
}

func (c astCompiler) compileBlock(d *NodeDesc) (node, error) {
	b := &blockNode{}
	for _, cd := range d.Children {
		child, err := c.compile(cd)
		if err != nil {
			return nil, err
		}

		if child == nil {
			continue
		}

		b.children = append(b.children, child)
		b.leaf = b.leaf || child.hasLeaf()
	}

	return b, nil
}

func (c astCompiler) compileFor(d *NodeDesc) (node, error) {
	if len(d.Bounds) != 2 {
		return nil, fmt.Errorf("for node %q needs two bounds", d.Iterator)
	}

	lb, err := compileExpr(d.Bounds[0], c.names)
	if err != nil {
		return nil, err
	}

	ub, err := compileExpr(d.Bounds[1], c.names)
	if err != nil {
		return nil, err
	}

	child, err := c.compile(d.Child)
	if err != nil {
		return nil, err
	}

	return &forNode{iterator: d.Iterator, lb: lb, ub: ub, child: child}, nil
}

func (c astCompiler) compileMark(d *NodeDesc) (node, error) {
	burst, err := compileExpr(d.BurstLen, c.names)
	if err != nil {
		return nil, err
	}

	child, err := c.compile(d.Child)
	if err != nil {
		return nil, err
	}

	return &markNode{mark: d.Mark, burst: burst, child: child}, nil
}

func (c astCompiler) compileUser(d *NodeDesc) (node, error) {
	ii, err := compileExpr(d.II, c.names)
	if err != nil {
		return nil, err
	}

	depth, err := compileExpr(d.Depth, c.names)
	if err != nil {
		return nil, err
	}

	call := d.Call
	if call == "" {
		call = CallStmt
	}

	return &userNode{call: call, dram: d.DRAM, ii: ii, depth: depth}, nil
}

func (c astCompiler) compileIf(d *NodeDesc) (node, error) {
	then, err := c.compile(d.Then)
	if err != nil {
		return nil, err
	}

	els, err := c.compile(d.Else)
	if err != nil {
		return nil, err
	}

	return &ifNode{then: then, els: els}, nil
}
