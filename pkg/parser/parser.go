package parser

import (
	"fmt"

	"github.com/ztrue/tracerr"

	"github.com/hce/govm/pkg/ast"
)

// DefaultMaxDepth bounds expression and block nesting. Scripts may come
// from untrusted sources, so recursion is never unbounded.
const DefaultMaxDepth = 512

// Parser turns script text into parse trees. A Parser is not safe for
// concurrent use; create one per job.
type Parser struct {
	// MaxDepth limits nesting of expressions and blocks. Zero means
	// DefaultMaxDepth.
	MaxDepth int

	labels int
}

// New returns a parser with default limits.
func New() *Parser {
	return &Parser{MaxDepth: DefaultMaxDepth}
}

// ParseExpr parses a single expression or statement with default limits.
func ParseExpr(text string) (ast.Node, error) {
	return New().ParseExpr(text)
}

// Build parses a whole script with default limits.
func Build(text string) (*ast.Program, error) {
	return New().Build(text)
}

// ParseExpr parses one expression or statement. Empty input yields a nil
// node and no error.
func (p *Parser) ParseExpr(text string) (n ast.Node, err error) {
	defer recoverParse(&err)
	return p.expr(text, 0)
}

func (p *Parser) maxDepth() int {
	if p.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return p.MaxDepth
}

func (p *Parser) newBlock() *ast.Block {
	p.labels++
	return &ast.Block{Label: fmt.Sprintf("L%d", p.labels)}
}

// recoverParse converts an unexpected panic inside the parser into an
// error carrying the panic site.
func recoverParse(err *error) {
	if r := recover(); r != nil {
		if rerr, ok := r.(error); ok {
			*err = tracerr.Wrap(&SyntaxError{Msg: "internal parser failure: " + rerr.Error()})
			return
		}
		*err = tracerr.Wrap(&SyntaxError{Msg: fmt.Sprintf("internal parser failure: %v", r)})
	}
}
