package journal

import (
	"bytes"
	"encoding/gob"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/mewerr"
)

// The ontology record payload is the compiled-ontology blob of the
// persisted state layout: a serialized ast.Ontology replayed through the
// compiler on recovery. gob needs every concrete type reachable through
// the AST's Expr and Action interfaces registered up front.
func init() {
	gob.Register(&ast.LiteralExpr{})
	gob.Register(&ast.VarRef{})
	gob.Register(&ast.AttrRef{})
	gob.Register(&ast.ParamRef{})
	gob.Register(&ast.IDRef{})
	gob.Register(&ast.BinaryExpr{})
	gob.Register(&ast.UnaryExpr{})
	gob.Register(&ast.CallExpr{})
	gob.Register(&ast.ExistsExpr{})
	gob.Register(&ast.Spawn{})
	gob.Register(&ast.Kill{})
	gob.Register(&ast.Link{})
	gob.Register(&ast.Unlink{})
	gob.Register(&ast.Set{})
}

// EncodeOntology serializes an ontology AST for a KindOntology record.
func EncodeOntology(onto *ast.Ontology) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(onto); err != nil {
		return nil, mewerr.New("E6020", mewerr.CategoryStorage, mewerr.ErrStorage,
			"journal: ontology encode failed: "+err.Error())
	}
	return buf.Bytes(), nil
}

// DecodeOntology parses a KindOntology record payload.
func DecodeOntology(payload []byte) (*ast.Ontology, error) {
	var onto ast.Ontology
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&onto); err != nil {
		return nil, mewerr.New("E6021", mewerr.CategoryStorage, mewerr.ErrStorage,
			"journal: ontology decode failed: "+err.Error())
	}
	return &onto, nil
}
