package tsoracle

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// structuralNodeTypes is the allow-listed set of nodes indexed inside a
// function body.
var structuralNodeTypes = map[string]bool{
	"compound_statement": true,
	"if_statement":       true,
	"for_statement":      true,
	"while_statement":    true,
	"do_statement":       true,
	"switch_statement":   true,
	"return_statement":   true,
	"goto_statement":     true,
	"labeled_statement":  true,
}

// indexFunctions walks the top level of a TU and extracts every
// function_definition node with its stable identifiers and nested
// structural-node index.
func indexFunctions(root *sitter.Node, source []byte, tuPath string, deepNestingThreshold int) []FunctionEntry {
	var entries []FunctionEntry

	for i := 0; i < int(root.ChildCount()); i++ {
		node := root.Child(i)
		if node.Type() != "function_definition" {
			continue
		}
		entries = append(entries, indexFunction(node, source, tuPath, deepNestingThreshold))
	}
	return entries
}

func indexFunction(node *sitter.Node, source []byte, tuPath string, deepNestingThreshold int) FunctionEntry {
	startByte := int(node.StartByte())
	endByte := int(node.EndByte())
	startLine := int(node.StartPoint().Row)
	endLine := int(node.EndPoint().Row)

	entry := FunctionEntry{
		TuPath:    tuPath,
		Name:      extractFunctionName(node, source),
		StartByte: startByte,
		EndByte:   endByte,
		StartLine: startLine,
		EndLine:   endLine,
	}

	// Signature span runs to the start of the body; the body span is the
	// compound_statement itself.
	body := node.ChildByFieldName("body")
	if body != nil && body.Type() == "compound_statement" {
		entry.SignatureSpan = Span{
			StartByte: startByte,
			EndByte:   int(body.StartByte()),
			StartLine: startLine,
			EndLine:   int(body.StartPoint().Row),
		}
		entry.BodySpan = Span{
			StartByte: int(body.StartByte()),
			EndByte:   int(body.EndByte()),
			StartLine: int(body.StartPoint().Row),
			EndLine:   int(body.EndPoint().Row),
		}
	} else {
		entry.SignatureSpan = Span{StartByte: startByte, EndByte: endByte, StartLine: startLine, EndLine: endLine}
		entry.BodySpan = Span{StartByte: endByte, EndByte: endByte, StartLine: endLine, EndLine: endLine}
	}
	entry.PreambleSpan = Span{StartByte: 0, EndByte: startByte, StartLine: 0, EndLine: startLine}

	spanBytes := source[startByte:endByte]
	entry.ContextHash = ContextHash(spanBytes)
	entry.NodeHashRaw = RawHash(spanBytes)
	entry.SpanID = fmt.Sprintf("%s:%d:%d", tuPath, startByte, endByte)
	entry.TsFuncID = fmt.Sprintf("%s:%s", entry.SpanID, entry.ContextHash)

	entry.Nodes = indexStructuralNodes(node, source, deepNestingThreshold)
	return entry
}

// extractFunctionName drills through declarator nodes to the identifier.
func extractFunctionName(node *sitter.Node, source []byte) string {
	declarator := node.ChildByFieldName("declarator")
	if declarator == nil {
		return ""
	}
	return findIdentifier(declarator, source)
}

func findIdentifier(node *sitter.Node, source []byte) string {
	switch node.Type() {
	case "identifier":
		return node.Content(source)
	case "function_declarator", "pointer_declarator", "array_declarator":
		if inner := node.ChildByFieldName("declarator"); inner != nil {
			return findIdentifier(inner, source)
		}
	case "parenthesized_declarator":
		for i := 0; i < int(node.ChildCount()); i++ {
			if name := findIdentifier(node.Child(i), source); name != "" {
				return name
			}
		}
	}
	return ""
}

// indexStructuralNodes collects allow-listed nodes with their depth
// relative to the function definition.
func indexStructuralNodes(funcNode *sitter.Node, source []byte, deepNestingThreshold int) []StructuralNode {
	var out []StructuralNode
	walkStructural(funcNode, source, 0, &out)
	return out
}

func walkStructural(node *sitter.Node, source []byte, depth int, out *[]StructuralNode) {
	if structuralNodeTypes[node.Type()] {
		*out = append(*out, StructuralNode{
			NodeType:    node.Type(),
			StartByte:   int(node.StartByte()),
			EndByte:     int(node.EndByte()),
			StartLine:   int(node.StartPoint().Row),
			EndLine:     int(node.EndPoint().Row),
			NodeHashRaw: RawHash(source[node.StartByte():node.EndByte()]),
			Depth:       depth,
		})
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		walkStructural(node.Child(i), source, depth+1, out)
	}
}

// maxNodeDepth returns the deepest structural node depth, or -1.
func maxNodeDepth(nodes []StructuralNode) int {
	max := -1
	for _, n := range nodes {
		if n.Depth > max {
			max = n.Depth
		}
	}
	return max
}

// hasAnonymousAggregate reports whether the subtree contains an unnamed
// struct/union/enum with a body. Forward declarations do not count.
func hasAnonymousAggregate(node *sitter.Node) bool {
	switch node.Type() {
	case "struct_specifier", "union_specifier", "enum_specifier":
		if node.ChildByFieldName("name") == nil && node.ChildByFieldName("body") != nil {
			return true
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if hasAnonymousAggregate(node.Child(i)) {
			return true
		}
	}
	return false
}
