package debugger

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// AnalyzeDebuggerLines parses a script and returns the 0-based lines holding
// a debugger statement. Stops on those lines are reported as "debugger
// statement" instead of a plain step or pause.
func AnalyzeDebuggerLines(content []byte) (map[int]bool, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	lines := map[int]bool{}

	// 使用栈来手动管理节点遍历
	stack := []*sitter.Node{tree.RootNode()}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node.Type() == "debugger_statement" {
			lines[int(node.StartPoint().Row)] = true
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			if child := node.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
	return lines, nil
}

// FirstStatementLocation returns the 0-based position of the first executable
// statement of a script, skipping comments and directives.
func FirstStatementLocation(content []byte) (int, int, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return 0, 0, err
	}
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child == nil || child.Type() == "comment" {
			continue
		}
		point := child.StartPoint()
		return int(point.Row), int(point.Column), nil
	}
	return 0, 0, nil
}
