package domain

import (
	"sort"
)

// CommentNode представляет комментарий со всеми ответами на него
type CommentNode struct {
	Record   CommentRecord  `json:"comment"`
	Children []*CommentNode `json:"children"`
}

// TreeOption настраивает построение дерева
type TreeOption func(*treeOptions)

type treeOptions struct {
	orphansAsRoots bool
}

// WithOrphansAsRoots выводит комментарии с неизвестным родителем как корневые
func WithOrphansAsRoots() TreeOption {
	return func(o *treeOptions) {
		o.orphansAsRoots = true
	}
}

// BuildTree строит лес комментариев из плоского списка, упорядоченного по created_at.
// Корни сортируются от новых к старым, ответы сохраняют порядок входа.
// Комментарий, чей родитель отсутствует во входе, отбрасывается.
func BuildTree(records []CommentRecord, opts ...TreeOption) []*CommentNode {
	var o treeOptions
	for _, opt := range opts {
		opt(&o)
	}

	nodes := make(map[string]*CommentNode, len(records))
	for _, rec := range records {
		nodes[rec.ID] = &CommentNode{Record: rec, Children: []*CommentNode{}}
	}

	roots := make([]*CommentNode, 0)
	for _, rec := range records {
		node := nodes[rec.ID]
		if rec.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*rec.ParentID]
		switch {
		case ok && parent != node:
			parent.Children = append(parent.Children, node)
		case o.orphansAsRoots:
			roots = append(roots, node)
		}
	}

	sort.SliceStable(roots, func(i, j int) bool {
		return roots[i].Record.CreatedAt.After(roots[j].Record.CreatedAt)
	})

	return roots
}

// Walk обходит узел и его потомков в глубину, depth корня равен переданному значению
func (n *CommentNode) Walk(depth int, fn func(node *CommentNode, depth int)) {
	fn(n, depth)
	for _, child := range n.Children {
		child.Walk(depth+1, fn)
	}
}

// CountNodes возвращает число узлов в лесу
func CountNodes(roots []*CommentNode) int {
	count := 0
	for _, root := range roots {
		root.Walk(0, func(*CommentNode, int) { count++ })
	}
	return count
}
