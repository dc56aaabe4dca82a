package prover

import (
	"fmt"

	"github.com/neotheprogramist/dojo/types"
	"github.com/xlab/treeprint"
)

// DescribeTree renders the split plan ProveRecursively follows for inputs.
func DescribeTree(inputs []types.ProgramInput) string {
	if len(inputs) == 0 {
		return ""
	}
	tree := treeprint.NewWithRoot(rangeLabel(inputs))
	describe(tree, inputs)
	return tree.String()
}

func describe(tree treeprint.Tree, inputs []types.ProgramInput) {
	if len(inputs) < 2 {
		return
	}
	mid := len(inputs) / 2
	for _, half := range [][]types.ProgramInput{inputs[:mid], inputs[mid:]} {
		if len(half) == 1 {
			tree.AddNode(rangeLabel(half))
			continue
		}
		describe(tree.AddBranch(rangeLabel(half)), half)
	}
}

func rangeLabel(inputs []types.ProgramInput) string {
	first, last := inputs[0].BlockNumber, inputs[len(inputs)-1].BlockNumber
	if len(inputs) == 1 {
		return fmt.Sprintf("block %d", first)
	}
	return fmt.Sprintf("blocks %d..%d", first, last)
}
