package merkle

import (
	"fmt"

	"github.com/xlab/treeprint"

	"github.com/SiddharthManjul/DiffiChain/common"
)

// RenderWitness renders an authentication path from leaf to root for
// console inspection.
func RenderWitness(witness MerkleWitness, leaf common.Hash, root common.Hash) string {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("root %s", common.Str(root)))

	branch := tree.AddBranch(fmt.Sprintf("leaf[%d] %s", witness.Position, common.Str(leaf)))
	currentIndex := witness.Position
	for level, sibling := range witness.Path {
		side := "R"
		if currentIndex%2 == 1 {
			side = "L"
		}
		branch.AddNode(fmt.Sprintf("level %2d sibling(%s) %s", level, side, common.Str(sibling)))
		currentIndex = currentIndex / 2
	}

	return tree.String()
}

// RenderFrontier renders the pending-node frontier of a tree, one line per
// level, marking levels that still await a right sibling.
func RenderFrontier(root common.Hash, size uint64, frontier []common.Hash) string {
	zeroes := ZeroTable(uint8(len(frontier)))

	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("root %s size %d", common.Str(root), size))
	for level := len(frontier) - 1; level >= 0; level-- {
		if frontier[level] == zeroes[level] {
			tree.AddNode(fmt.Sprintf("level %2d -", level))
		} else {
			tree.AddNode(fmt.Sprintf("level %2d pending %s", level, common.Str(frontier[level])))
		}
	}

	return tree.String()
}
