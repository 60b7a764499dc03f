package workflow

import (
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func TestWorkflow(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Workflow Module Suite")
}

var _ = ginkgo.Describe("Graph", func() {
	ginkgo.Describe("construction", func() {
		ginkgo.It("should reject duplicate node ids", func() {
			g := NewGraph()
			gomega.Expect(g.AddNode(Node{ID: "a", Type: NodeStart})).To(gomega.Succeed())
			gomega.Expect(g.AddNode(Node{ID: "a", Type: NodeEnd})).To(gomega.HaveOccurred())
		})

		ginkgo.It("should reject edges to unknown nodes", func() {
			g := NewGraph()
			gomega.Expect(g.AddNode(Node{ID: "a", Type: NodeStart})).To(gomega.Succeed())
			gomega.Expect(g.AddEdge(Edge{From: "a", To: "missing"})).To(gomega.HaveOccurred())
		})

		ginkgo.It("should reject edges that would create a cycle", func() {
			g := NewGraph()
			gomega.Expect(g.AddNode(Node{ID: "a", Type: NodeStart})).To(gomega.Succeed())
			gomega.Expect(g.AddNode(Node{ID: "b", Type: NodeApproval})).To(gomega.Succeed())
			gomega.Expect(g.AddNode(Node{ID: "c", Type: NodeApproval})).To(gomega.Succeed())
			gomega.Expect(g.AddEdge(Edge{From: "a", To: "b"})).To(gomega.Succeed())
			gomega.Expect(g.AddEdge(Edge{From: "b", To: "c"})).To(gomega.Succeed())

			err := g.AddEdge(Edge{From: "c", To: "b"})
			gomega.Expect(err).To(gomega.HaveOccurred())
		})

		ginkgo.It("should reject self loops", func() {
			g := NewGraph()
			gomega.Expect(g.AddNode(Node{ID: "a", Type: NodeApproval})).To(gomega.Succeed())
			gomega.Expect(g.AddEdge(Edge{From: "a", To: "a"})).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("Validate", func() {
		ginkgo.It("should require exactly one start node", func() {
			g := NewGraph()
			gomega.Expect(g.AddNode(Node{ID: "s1", Type: NodeStart})).To(gomega.Succeed())
			gomega.Expect(g.AddNode(Node{ID: "s2", Type: NodeStart})).To(gomega.Succeed())
			gomega.Expect(g.AddNode(Node{ID: "e", Type: NodeEnd})).To(gomega.Succeed())
			gomega.Expect(g.AddEdge(Edge{From: "s1", To: "e"})).To(gomega.Succeed())

			gomega.Expect(g.Validate()).To(gomega.HaveOccurred())
		})

		ginkgo.It("should require at least one end node", func() {
			g := NewGraph()
			gomega.Expect(g.AddNode(Node{ID: "s", Type: NodeStart})).To(gomega.Succeed())
			gomega.Expect(g.Validate()).To(gomega.HaveOccurred())
		})

		ginkgo.It("should reject orphan nodes", func() {
			g := NewGraph()
			gomega.Expect(g.AddNode(Node{ID: "s", Type: NodeStart})).To(gomega.Succeed())
			gomega.Expect(g.AddNode(Node{ID: "e", Type: NodeEnd})).To(gomega.Succeed())
			gomega.Expect(g.AddNode(Node{ID: "orphan", Type: NodeApproval})).To(gomega.Succeed())
			gomega.Expect(g.AddEdge(Edge{From: "s", To: "e"})).To(gomega.Succeed())

			gomega.Expect(g.Validate()).To(gomega.HaveOccurred())
		})

		ginkgo.It("should accept a well-formed linear graph", func() {
			g, err := LinearApprovalGraph(3)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(g.Validate()).To(gomega.Succeed())
		})
	})
})

var _ = ginkgo.Describe("Instance", func() {
	ginkgo.It("should walk a linear approval graph one node at a time", func() {
		g, err := LinearApprovalGraph(2)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		inst, err := NewInstance(g)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(inst.Current().Type).To(gomega.Equal(NodeStart))

		node, err := inst.Advance(nil)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(node.ID).To(gomega.Equal("step_0"))

		node, err = inst.Advance(Context{"step_0": "approved"})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(node.ID).To(gomega.Equal("step_1"))

		node, err = inst.Advance(Context{"step_1": "approved"})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(node.Type).To(gomega.Equal(NodeEnd))
		gomega.Expect(inst.Status()).To(gomega.Equal(InstanceCompleted))
	})

	ginkgo.It("should refuse to advance a completed instance", func() {
		g, err := LinearApprovalGraph(1)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		inst, err := NewInstance(g)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		_, err = inst.Advance(nil)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		_, err = inst.Advance(nil)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		_, err = inst.Advance(nil)
		gomega.Expect(err).To(gomega.MatchError(ErrInstanceFinished))
	})

	ginkgo.Describe("condition nodes", func() {
		ginkgo.It("should take the first guard that passes, in declared order", func() {
			g, err := RectificationReviewGraph()
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			inst, err := NewInstance(g)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			_, err = inst.Advance(nil) // start -> review
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			node, err := inst.Advance(Context{"verified": true})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(node.ID).To(gomega.Equal("closed"))
		})

		ginkgo.It("should fall back to the default edge when no guard matches", func() {
			g, err := RectificationReviewGraph()
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			inst, err := NewInstance(g)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			_, err = inst.Advance(nil)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			node, err := inst.Advance(Context{"verified": false})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(node.ID).To(gomega.Equal("rejected"))
		})

		ginkgo.It("should fail with NoMatchingBranch when no guard and no default edge exist", func() {
			g := NewGraph()
			gomega.Expect(g.AddNode(Node{ID: "s", Type: NodeStart})).To(gomega.Succeed())
			gomega.Expect(g.AddNode(Node{ID: "c", Type: NodeCondition})).To(gomega.Succeed())
			gomega.Expect(g.AddNode(Node{ID: "e", Type: NodeEnd})).To(gomega.Succeed())
			gomega.Expect(g.AddEdge(Edge{From: "s", To: "c"})).To(gomega.Succeed())
			gomega.Expect(g.AddEdge(Edge{From: "c", To: "e", Guard: func(c Context) bool { return c["never"] == true }})).To(gomega.Succeed())

			inst, err := NewInstance(g)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			_, err = inst.Advance(nil)
			gomega.Expect(err).To(gomega.MatchError(ErrNoMatchingBranch))
		})
	})
})
