package selection_test

import (
	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/bounce/internal/dynamo"
	"github.com/san-kum/bounce/internal/physics"
	"github.com/san-kum/bounce/internal/selection"
)

var _ = Describe("Controller", func() {
	var (
		world        *physics.World
		ctrl         *selection.Controller
		feedback     []selection.Feedback
		unregistered []dynamo.BodyID
	)

	kinds := func() []selection.FeedbackKind {
		out := make([]selection.FeedbackKind, len(feedback))
		for i, f := range feedback {
			out[i] = f.Kind
		}
		return out
	}

	BeforeEach(func() {
		world = physics.NewWorld(physics.DefaultConfig(), nil)
		feedback = nil
		unregistered = nil
		ctrl = selection.New(selection.DefaultConfig(), world, func(id dynamo.BodyID) {
			unregistered = append(unregistered, id)
		})
		ctrl.Feedback().Subscribe(func(f selection.Feedback) { feedback = append(feedback, f) })
	})

	It("starts idle with nothing selected", func() {
		Expect(ctrl.State()).To(Equal(selection.Idle))
		_, ok := ctrl.Selection()
		Expect(ok).To(BeFalse())
	})

	Describe("drawing", func() {
		It("commits a beam on release when long enough", func() {
			ctrl.DragStart(mgl64.Vec3{-1, 0, 0}, true)
			Expect(ctrl.State()).To(Equal(selection.Drawing))

			ctrl.DragMove(mgl64.Vec3{0, 0, 0})
			start, end, ok := ctrl.Preview()
			Expect(ok).To(BeTrue())
			Expect(start).To(Equal(mgl64.Vec3{-1, 0, 0}))
			Expect(end).To(Equal(mgl64.Vec3{0, 0, 0}))

			ctrl.DragEnd(mgl64.Vec3{1, 0, 0})
			Expect(ctrl.State()).To(Equal(selection.Idle))
			Expect(world.Len(dynamo.KindWall)).To(Equal(1))
			Expect(kinds()).To(ContainElement(selection.FeedbackCommit))
		})

		It("discards a preview shorter than the minimum", func() {
			ctrl.DragStart(mgl64.Vec3{0, 0, 0}, true)
			ctrl.DragEnd(mgl64.Vec3{0.05, 0, 0})

			Expect(ctrl.State()).To(Equal(selection.Idle))
			Expect(world.Len(dynamo.KindWall)).To(BeZero())
			Expect(kinds()).To(ContainElement(selection.FeedbackPreviewCancel))
		})

		It("cancels on escape", func() {
			ctrl.DragStart(mgl64.Vec3{0, 0, 0}, true)
			ctrl.DragMove(mgl64.Vec3{2, 0, 0})
			ctrl.Escape()
			ctrl.DragEnd(mgl64.Vec3{2, 0, 0})

			Expect(ctrl.State()).To(Equal(selection.Idle))
			Expect(world.Len(dynamo.KindWall)).To(BeZero())
		})

		It("ignores plain drags from idle", func() {
			ctrl.DragStart(mgl64.Vec3{0, 0, 0}, false)
			Expect(ctrl.State()).To(Equal(selection.Idle))
		})
	})

	Describe("selecting", func() {
		var a, b dynamo.BodyID

		BeforeEach(func() {
			var err error
			a, err = world.CreateWall(mgl64.Vec3{-1, 0, 0}, mgl64.Vec3{1, 0, 0})
			Expect(err).NotTo(HaveOccurred())
			b, err = world.CreateWall(mgl64.Vec3{-1, 2, 0}, mgl64.Vec3{1, 2, 0})
			Expect(err).NotTo(HaveOccurred())
		})

		It("selects geometry under the pointer", func() {
			ctrl.Click(mgl64.Vec3{0, 0.05, 0})
			Expect(ctrl.State()).To(Equal(selection.Selected))
			id, _ := ctrl.Selection()
			Expect(id).To(Equal(a))
		})

		It("fires deselect for the old selection before select for the new one", func() {
			ctrl.Click(mgl64.Vec3{0, 0, 0})
			feedback = nil

			ctrl.Click(mgl64.Vec3{0, 2, 0})

			Expect(feedback).To(HaveLen(2))
			Expect(feedback[0].Kind).To(Equal(selection.FeedbackDeselect))
			Expect(feedback[0].ID).To(Equal(a))
			Expect(feedback[1].Kind).To(Equal(selection.FeedbackSelect))
			Expect(feedback[1].ID).To(Equal(b))
		})

		It("returns to idle when clicking empty space", func() {
			ctrl.Click(mgl64.Vec3{0, 0, 0})
			ctrl.Click(mgl64.Vec3{5, 5, 0})

			Expect(ctrl.State()).To(Equal(selection.Idle))
			Expect(kinds()).To(Equal([]selection.FeedbackKind{selection.FeedbackSelect, selection.FeedbackDeselect}))
		})

		It("returns to idle on escape", func() {
			ctrl.Click(mgl64.Vec3{0, 0, 0})
			ctrl.Escape()
			Expect(ctrl.State()).To(Equal(selection.Idle))
		})

		It("deletes the selection and unregisters it", func() {
			ctrl.Click(mgl64.Vec3{0, 0, 0})
			Expect(ctrl.Delete()).To(Succeed())

			Expect(ctrl.State()).To(Equal(selection.Idle))
			Expect(unregistered).To(Equal([]dynamo.BodyID{a}))
			_, ok := world.Meta(a)
			Expect(ok).To(BeFalse())
		})

		It("forgets a selection removed elsewhere", func() {
			ctrl.Click(mgl64.Vec3{0, 0, 0})
			Expect(world.RemoveBody(a)).To(Succeed())
			ctrl.Forget(a)
			Expect(ctrl.State()).To(Equal(selection.Idle))
		})
	})

	Describe("dragging an endpoint", func() {
		var wall dynamo.BodyID

		BeforeEach(func() {
			wall, _ = world.CreateWall(mgl64.Vec3{-1, 0, 0}, mgl64.Vec3{1, 0, 0})
			ctrl.Click(mgl64.Vec3{0, 0, 0})
		})

		It("reshapes the beam in place and returns to selected", func() {
			ctrl.DragStart(mgl64.Vec3{1, 0, 0}, false)
			Expect(ctrl.State()).To(Equal(selection.DraggingEndpoint))

			ctrl.DragMove(mgl64.Vec3{0.5, 0, 0})
			ctrl.DragEnd(mgl64.Vec3{0, 0, 0})

			Expect(ctrl.State()).To(Equal(selection.Selected))
			m, ok := world.Meta(wall)
			Expect(ok).To(BeTrue())
			Expect(m.Wall.Length).To(BeNumerically("~", 1.0, 1e-9))
			Expect(world.Len(dynamo.KindWall)).To(Equal(1))
		})

		It("skips degenerate positions", func() {
			ctrl.DragStart(mgl64.Vec3{1, 0, 0}, false)
			ctrl.DragMove(mgl64.Vec3{0, 0, 0})
			ctrl.DragMove(mgl64.Vec3{-1, 0, 0})

			Expect(ctrl.State()).To(Equal(selection.DraggingEndpoint))
			m, _ := world.Meta(wall)
			Expect(m.Wall.Length).To(BeNumerically("~", 1.0, 1e-9))
		})

		It("does not grab from the middle of the beam", func() {
			ctrl.DragStart(mgl64.Vec3{0, 0, 0}, false)
			Expect(ctrl.State()).To(Equal(selection.Selected))
		})
	})

	Describe("dispensers", func() {
		It("places and selects a dispenser on modifier-click", func() {
			id, err := ctrl.ModifierClick(mgl64.Vec3{0, 4, 0})
			Expect(err).NotTo(HaveOccurred())
			Expect(world.Len(dynamo.KindDispenser)).To(Equal(1))

			sel, ok := ctrl.Selection()
			Expect(ok).To(BeTrue())
			Expect(sel).To(Equal(id))
		})

		It("moves a selected dispenser by dragging it", func() {
			id, _ := ctrl.ModifierClick(mgl64.Vec3{0, 4, 0})
			ctrl.DragStart(mgl64.Vec3{0, 4, 0}, false)
			Expect(ctrl.State()).To(Equal(selection.Moving))

			ctrl.DragEnd(mgl64.Vec3{2, 4, 0})

			Expect(ctrl.State()).To(Equal(selection.Selected))
			m, _ := world.Meta(id)
			Expect(m.Dispenser.Position).To(Equal(mgl64.Vec3{2, 4, 0}))
		})
	})
})
