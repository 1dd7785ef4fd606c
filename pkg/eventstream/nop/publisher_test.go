package nop_test

import (
	"context"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	It("creates a non-nil publisher", func() {
		p := nop.NewPublisher()
		Expect(p).NotTo(BeNil())
	})

	It("returns ErrNilEvent for nil events", func() {
		p := nop.NewPublisher()
		Expect(p.PublishDocumentIngested(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
		Expect(p.PublishDocumentDeleted(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
	})

	It("succeeds for non-nil events", func() {
		p := nop.NewPublisher()
		ingested := eventstream.NewDocumentIngestedEvent(uuid.New(), uuid.New(), "", 1, 10, "", 5)
		Expect(p.PublishDocumentIngested(context.Background(), ingested)).To(Succeed())

		deleted := eventstream.NewDocumentDeletedEvent(uuid.New(), uuid.New(), 1)
		Expect(p.PublishDocumentDeleted(context.Background(), deleted)).To(Succeed())
	})

	It("implements eventstream.Publisher", func() {
		var _ eventstream.Publisher = (*nop.Publisher)(nil)
	})

	It("closes successfully", func() {
		p := nop.NewPublisher()
		Expect(p.Close()).To(Succeed())
	})
})
