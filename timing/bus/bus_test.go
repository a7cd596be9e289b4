package bus

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/snoopsim/timing/cache"
	"github.com/sarchlab/snoopsim/timing/coherence"
)

var _ = Describe("Bus", func() {
	var (
		mockCtrl  *gomock.Controller
		protocol  *MockProtocol
		endpoints []*MockEndpoint
		b         *Bus

		addrA = cache.Address{Tag: 1, SetIndex: 0}
		addrB = cache.Address{Tag: 2, SetIndex: 1}
	)

	// tick drains the bus the way the timer does.
	tick := func(now uint64) {
		Expect(b.DrainRequests(now)).To(Succeed())
		Expect(b.DrainReplies(now)).To(Succeed())
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		protocol = NewMockProtocol(mockCtrl)
		b = New(protocol, 1)

		endpoints = nil
		for i := 0; i < 2; i++ {
			ep := NewMockEndpoint(mockCtrl)
			ep.EXPECT().ID().Return(i).AnyTimes()
			ep.EXPECT().LineIfPresent(gomock.Any()).Return(nil).AnyTimes()
			b.Attach(ep)
			endpoints = append(endpoints, ep)
		}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should panic when endpoints are attached out of order", func() {
		ep := NewMockEndpoint(mockCtrl)
		ep.EXPECT().ID().Return(5).AnyTimes()
		Expect(func() { b.Attach(ep) }).To(Panic())
	})

	It("should hold a message for the cache hit plus the extra cycles", func() {
		protocol.EXPECT().
			Process(gomock.Any(), gomock.Len(2)).
			Return(coherence.Outcome{
				State:       cache.Exclusive,
				ExtraCycles: 3,
				Traffic:     16,
			}, nil)

		msg := NewMessage(0, addrA, coherence.Read, 1)
		b.SubmitRequest(msg)

		for now := uint64(1); now < 4; now++ {
			tick(now)
			Expect(b.Pending()).To(BeTrue())
		}

		endpoints[0].EXPECT().ReceiveReply(msg).Return(nil)
		tick(4)

		Expect(b.Pending()).To(BeFalse())
		Expect(msg.State).To(Equal(cache.Exclusive))
		Expect(msg.CostedAt).To(Equal(uint64(1)))
		Expect(b.Stats()).To(Equal(Stats{DataTraffic: 16, Transactions: 1}))
	})

	It("should deliver a zero-extra message in the tick it is costed", func() {
		protocol.EXPECT().
			Process(gomock.Any(), gomock.Any()).
			Return(coherence.Outcome{State: cache.Modified}, nil)

		msg := NewMessage(1, addrA, coherence.Write, 7)
		b.SubmitRequest(msg)

		endpoints[1].EXPECT().ReceiveReply(msg).Return(nil)
		tick(7)

		Expect(b.Pending()).To(BeFalse())
	})

	It("should deliver messages in submission order", func() {
		protocol.EXPECT().
			Process(gomock.Any(), gomock.Any()).
			Return(coherence.Outcome{State: cache.Shared}, nil).
			Times(2)

		first := NewMessage(1, addrA, coherence.Read, 1)
		second := NewMessage(0, addrB, coherence.Read, 1)
		b.SubmitRequest(first)
		b.SubmitRequest(second)

		gomock.InOrder(
			endpoints[1].EXPECT().ReceiveReply(first).Return(nil),
			endpoints[0].EXPECT().ReceiveReply(second).Return(nil),
		)
		tick(1)
	})

	It("should serialize messages for the same address", func() {
		first := NewMessage(0, addrA, coherence.Write, 1)
		second := NewMessage(1, addrA, coherence.Write, 1)

		gomock.InOrder(
			protocol.EXPECT().
				Process(first.Request, gomock.Any()).
				Return(coherence.Outcome{State: cache.Modified, ExtraCycles: 2}, nil),
			protocol.EXPECT().
				Process(second.Request, gomock.Any()).
				Return(coherence.Outcome{State: cache.Modified}, nil),
		)

		b.SubmitRequest(first)
		b.SubmitRequest(second)

		tick(1)
		tick(2)
		Expect(second.Costed()).To(BeFalse())

		endpoints[0].EXPECT().ReceiveReply(first).Return(nil)
		tick(3)
		Expect(second.Costed()).To(BeFalse())

		endpoints[1].EXPECT().ReceiveReply(second).Return(nil)
		tick(4)
		Expect(second.CostedAt).To(Equal(uint64(4)))
		Expect(b.Pending()).To(BeFalse())
	})

	It("should not hold messages for other addresses", func() {
		slow := NewMessage(0, addrA, coherence.Read, 1)
		fast := NewMessage(1, addrB, coherence.Read, 1)

		protocol.EXPECT().
			Process(slow.Request, gomock.Any()).
			Return(coherence.Outcome{State: cache.Exclusive, ExtraCycles: 5}, nil)
		protocol.EXPECT().
			Process(fast.Request, gomock.Any()).
			Return(coherence.Outcome{State: cache.Exclusive}, nil)

		b.SubmitRequest(slow)
		b.SubmitRequest(fast)

		endpoints[1].EXPECT().ReceiveReply(fast).Return(nil)
		tick(1)
		Expect(b.Pending()).To(BeTrue())
	})

	It("should deliver a reply submitted directly", func() {
		msg := NewMessage(1, addrB, coherence.Read, 2)
		msg.Residency = 0
		msg.State = cache.Shared

		b.SubmitReply(msg)
		Expect(b.Pending()).To(BeTrue())

		endpoints[1].EXPECT().ReceiveReply(msg).Return(nil)
		Expect(b.DrainReplies(2)).To(Succeed())
		Expect(b.Pending()).To(BeFalse())
		Expect(b.Stats().Transactions).To(Equal(uint64(1)))
	})

	It("should accumulate protocol counters", func() {
		protocol.EXPECT().
			Process(gomock.Any(), gomock.Any()).
			Return(coherence.Outcome{
				State:         cache.Modified,
				Traffic:       16,
				Invalidations: 1,
			}, nil)
		protocol.EXPECT().
			Process(gomock.Any(), gomock.Any()).
			Return(coherence.Outcome{
				State:   cache.Owned,
				Traffic: 4,
				Updates: 1,
			}, nil)
		endpoints[0].EXPECT().ReceiveReply(gomock.Any()).Return(nil).Times(2)

		b.SubmitRequest(NewMessage(0, addrA, coherence.Write, 1))
		tick(1)
		before := b.Stats()

		b.SubmitRequest(NewMessage(0, addrB, coherence.Write, 2))
		tick(2)
		after := b.Stats()

		Expect(after.DataTraffic).To(BeNumerically(">=", before.DataTraffic))
		Expect(after).To(Equal(Stats{
			DataTraffic:   20,
			Invalidations: 1,
			Updates:       1,
			Transactions:  2,
		}))
	})

	It("should stop on a protocol violation", func() {
		violation := &coherence.ViolationError{Protocol: "MESI", Reason: "test"}
		protocol.EXPECT().
			Process(gomock.Any(), gomock.Any()).
			Return(coherence.Outcome{}, violation)

		b.SubmitRequest(NewMessage(0, addrA, coherence.Read, 1))
		err := b.DrainRequests(1)

		var target *coherence.ViolationError
		Expect(errors.As(err, &target)).To(BeTrue())
		Expect(target).To(BeIdenticalTo(violation))
	})

	It("should pass reply errors up", func() {
		protocol.EXPECT().
			Process(gomock.Any(), gomock.Any()).
			Return(coherence.Outcome{State: cache.Shared}, nil)
		endpoints[0].EXPECT().ReceiveReply(gomock.Any()).Return(errors.New("boom"))

		b.SubmitRequest(NewMessage(0, addrA, coherence.Read, 1))
		Expect(b.DrainRequests(1)).To(Succeed())
		Expect(b.DrainReplies(1)).To(MatchError("boom"))
	})

	It("should record delivered transactions", func() {
		recorder := NewMockRecorder(mockCtrl)
		b.WithRecorder(recorder).WithBlockAddress(func(a cache.Address) uint64 {
			return a.Tag << 8
		})

		protocol.EXPECT().
			Process(gomock.Any(), gomock.Any()).
			Return(coherence.Outcome{State: cache.Exclusive, ExtraCycles: 1}, nil)
		endpoints[0].EXPECT().ReceiveReply(gomock.Any()).Return(nil)

		msg := NewMessage(0, addrA, coherence.Read, 3)
		recorder.EXPECT().Record(Transaction{
			ID:          msg.ID,
			Sender:      0,
			Address:     0x100,
			Type:        "Read",
			State:       "Exclusive",
			ExtraCycles: 1,
			IssuedAt:    3,
			CostedAt:    3,
			DeliveredAt: 4,
		})

		b.SubmitRequest(msg)
		tick(3)
		tick(4)
	})
})
