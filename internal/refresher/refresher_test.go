package refresher_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/resilient-orders/internal/failure"
	"github.com/angeloszaimis/resilient-orders/internal/order"
	"github.com/angeloszaimis/resilient-orders/internal/ordersstub"
	"github.com/angeloszaimis/resilient-orders/internal/refresher"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var _ = Describe("Store", func() {
	It("should start empty but non-nil", func() {
		store := refresher.NewStore(nil)
		Expect(store.Orders()).NotTo(BeNil())
		Expect(store.Orders()).To(BeEmpty())
		Expect(store.UpdatedAt().IsZero()).To(BeTrue())
	})

	It("should replace the list and timestamp on Set", func() {
		store := refresher.NewStore(nil)
		at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		store.Set(ordersstub.SomeValidOrders(2), at)

		Expect(store.Orders()).To(Equal(ordersstub.SomeValidOrders(2)))
		Expect(store.UpdatedAt()).To(Equal(at))
	})
})

var _ = Describe("Refresher", func() {
	var store *refresher.Store

	BeforeEach(func() {
		store = refresher.NewStore(nil)
	})

	It("should reject an invalid schedule", func() {
		_, err := refresher.New("every now and then", time.Second, nil, store, quietLogger)
		Expect(err).To(HaveOccurred())
	})

	It("should reject a non-positive timeout", func() {
		_, err := refresher.New("@every 1s", 0, nil, store, quietLogger)
		Expect(err).To(HaveOccurred())
	})

	It("should accept both descriptors and six-field expressions", func() {
		_, err := refresher.New("@every 30s", time.Second, nil, store, quietLogger)
		Expect(err).NotTo(HaveOccurred())
		_, err = refresher.New("*/5 * * * * *", time.Second, nil, store, quietLogger)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should store the fetched orders", func() {
		fetch := func(context.Context) ([]order.Order, error) {
			return ordersstub.SomeValidOrders(3), nil
		}
		r, err := refresher.New("@every 1h", time.Second, fetch, store, quietLogger)
		Expect(err).NotTo(HaveOccurred())

		Expect(r.Refresh(context.Background())).To(Succeed())
		Expect(store.Orders()).To(HaveLen(3))
		Expect(store.UpdatedAt().IsZero()).To(BeFalse())
	})

	It("should keep the previous list when a refresh fails", func() {
		store.Set(ordersstub.SomeValidOrders(2), time.Now())
		fetch := func(context.Context) ([]order.Order, error) {
			return nil, failure.Server(500)
		}
		r, err := refresher.New("@every 1h", time.Second, fetch, store, quietLogger)
		Expect(err).NotTo(HaveOccurred())

		err = r.Refresh(context.Background())
		Expect(err).To(MatchError(failure.ErrServer))
		Expect(store.Orders()).To(HaveLen(2))
	})

	It("should bound each refresh with the timeout", func() {
		fetch := func(ctx context.Context) ([]order.Order, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		r, err := refresher.New("@every 1h", 20*time.Millisecond, fetch, store, quietLogger)
		Expect(err).NotTo(HaveOccurred())

		err = r.Refresh(context.Background())
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})

	It("should refresh immediately and on schedule until cancelled", func() {
		var calls atomic.Int32
		fetch := func(context.Context) ([]order.Order, error) {
			calls.Add(1)
			return ordersstub.SomeValidOrders(1), nil
		}
		r, err := refresher.New("@every 1s", time.Second, fetch, store, quietLogger)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Run(ctx) }()

		Eventually(calls.Load).Should(BeNumerically(">=", 1))
		Eventually(calls.Load, 3*time.Second).Should(BeNumerically(">=", 2))

		cancel()
		Eventually(done).Should(Receive(BeNil()))
		Expect(store.Orders()).To(HaveLen(1))
	})
})

var _ = Describe("ValidateSchedule", func() {
	DescribeTable("checks schedule expressions",
		func(expr string, valid bool) {
			err := refresher.ValidateSchedule(expr)
			if valid {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(HaveOccurred())
			}
		},
		Entry("descriptor", "@every 30s", true),
		Entry("hourly", "@hourly", true),
		Entry("five fields", "*/5 * * * *", true),
		Entry("six fields", "0 */5 * * * *", true),
		Entry("garbage", "sometimes", false),
		Entry("empty", "", false),
	)
})
