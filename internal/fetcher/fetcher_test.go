package fetcher_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/angeloszaimis/resilient-orders/internal/backoff"
	"github.com/angeloszaimis/resilient-orders/internal/circuitbreaker"
	"github.com/angeloszaimis/resilient-orders/internal/failure"
	"github.com/angeloszaimis/resilient-orders/internal/fetcher"
	"github.com/angeloszaimis/resilient-orders/internal/order"
	"github.com/angeloszaimis/resilient-orders/internal/ordersstub"
)

var _ = Describe("ResilientFetcher", func() {
	var (
		ctx       context.Context
		ctrl      *gomock.Controller
		transport *MockTransport
		f         *fetcher.ResilientFetcher
	)

	BeforeEach(func() {
		ctx = context.Background()
		ctrl = gomock.NewController(GinkgoT())
		transport = NewMockTransport(ctrl)
		f = fetcher.New(transport, fetcher.WithLogger(quietLogger))
	})

	Describe("Fetch", func() {
		It("should return the orders served by the upstream", func() {
			stubbed, _ := stubbedFetcher(ordersstub.New(ordersstub.WithOrders(5)))

			orders, err := stubbed.Fetch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(orders).To(Equal(ordersstub.SomeValidOrders(5)))
		})

		It("should return identical lists for repeated calls", func() {
			stubbed, _ := stubbedFetcher(ordersstub.New(ordersstub.WithOrders(3)))

			first, err := stubbed.Fetch(ctx)
			Expect(err).NotTo(HaveOccurred())
			second, err := stubbed.Fetch(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})

		DescribeTable("propagates the transport failure unchanged",
			func(cause error, sentinel error) {
				transport.EXPECT().Attempt(gomock.Any()).Return(nil, cause).Times(1)

				_, err := f.Fetch(ctx)
				Expect(err).To(MatchError(sentinel))
				Expect(err).To(BeIdenticalTo(cause))
			},
			Entry("network", failure.Network(io.ErrUnexpectedEOF), failure.ErrNetwork),
			Entry("server", failure.Server(http.StatusInternalServerError), failure.ErrServer),
			Entry("decode", failure.Decode(io.ErrUnexpectedEOF), failure.ErrDecode),
		)
	})

	Describe("FetchWithFallback", func() {
		fallback := []order.Order{{ID: 99, UserID: 1, Items: []order.Item{{ID: 1, Name: "pizza", Quantity: 2}}}}

		It("should return the upstream orders when the attempt succeeds", func() {
			stubbed, _ := stubbedFetcher(ordersstub.New(ordersstub.WithOrders(2)))

			orders, err := stubbed.FetchWithFallback(ctx, fallback)
			Expect(err).NotTo(HaveOccurred())
			Expect(orders).To(Equal(ordersstub.SomeValidOrders(2)))
		})

		It("should return the very same fallback list when the upstream keeps failing", func() {
			stubbed, _ := stubbedFetcher(ordersstub.New(ordersstub.WithPermanentFailure(http.StatusInternalServerError)))

			orders, err := stubbed.FetchWithFallback(ctx, fallback)
			Expect(err).NotTo(HaveOccurred())
			Expect(orders).To(Equal(fallback))
			Expect(&orders[0]).To(BeIdenticalTo(&fallback[0]))
		})

		DescribeTable("swallows every transport failure",
			func(cause error) {
				transport.EXPECT().Attempt(gomock.Any()).Return(nil, cause)

				orders, err := f.FetchWithFallback(ctx, fallback)
				Expect(err).NotTo(HaveOccurred())
				Expect(orders).To(Equal(fallback))
			},
			Entry("network", failure.Network(io.EOF)),
			Entry("client error", failure.Server(http.StatusNotFound)),
			Entry("decode", failure.Decode(io.EOF)),
		)

		It("should return an empty fallback as is", func() {
			transport.EXPECT().Attempt(gomock.Any()).Return(nil, failure.Network(io.EOF))

			orders, err := f.FetchWithFallback(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(orders).To(BeNil())
		})

		It("should still report a cancelled caller", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			transport.EXPECT().Attempt(gomock.Any()).Return(nil, context.Canceled)

			_, err := f.FetchWithFallback(cancelled, fallback)
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	Describe("FetchWithRetries", func() {
		cfg := backoff.Config{InitialDelay: 100 * time.Millisecond, Factor: 2, MaxDelay: time.Second}
		fast := backoff.Config{InitialDelay: time.Millisecond, Factor: 2, MaxDelay: 5 * time.Millisecond}

		It("should succeed on the fifth request after four failures", func() {
			stub := ordersstub.New(ordersstub.WithFailures(4, http.StatusInternalServerError), ordersstub.WithOrders(2))
			stubbed, _ := stubbedFetcher(stub)

			orders, err := stubbed.FetchWithRetries(ctx, 5, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(orders).To(HaveLen(2))
			Expect(stub.Hits()).To(Equal(5))
		})

		It("should make maxRetries+1 requests and wrap the last failure", func() {
			stub := ordersstub.New(ordersstub.WithPermanentFailure(http.StatusServiceUnavailable))
			stubbed, _ := stubbedFetcher(stub)

			_, err := stubbed.FetchWithRetries(ctx, 3, fast)
			Expect(err).To(MatchError(failure.ErrMaxRetries))
			Expect(err).To(MatchError(failure.Server(http.StatusServiceUnavailable)))
			Expect(stub.Hits()).To(Equal(4))

			var fe *failure.Error
			Expect(errors.As(err, &fe)).To(BeTrue())
			Expect(fe.Attempts).To(Equal(4))
		})

		It("should make a single request when maxRetries is zero", func() {
			transport.EXPECT().Attempt(gomock.Any()).Return(nil, failure.Network(io.EOF)).Times(1)

			_, err := f.FetchWithRetries(ctx, 0, fast)
			Expect(err).To(MatchError(failure.ErrMaxRetries))
			Expect(err).To(MatchError(failure.ErrNetwork))
		})

		It("should not retry decode failures", func() {
			transport.EXPECT().Attempt(gomock.Any()).Return(nil, failure.Decode(io.ErrUnexpectedEOF)).Times(1)

			_, err := f.FetchWithRetries(ctx, 5, fast)
			Expect(err).To(MatchError(failure.ErrDecode))
			Expect(err).NotTo(MatchError(failure.ErrMaxRetries))
		})

		It("should not retry client errors", func() {
			transport.EXPECT().Attempt(gomock.Any()).Return(nil, failure.Server(http.StatusNotFound)).Times(1)

			_, err := f.FetchWithRetries(ctx, 5, fast)
			Expect(err).To(MatchError(failure.Server(http.StatusNotFound)))
		})

		It("should retry network failures until success", func() {
			gomock.InOrder(
				transport.EXPECT().Attempt(gomock.Any()).Return(nil, failure.Network(io.EOF)),
				transport.EXPECT().Attempt(gomock.Any()).Return(nil, failure.Network(io.EOF)),
				transport.EXPECT().Attempt(gomock.Any()).Return(ordersstub.SomeValidOrders(1), nil),
			)

			orders, err := f.FetchWithRetries(ctx, 5, fast)
			Expect(err).NotTo(HaveOccurred())
			Expect(orders).To(HaveLen(1))
		})

		It("should wait the backoff delay between attempts", func() {
			var (
				mutex sync.Mutex
				calls []time.Time
			)
			transport.EXPECT().Attempt(gomock.Any()).DoAndReturn(func(context.Context) ([]order.Order, error) {
				mutex.Lock()
				defer mutex.Unlock()
				calls = append(calls, time.Now())
				return nil, failure.Server(http.StatusBadGateway)
			}).Times(4)

			schedule := backoff.Config{InitialDelay: 20 * time.Millisecond, Factor: 2, MaxDelay: 50 * time.Millisecond}
			_, err := f.FetchWithRetries(ctx, 3, schedule)
			Expect(err).To(MatchError(failure.ErrMaxRetries))

			Expect(calls).To(HaveLen(4))
			for i, expected := range backoff.Schedule(3, schedule) {
				Expect(calls[i+1].Sub(calls[i])).To(BeNumerically(">=", expected))
			}
		})

		It("should stop sleeping when the caller cancels", func() {
			cancellable, cancel := context.WithCancel(ctx)
			transport.EXPECT().Attempt(gomock.Any()).DoAndReturn(func(context.Context) ([]order.Order, error) {
				cancel()
				return nil, failure.Network(io.EOF)
			}).Times(1)

			slow := backoff.Config{InitialDelay: time.Hour, Factor: 1, MaxDelay: time.Hour}
			start := time.Now()
			_, err := f.FetchWithRetries(cancellable, 3, slow)
			Expect(err).To(MatchError(context.Canceled))
			Expect(time.Since(start)).To(BeNumerically("<", time.Second))
		})

		DescribeTable("rejects invalid parameters without contacting the upstream",
			func(maxRetries int, c backoff.Config) {
				_, err := f.FetchWithRetries(ctx, maxRetries, c)
				Expect(err).To(MatchError(fetcher.ErrInvalidArgument))
			},
			Entry("negative retries", -1, fast),
			Entry("zero initial delay", 3, backoff.Config{Factor: 2, MaxDelay: time.Second}),
			Entry("shrinking factor", 3, backoff.Config{InitialDelay: time.Millisecond, Factor: 0.5, MaxDelay: time.Second}),
		)
	})

	Describe("FetchWithTimeout", func() {
		It("should time out against a very slow upstream", func() {
			stubbed, _ := stubbedFetcher(ordersstub.New(ordersstub.WithLatency(time.Hour)))

			start := time.Now()
			_, err := stubbed.FetchWithTimeout(ctx, time.Second)
			Expect(err).To(MatchError(failure.ErrTimeout))
			Expect(time.Since(start)).To(BeNumerically("~", time.Second, 500*time.Millisecond))
		})

		It("should return the orders when the upstream answers in time", func() {
			stubbed, _ := stubbedFetcher(ordersstub.New(ordersstub.WithOrders(3), ordersstub.WithLatency(10*time.Millisecond)))

			orders, err := stubbed.FetchWithTimeout(ctx, 2*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(orders).To(HaveLen(3))
		})

		It("should propagate a failure that arrives before the deadline", func() {
			transport.EXPECT().Attempt(gomock.Any()).Return(nil, failure.Server(http.StatusInternalServerError))

			_, err := f.FetchWithTimeout(ctx, time.Second)
			Expect(err).To(MatchError(failure.ErrServer))
		})

		It("should cancel the abandoned attempt", func() {
			abandoned := make(chan struct{})
			transport.EXPECT().Attempt(gomock.Any()).DoAndReturn(func(attemptCtx context.Context) ([]order.Order, error) {
				<-attemptCtx.Done()
				close(abandoned)
				return ordersstub.SomeValidOrders(1), nil
			})

			_, err := f.FetchWithTimeout(ctx, 20*time.Millisecond)
			Expect(err).To(MatchError(failure.ErrTimeout))
			Eventually(abandoned).Should(BeClosed())
		})

		It("should keep a late result from leaking into the next call", func() {
			release := make(chan struct{})
			gomock.InOrder(
				transport.EXPECT().Attempt(gomock.Any()).DoAndReturn(func(context.Context) ([]order.Order, error) {
					<-release
					return []order.Order{{ID: 1}}, nil
				}),
				transport.EXPECT().Attempt(gomock.Any()).Return([]order.Order{{ID: 2}}, nil),
			)

			_, err := f.FetchWithTimeout(ctx, 10*time.Millisecond)
			Expect(err).To(MatchError(failure.ErrTimeout))
			close(release)

			orders, err := f.FetchWithTimeout(ctx, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(orders).To(Equal([]order.Order{{ID: 2}}))
		})

		It("should reject a non-positive timeout", func() {
			_, err := f.FetchWithTimeout(ctx, 0)
			Expect(err).To(MatchError(fetcher.ErrInvalidArgument))
		})
	})

	Describe("FetchWithCircuitBreaker", func() {
		cbConfig := circuitbreaker.Config{FailureThreshold: 2, OpenTimeout: 500 * time.Millisecond}

		It("should recover once the upstream does, sending only probes while open", func() {
			stub := ordersstub.New(ordersstub.WithFailures(5, http.StatusInternalServerError), ordersstub.WithOrders(3))
			stubbed, _ := stubbedFetcher(stub)

			invocations := 0
			var orders []order.Order
			Eventually(func() error {
				invocations++
				var err error
				orders, err = stubbed.FetchWithCircuitBreaker(ctx, cbConfig)
				return err
			}).WithTimeout(5 * time.Second).WithPolling(20 * time.Millisecond).Should(Succeed())

			Expect(orders).To(HaveLen(3))
			Expect(stub.Hits()).To(Equal(6))
			Expect(invocations).To(BeNumerically(">", 10))

			snap, ok := stubbed.BreakerSnapshot()
			Expect(ok).To(BeTrue())
			Expect(snap.State).To(Equal(circuitbreaker.StateClosed))
		})

		It("should reject calls without contacting the upstream while open", func() {
			transport.EXPECT().Attempt(gomock.Any()).Return(nil, failure.Network(io.EOF)).Times(2)

			for i := 0; i < 2; i++ {
				_, err := f.FetchWithCircuitBreaker(ctx, cbConfig)
				Expect(err).To(MatchError(failure.ErrNetwork))
			}

			for i := 0; i < 5; i++ {
				_, err := f.FetchWithCircuitBreaker(ctx, cbConfig)
				Expect(err).To(MatchError(failure.ErrCircuitOpen))
			}

			var fe *failure.Error
			_, err := f.FetchWithCircuitBreaker(ctx, cbConfig)
			Expect(errors.As(err, &fe)).To(BeTrue())
			Expect(fe.RetryAfter).To(BeNumerically(">", 0))
			Expect(fe.RetryAfter).To(BeNumerically("<=", cbConfig.OpenTimeout))
		})

		It("should let exactly one probe through when half-open", func() {
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			var clockMutex sync.Mutex
			clock := func() time.Time {
				clockMutex.Lock()
				defer clockMutex.Unlock()
				return now
			}
			f = fetcher.New(transport, fetcher.WithLogger(quietLogger), fetcher.WithClock(clock))

			transport.EXPECT().Attempt(gomock.Any()).Return(nil, failure.Server(http.StatusInternalServerError)).Times(2)
			for i := 0; i < 2; i++ {
				_, _ = f.FetchWithCircuitBreaker(ctx, cbConfig)
			}

			clockMutex.Lock()
			now = now.Add(time.Second)
			clockMutex.Unlock()

			release := make(chan struct{})
			probing := make(chan struct{})
			transport.EXPECT().Attempt(gomock.Any()).DoAndReturn(func(context.Context) ([]order.Order, error) {
				close(probing)
				<-release
				return ordersstub.SomeValidOrders(1), nil
			}).Times(1)

			probeDone := make(chan error, 1)
			go func() {
				_, err := f.FetchWithCircuitBreaker(ctx, cbConfig)
				probeDone <- err
			}()
			Eventually(probing).Should(BeClosed())

			_, err := f.FetchWithCircuitBreaker(ctx, cbConfig)
			Expect(err).To(MatchError(failure.ErrCircuitOpen))

			close(release)
			Eventually(probeDone).Should(Receive(BeNil()))

			snap, _ := f.BreakerSnapshot()
			Expect(snap.State).To(Equal(circuitbreaker.StateClosed))
		})

		It("should apply the configuration passed on each call", func() {
			transport.EXPECT().Attempt(gomock.Any()).Return(nil, failure.Network(io.EOF)).Times(2)

			_, _ = f.FetchWithCircuitBreaker(ctx, circuitbreaker.Config{FailureThreshold: 3, OpenTimeout: time.Minute})
			snap, _ := f.BreakerSnapshot()
			Expect(snap.State).To(Equal(circuitbreaker.StateClosed))

			_, _ = f.FetchWithCircuitBreaker(ctx, circuitbreaker.Config{FailureThreshold: 2, OpenTimeout: time.Minute})
			snap, _ = f.BreakerSnapshot()
			Expect(snap.State).To(Equal(circuitbreaker.StateOpen))
			Expect(snap.Config.FailureThreshold).To(Equal(2))
		})

		It("should not count a cancelled call as a failure", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			transport.EXPECT().Attempt(gomock.Any()).Return(nil, context.Canceled).Times(3)

			for i := 0; i < 3; i++ {
				_, err := f.FetchWithCircuitBreaker(cancelled, cbConfig)
				Expect(err).To(MatchError(context.Canceled))
			}

			snap, _ := f.BreakerSnapshot()
			Expect(snap.State).To(Equal(circuitbreaker.StateClosed))
			Expect(snap.ConsecutiveFailures).To(BeZero())
		})

		It("should report no breaker before the first call", func() {
			_, ok := f.BreakerSnapshot()
			Expect(ok).To(BeFalse())
		})

		It("should reject an invalid configuration", func() {
			_, err := f.FetchWithCircuitBreaker(ctx, circuitbreaker.Config{})
			Expect(err).To(MatchError(fetcher.ErrInvalidArgument))
		})
	})
})
