package fetch

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/downlocal/downlocal/pkg/types"
)

var _ = Describe("RetryPolicy", func() {

	var (
		policy   *RetryPolicy
		ctx      context.Context
		fn       func() error
		attempts int
		err      error
	)

	BeforeEach(func() {
		policy = fastRetry(3)
		ctx = context.Background()
	})

	JustBeforeEach(func() {
		attempts, err = policy.Do(ctx, fn)
	})

	Context("When the operation succeeds immediately", func() {
		BeforeEach(func() {
			fn = func() error { return nil }
		})
		It("Should make a single attempt", func() {
			Expect(err).ToNot(HaveOccurred())
			Expect(attempts).To(Equal(1))
		})
	})

	Context("When the operation fails transiently before succeeding", func() {
		BeforeEach(func() {
			failures := 2
			fn = func() error {
				if failures > 0 {
					failures--
					return &types.PullError{Ref: &types.ImageRef{Repository: "nginx", Tag: "latest"}, Cause: errors.New("timeout")}
				}
				return nil
			}
		})
		It("Should succeed within the attempt budget", func() {
			Expect(err).ToNot(HaveOccurred())
			Expect(attempts).To(Equal(3))
		})
	})

	Context("When the operation always fails transiently", func() {
		BeforeEach(func() {
			fn = func() error {
				return &types.PullError{Ref: &types.ImageRef{Repository: "nginx", Tag: "latest"}, Cause: errors.New("timeout")}
			}
		})
		It("Should stop at the attempt budget with the last error", func() {
			Expect(err).To(HaveOccurred())
			Expect(attempts).To(Equal(3))
		})
	})

	Context("When the operation fails permanently", func() {
		BeforeEach(func() {
			fn = func() error {
				return &types.PullError{
					Ref:       &types.ImageRef{Repository: "nginx", Tag: "latest"},
					Cause:     errors.New("manifest not found"),
					Permanent: true,
				}
			}
		})
		It("Should not retry", func() {
			Expect(err).To(HaveOccurred())
			Expect(attempts).To(Equal(1))
		})
	})

	Context("When an error is not a pull failure", func() {
		BeforeEach(func() {
			fn = func() error { return errors.New("unexpected") }
		})
		It("Should not retry", func() {
			Expect(err).To(HaveOccurred())
			Expect(attempts).To(Equal(1))
		})
	})

	Context("When the context is cancelled between attempts", func() {
		BeforeEach(func() {
			cancelled, cancel := context.WithCancel(context.Background())
			cancel()
			ctx = cancelled
			fn = func() error {
				return &types.PullError{Ref: &types.ImageRef{Repository: "nginx", Tag: "latest"}, Cause: errors.New("timeout")}
			}
		})
		It("Should stop with the context error", func() {
			Expect(err).To(MatchError(context.Canceled))
			Expect(attempts).To(Equal(1))
		})
	})
})

var _ = Describe("ExponentialBackoff", func() {
	It("Should double the base wait per failed attempt", func() {
		backoff := ExponentialBackoff(time.Second)
		Expect(backoff(1)).To(Equal(time.Second))
		Expect(backoff(2)).To(Equal(2 * time.Second))
		Expect(backoff(3)).To(Equal(4 * time.Second))
	})
})
