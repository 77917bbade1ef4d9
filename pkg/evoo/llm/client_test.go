package llm_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/evoo/evoo/pkg/evoo/llm"
)

type stubProvider struct {
	calls     int
	failUntil int
	err       error
	response  string
}

func (s *stubProvider) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.calls++
	if s.calls <= s.failUntil {
		return "", s.err
	}
	return s.response, nil
}

var _ = Describe("Client", func() {
	It("returns the provider's response on first success", func() {
		p := &stubProvider{response: "hello"}
		c := llm.New(p, llm.WithMaxRetries(3))
		out, err := c.Complete(context.Background(), llm.Request{SystemPrompt: "s", UserPrompt: "u"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("hello"))
		Expect(p.calls).To(Equal(1))
	})

	It("retries on transient failure and eventually succeeds", func() {
		p := &stubProvider{failUntil: 2, err: errors.New("http_error: boom"), response: "ok"}
		c := llm.New(p, llm.WithMaxRetries(5))
		out, err := c.Complete(context.Background(), llm.Request{})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("ok"))
		Expect(p.calls).To(Equal(3))
	})

	It("returns the cancellation sentinel immediately without further attempts", func() {
		p := &stubProvider{failUntil: 99, err: errors.New("boom")}
		c := llm.New(p, llm.WithMaxRetries(5))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.Complete(ctx, llm.Request{})
		Expect(errors.Is(err, llm.ErrCancelled)).To(BeTrue())
		Expect(p.calls).To(Equal(0))
	})

	It("gives up after exhausting all retries", func() {
		p := &stubProvider{failUntil: 99, err: errors.New("persistent failure")}
		c := llm.New(p, llm.WithMaxRetries(2))
		start := time.Now()
		_, err := c.Complete(context.Background(), llm.Request{})
		Expect(err).To(HaveOccurred())
		Expect(p.calls).To(Equal(2))
		Expect(time.Since(start)).To(BeNumerically(">=", 2*time.Second))
	})

	It("invokes the heartbeat before each attempt", func() {
		p := &stubProvider{response: "hi"}
		var beats []string
		c := llm.New(p, llm.WithHeartbeat(func(msg string) { beats = append(beats, msg) }))
		_, err := c.Complete(context.Background(), llm.Request{})
		Expect(err).NotTo(HaveOccurred())
		Expect(beats).NotTo(BeEmpty())
	})
})
