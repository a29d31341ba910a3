package sockrte_test

import (
	"bytes"

	"github.com/arya-analytics/gauge/pkg/rte"
	"github.com/arya-analytics/gauge/pkg/rte/sockrte"
	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fragmenter delivers at most one byte per underlying call in either
// direction.
type fragmenter struct{ buf *bytes.Buffer }

func (f fragmenter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return f.buf.Write(p[:1])
}

func (f fragmenter) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return f.buf.Read(p[:1])
}

// broken fails every transfer attempt.
type broken struct{}

func (broken) Write(p []byte) (int, error) { return 0, errors.New("wire cut") }
func (broken) Read(p []byte) (int, error)  { return 0, errors.New("wire cut") }

var _ = Describe("Stream", func() {
	Describe("SendAll", func() {
		It("Should move the full buffer through a fragmenting stream", func() {
			var buf bytes.Buffer
			data := []byte("the quick brown fox jumps over the lazy dog")
			Expect(sockrte.SendAll(fragmenter{&buf}, data)).To(Succeed())
			Expect(buf.Bytes()).To(Equal(data))
		})
		It("Should succeed trivially on a zero-length buffer", func() {
			Expect(sockrte.SendAll(broken{}, nil)).To(Succeed())
		})
		It("Should surface an underlying failure as TransferFailed", func() {
			err := sockrte.SendAll(broken{}, []byte{1, 2, 3})
			Expect(errors.Is(err, rte.TransferFailed)).To(BeTrue())
		})
	})
	Describe("RecvAll", func() {
		It("Should fill the full buffer from a fragmenting stream", func() {
			src := bytes.NewBufferString("0123456789abcdef")
			buf := make([]byte, 16)
			Expect(sockrte.RecvAll(fragmenter{src}, buf)).To(Succeed())
			Expect(string(buf)).To(Equal("0123456789abcdef"))
		})
		It("Should succeed trivially on a zero-length buffer", func() {
			Expect(sockrte.RecvAll(broken{}, nil)).To(Succeed())
		})
		It("Should surface a short stream as TransferFailed", func() {
			src := bytes.NewBufferString("ab")
			err := sockrte.RecvAll(fragmenter{src}, make([]byte, 4))
			Expect(errors.Is(err, rte.TransferFailed)).To(BeTrue())
		})
	})
})
