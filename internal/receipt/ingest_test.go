package receipt

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/awhite/billfold/internal/scanning"
)

// mockScanner returns a canned extraction or error.
type mockScanner struct {
	extraction *scanning.Extraction
	err        error
	calls      int
}

func (m *mockScanner) ScanReceipt(imageData []byte, contentType string) (*scanning.Extraction, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.extraction, nil
}

func (m *mockScanner) Close() error {
	return nil
}

// mockImages tracks saved and deleted URIs in memory.
type mockImages struct {
	saved   map[string][]byte
	deleted []string
	saveErr error
}

func newMockImages() *mockImages {
	return &mockImages{saved: map[string][]byte{}}
}

func (m *mockImages) Save(filename string, data []byte) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.saved[filename] = data
	return filename, nil
}

func (m *mockImages) Get(uri string) ([]byte, error) {
	data, ok := m.saved[uri]
	if !ok {
		return nil, fmt.Errorf("no image %s", uri)
	}
	return data, nil
}

func (m *mockImages) Delete(uri string) error {
	delete(m.saved, uri)
	m.deleted = append(m.deleted, uri)
	return nil
}

// fixedIDGenerator returns the same ID every time.
type fixedIDGenerator struct {
	id string
}

func (f *fixedIDGenerator) Generate() string {
	return f.id
}

var _ = Describe("Ingestor", func() {
	var (
		ctx      context.Context
		repo     *mockRepository
		store    *Store
		images   *mockImages
		scanner  *mockScanner
		ingestor *Ingestor
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMockRepository()
		store = NewStore(repo, &fakeSnapshotter{})
		images = newMockImages()
		scanner = &mockScanner{
			extraction: &scanning.Extraction{
				MerchantName: "Corner Cafe",
				Date:         "2024-06-01",
				TotalAmount:  12.5,
				TaxAmount:    1.5,
				Items: []scanning.Item{
					{Name: "Sandwich", Price: 8, Quantity: 1, Category: "Dining"},
					{Name: "Coffee", Price: 4.5, Quantity: 1, Category: "Dining"},
				},
			},
		}
		ingestor = NewIngestorWithDeps(store, images, scanner, &fixedIDGenerator{id: "CAPTURE1"})
	})

	It("stores the image and persists the scanned receipt", func() {
		receipt, err := ingestor.ProcessCapture(ctx, "IMG 0042.png", []byte("png-bytes"), "image/png")
		Expect(err).NotTo(HaveOccurred())

		Expect(images.saved).To(HaveKey("CAPTURE1_IMG 0042.png"))
		Expect(receipt.MerchantName).To(Equal("Corner Cafe"))
		Expect(receipt.TotalAmount).To(Equal(12.5))
		Expect(receipt.ImageURI).To(Equal("CAPTURE1_IMG 0042.png"))
		Expect(receipt.Items).To(HaveLen(2))
		Expect(receipt.Category).To(Equal(Dining))
		Expect(store.Receipts()).To(HaveLen(1))
	})

	When("the extraction has no items", func() {
		BeforeEach(func() {
			scanner.extraction.Items = nil
		})

		It("coerces a single placeholder item worth the full total", func() {
			receipt, err := ingestor.ProcessCapture(ctx, "receipt.png", []byte("png-bytes"), "image/png")
			Expect(err).NotTo(HaveOccurred())

			Expect(receipt.Items).To(HaveLen(1))
			Expect(receipt.Items[0].Name).To(Equal("Corner Cafe purchase"))
			Expect(receipt.Items[0].Price).To(Equal(receipt.TotalAmount))
			Expect(receipt.Items[0].Quantity).To(Equal(1))
			Expect(receipt.Items[0].Category).To(Equal("Other"))
		})
	})

	When("the scan fails", func() {
		BeforeEach(func() {
			scanner.err = fmt.Errorf("vision model unreachable")
		})

		It("persists the fallback extraction instead of failing the capture", func() {
			receipt, err := ingestor.ProcessCapture(ctx, "receipt.png", []byte("png-bytes"), "image/png")
			Expect(err).NotTo(HaveOccurred())

			Expect(receipt.MerchantName).To(Equal("Unknown Store"))
			Expect(receipt.TotalAmount).To(Equal(0.0))
			Expect(receipt.Items).To(HaveLen(1))
			Expect(receipt.ImageURI).NotTo(BeEmpty())
		})
	})

	When("the image cannot be saved", func() {
		BeforeEach(func() {
			images.saveErr = fmt.Errorf("disk full")
		})

		It("fails before scanning", func() {
			_, err := ingestor.ProcessCapture(ctx, "receipt.png", []byte("png-bytes"), "image/png")
			Expect(err).To(MatchError(ContainSubstring("disk full")))
			Expect(scanner.calls).To(BeZero())
			Expect(store.Receipts()).To(BeEmpty())
		})
	})

	When("the store rejects the draft", func() {
		BeforeEach(func() {
			repo.saveErr = fmt.Errorf("backend down")
		})

		It("deletes the stored image and surfaces the error", func() {
			_, err := ingestor.ProcessCapture(ctx, "receipt.png", []byte("png-bytes"), "image/png")
			Expect(err).To(MatchError(ContainSubstring("backend down")))
			Expect(images.deleted).To(ContainElement("CAPTURE1_receipt.png"))
			Expect(images.saved).To(BeEmpty())
		})
	})
})

var _ = Describe("sanitizeFilename", func() {
	It("strips special characters and collapses whitespace", func() {
		Expect(sanitizeFilename("My   Receipt!@#.png")).To(Equal("My Receipt.png"))
	})

	It("caps long basenames", func() {
		long := ""
		for range 20 {
			long += "abcdefghij"
		}
		cleaned := sanitizeFilename(long + ".jpg")
		Expect(cleaned).To(HaveLen(50 + len(".jpg")))
	})

	It("substitutes a default for an empty basename", func() {
		Expect(sanitizeFilename("!!!.png")).To(Equal("receipt.png"))
	})
})
