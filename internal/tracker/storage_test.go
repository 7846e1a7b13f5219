package tracker

import (
	"path/filepath"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = ginkgo.Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	ginkgo.BeforeEach(func() {
		tmpDir = ginkgo.GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	ginkgo.Describe("Save", func() {
		ginkgo.It("should write the artifact and return its path", func() {
			path, err := storage.Save("receipt.jpg", []byte("artifact bytes"))
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal("receipt.jpg"))
			Expect(filepath.Join(tmpDir, "receipt.jpg")).To(BeAnExistingFile())
		})
	})

	ginkgo.Describe("Get", func() {
		ginkgo.When("the artifact exists", func() {
			ginkgo.BeforeEach(func() {
				_, err := storage.Save("receipt.jpg", []byte("artifact bytes"))
				Expect(err).NotTo(HaveOccurred())
			})

			ginkgo.It("should return its contents", func() {
				data, err := storage.Get("receipt.jpg")
				Expect(err).NotTo(HaveOccurred())
				Expect(data).To(Equal([]byte("artifact bytes")))
			})
		})

		ginkgo.When("the artifact does not exist", func() {
			ginkgo.It("returns the error", func() {
				_, err := storage.Get("missing.jpg")
				Expect(err).To(HaveOccurred())
			})
		})
	})

	ginkgo.Describe("Delete", func() {
		ginkgo.When("the artifact exists", func() {
			ginkgo.BeforeEach(func() {
				_, err := storage.Save("receipt.jpg", []byte("artifact bytes"))
				Expect(err).NotTo(HaveOccurred())
			})

			ginkgo.It("should remove the file", func() {
				Expect(storage.Delete("receipt.jpg")).To(Succeed())
				Expect(filepath.Join(tmpDir, "receipt.jpg")).NotTo(BeAnExistingFile())
			})
		})

		ginkgo.When("the artifact does not exist", func() {
			ginkgo.It("returns the error", func() {
				Expect(storage.Delete("missing.jpg")).To(HaveOccurred())
			})
		})
	})
})
