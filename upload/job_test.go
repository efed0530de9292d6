package upload_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	. "github.com/ibmjstart/spoolgo/upload"
)

var _ = Describe("Job", func() {
	var digest = Digest{0xab, 0x01, 0x23, 0x45}

	Describe("Key derivation", func() {
		Context("For plain uploads", func() {
			It("Should derive the key from the remote path", func() {
				job := NewPlainJob("/tmp/a.txt", "/objs/a", false, false)
				Expect(job.Key()).To(Equal("objs/a"))
			})
			It("Should be deterministic across repeated computations", func() {
				job := NewPlainJob("/tmp/a.txt", "objs/a", false, false)
				Expect(job.Key()).To(Equal(job.Key()))
			})
			It("Should normalize equivalent remote paths to the same key", func() {
				first := NewPlainJob("/tmp/a.txt", "/objs//a/", false, false)
				second := NewPlainJob("/tmp/b.txt", "objs/a", false, false)
				Expect(first.Key()).To(Equal(second.Key()))
			})
		})
		Context("For compressed uploads", func() {
			It("Should derive the key from the digest and the suffix", func() {
				job := NewCompressedJob("/tmp/a", "/tmp/compressed", "dir", digest, "C", false, false)
				Expect(job.Key()).To(Equal("ab012345C"))
			})
			It("Should not depend on the remote directory", func() {
				first := NewCompressedJob("/tmp/a", "/tmp/x", "dir1", digest, "", false, false)
				second := NewCompressedJob("/tmp/b", "/tmp/y", "dir2", digest, "", false, false)
				Expect(first.Key()).To(Equal(second.Key()))
			})
			It("Should panic when the digest is missing", func() {
				job := NewCompressedJob("/tmp/a", "/tmp/compressed", "dir", nil, "", false, false)
				Expect(func() { job.Key() }).To(Panic())
			})
		})
		Context("For empty jobs", func() {
			It("Should panic", func() {
				job := NewEmptyJob(1, "/tmp/a")
				Expect(func() { job.Key() }).To(Panic())
			})
		})
	})

	Describe("Variant consistency", func() {
		It("Should keep plain uploads free of content hashes", func() {
			job := NewPlainJob("/tmp/a.txt", "objs/a", false, false)
			Expect(job.Type).To(Equal(PlainUpload))
			Expect(job.ContentHash.IsZero()).To(BeTrue())
			Expect(job.SourcePath).To(Equal(job.LocalPath))
		})
		It("Should carry the compressed file and digest on compressed uploads", func() {
			job := NewCompressedJob("/tmp/a", "/tmp/compressed", "dir", digest, "C", true, false)
			Expect(job.Type).To(Equal(CompressedUpload))
			Expect(job.SourcePath).To(Equal("/tmp/compressed"))
			Expect(job.LocalPath).To(Equal("/tmp/a"))
			Expect(job.Critical).To(BeTrue())
		})
		It("Should preserve the error code and local path on empty jobs", func() {
			job := NewEmptyJob(42, "/tmp/broken")
			Expect(job.Type).To(Equal(EmptyJob))
			Expect(job.ErrorCode()).To(Equal(42))
			Expect(job.LocalPath).To(Equal("/tmp/broken"))
		})
	})

	Describe("Results", func() {
		It("Should treat only a zero return code as success", func() {
			Expect(Result{}.Ok()).To(BeTrue())
			Expect(Result{ReturnCode: CodeTransportFailed}.Ok()).To(BeFalse())
		})
	})
})
