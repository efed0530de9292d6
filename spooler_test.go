package spoolgo_test

import (
	"crypto/sha1"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/mattetti/filebuffer"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	. "github.com/ibmjstart/spoolgo"
	"github.com/ibmjstart/spoolgo/backend"
	"github.com/ibmjstart/spoolgo/backend/mock"
	"github.com/ibmjstart/spoolgo/upload"
)

// resultLog accumulates terminal results delivered from worker
// goroutines.
type resultLog struct {
	mu      sync.Mutex
	results []upload.Result
}

func (l *resultLog) listen(result upload.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, result)
}

func (l *resultLog) all() []upload.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]upload.Result, len(l.results))
	copy(out, l.results)
	return out
}

var _ = Describe("Spooler", func() {
	var (
		tempfile *os.File
		fileData []byte
		tempDir  string
		store    *mock.BufferStore
		results  *resultLog
		err      error
	)

	BeforeSuite(func() {
		tempfile, err = os.CreateTemp("", "inputFile")
		if err != nil {
			Fail(fmt.Sprintf("Unable to create temporary file: %s", err))
		}
		// write random bytes into file
		fileData = make([]byte, 2048)
		for i := range fileData {
			fileData[i] = byte(rand.Int())
		}
		if _, err = tempfile.Write(fileData); err != nil {
			Fail(fmt.Sprintf("Unable to write data to temporary file: %s", err))
		}
	})

	AfterSuite(func() {
		tempfile.Close()
		os.Remove(tempfile.Name())
	})

	BeforeEach(func() {
		tempDir, err = os.MkdirTemp("", "spoolTemp")
		Expect(err).ToNot(HaveOccurred())
		store = mock.NewBufferStore()
		results = &resultLog{}
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	newSpooler := func(stores ...backend.Store) *Spooler {
		spooler, err := New(Config{
			TempDir: tempDir,
			Stores:  stores,
		})
		Expect(err).ToNot(HaveOccurred())
		spooler.RegisterListener(results.listen)
		return spooler
	}

	Describe("Creating a Spooler", func() {
		Context("With an incomplete configuration", func() {
			It("Should reject a missing temp directory", func() {
				_, err := New(Config{Stores: []backend.Store{store}})
				Expect(err).To(HaveOccurred())
			})
			It("Should reject a configuration without endpoints or stores", func() {
				_, err := New(Config{TempDir: tempDir})
				Expect(err).To(HaveOccurred())
			})
			It("Should reject endpoints that are not URLs", func() {
				_, err := New(Config{
					TempDir:   tempDir,
					Bucket:    "objects",
					Endpoints: []string{"not a url"},
				})
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Copying a file", func() {
		It("Should push the file bytes under the key derived from the remote path", func() {
			spooler := newSpooler(store)
			defer spooler.WaitForTermination()

			Expect(spooler.Copy(tempfile.Name(), "objs/a")).To(Succeed())
			spooler.EndOfTransaction()
			spooler.WaitForUpload()

			Expect(store.Contents("objs/a")).To(Equal(fileData))
			terminal := results.all()
			Expect(terminal).To(HaveLen(1))
			Expect(terminal[0].Ok()).To(BeTrue())
			Expect(terminal[0].LocalPath).To(Equal(tempfile.Name()))
			Expect(spooler.GetNumberOfErrors()).To(Equal(uint64(0)))
		})

		It("Should overwrite on repeated copies to the same remote path", func() {
			spooler := newSpooler(store)
			defer spooler.WaitForTermination()

			Expect(spooler.Copy(tempfile.Name(), "objs/a")).To(Succeed())
			Expect(spooler.Copy(tempfile.Name(), "objs/a")).To(Succeed())
			spooler.EndOfTransaction()
			spooler.WaitForUpload()

			Expect(store.Keys()).To(HaveLen(1))
			Expect(store.PutCount("objs/a")).To(Equal(2))
		})
	})

	Describe("Processing a chunk", func() {
		It("Should store the compressed bytes under their own digest", func() {
			spooler := newSpooler(store)
			defer spooler.WaitForTermination()

			Expect(spooler.ProcessChunk(tempfile.Name(), "data", 0, 0)).To(Succeed())
			spooler.EndOfTransaction()
			spooler.WaitForUpload()

			terminal := results.all()
			Expect(terminal).To(HaveLen(1))
			Expect(terminal[0].Ok()).To(BeTrue())
			Expect(terminal[0].ContentHash.IsZero()).To(BeFalse())

			keys := store.Keys()
			Expect(keys).To(HaveLen(1))
			stored := store.Contents(keys[0])
			digest := sha1.Sum(stored)
			Expect(keys[0]).To(Equal(upload.Digest(digest[:]).Hex()))

			// the stored object decompresses back to the source data
			decompressor, err := zlib.NewReader(filebuffer.New(stored))
			Expect(err).ToNot(HaveOccurred())
			defer decompressor.Close()
			restored, err := io.ReadAll(decompressor)
			Expect(err).ToNot(HaveOccurred())
			Expect(restored).To(Equal(fileData))
		})

		It("Should bypass the upload stage when compression fails", func() {
			spooler := newSpooler(store)
			defer spooler.WaitForTermination()

			Expect(spooler.ProcessChunk("/does/not/exist", "data", 0, 0)).To(Succeed())
			spooler.EndOfTransaction()
			spooler.WaitForUpload()

			terminal := results.all()
			Expect(terminal).To(HaveLen(1))
			Expect(terminal[0].Ok()).To(BeFalse())
			Expect(terminal[0].LocalPath).To(Equal("/does/not/exist"))
			Expect(store.PutTotal()).To(Equal(0))
			Expect(spooler.GetNumberOfErrors()).To(Equal(uint64(1)))
		})
	})

	Describe("Collecting timing statistics", func() {
		It("Should surface stage wall times through the orchestrator", func() {
			spooler := newSpooler(store)
			defer spooler.WaitForTermination()

			Expect(spooler.ProcessChunk(tempfile.Name(), "data", 0, 0)).To(Succeed())
			spooler.EndOfTransaction()
			spooler.WaitForUpload()

			Expect(spooler.CompressionTime()).To(BeNumerically(">", 0))
			Expect(spooler.UploadTime()).To(BeNumerically(">", 0))
			// no critical jobs in this batch, so no token fetches
			Expect(spooler.VectorClockTime()).To(BeZero())
		})

		It("Should account token fetch time for critical suffixes", func() {
			spooler, err := New(Config{
				TempDir:          tempDir,
				Stores:           []backend.Store{store},
				FileSuffix:       "C",
				CriticalSuffixes: []string{"C"},
			})
			Expect(err).ToNot(HaveOccurred())
			defer spooler.WaitForTermination()

			Expect(spooler.ProcessChunk(tempfile.Name(), "catalogs", 0, 0)).To(Succeed())
			spooler.EndOfTransaction()
			spooler.WaitForUpload()

			ops := store.Ops()
			Expect(ops).To(HaveLen(2))
			Expect(ops[0].Kind).To(Equal("read"))
			Expect(ops[1].Kind).To(Equal("write"))
			Expect(ops[1].Critical).To(BeTrue())
			Expect(spooler.VectorClockTime()).To(BeNumerically(">", 0))
		})
	})

	Describe("Counting errors", func() {
		It("Should count one error per failed terminal result across both stages", func() {
			spooler := newSpooler(mock.NewErrorStore())
			defer spooler.WaitForTermination()

			Expect(spooler.Copy(tempfile.Name(), "objs/a")).To(Succeed())
			Expect(spooler.Copy(tempfile.Name(), "objs/b")).To(Succeed())
			Expect(spooler.ProcessChunk("/does/not/exist", "data", 0, 0)).To(Succeed())
			spooler.EndOfTransaction()
			spooler.WaitForUpload()

			Expect(spooler.GetNumberOfErrors()).To(Equal(uint64(3)))
			Expect(results.all()).To(HaveLen(3))
		})
	})

	Describe("Ending a transaction", func() {
		It("Should reject further submissions", func() {
			spooler := newSpooler(store)
			defer spooler.WaitForTermination()

			spooler.EndOfTransaction()
			Expect(spooler.Copy(tempfile.Name(), "objs/a")).To(MatchError(ErrTransactionEnded))
			Expect(spooler.ProcessChunk(tempfile.Name(), "data", 0, 0)).To(MatchError(ErrTransactionEnded))
		})
	})

	Describe("Waiting for termination", func() {
		It("Should leave no submitted job in a non-terminal state", func() {
			spooler := newSpooler(store)

			for i := 0; i < 8; i++ {
				Expect(spooler.Copy(tempfile.Name(), fmt.Sprintf("objs/%d", i))).To(Succeed())
			}
			Expect(spooler.ProcessChunk(tempfile.Name(), "data", 0, 0)).To(Succeed())
			spooler.EndOfTransaction()
			spooler.WaitForUpload()
			spooler.WaitForTermination()

			Expect(results.all()).To(HaveLen(9))
			Expect(spooler.Status().Submitted()).To(Equal(uint(9)))
			Expect(spooler.Status().Completed()).To(Equal(uint(9)))
			Expect(spooler.Status().Failed()).To(Equal(uint(0)))
		})

		It("Should be safe to call twice", func() {
			spooler := newSpooler(store)
			spooler.EndOfTransaction()
			spooler.WaitForTermination()
			Expect(spooler.WaitForTermination).ToNot(Panic())
		})
	})
})
