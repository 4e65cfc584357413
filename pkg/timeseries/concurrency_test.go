package timeseries_test

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rttools/rttools/pkg/cancel"
	"github.com/rttools/rttools/pkg/thread"
	"github.com/rttools/rttools/pkg/timeseries"
)

type matrix [4][4]float64

func randomInputs(n int) []matrix {
	rng := rand.New(rand.NewSource(0))
	inputs := make([]matrix, n)
	for i := range inputs {
		for r := range inputs[i] {
			for c := range inputs[i][r] {
				inputs[i][r][c] = rng.Float64()
			}
		}
	}
	return inputs
}

var _ = Describe("Timeseries with one producer and many readers", func() {
	const (
		length   = 2000
		nOutputs = 10
	)

	var (
		spawner thread.Spawner
		inputs  []matrix
	)

	BeforeEach(func() {
		spawner = thread.LockedThread{}
		inputs = randomInputs(length)
	})

	// every reader walks the whole stream from index 0 and must see exactly
	// the producer's sequence
	run := func(ts *timeseries.Timeseries[matrix], producerDelay time.Duration) [][]matrix {
		outputs := make([][]matrix, nOutputs)
		var readers []*thread.Handle
		for i := 0; i < nOutputs; i++ {
			outputs[i] = make([]matrix, length)
			out := outputs[i]
			h, err := spawner.Spawn(context.Background(), "reader", func(context.Context) {
				defer GinkgoRecover()
				for j := 0; j < length; j++ {
					v, err := ts.Get(timeseries.Index(j), 10*time.Second)
					Expect(err).ToNot(HaveOccurred())
					out[j] = v
				}
			})
			Expect(err).ToNot(HaveOccurred())
			readers = append(readers, h)
		}

		time.Sleep(time.Millisecond)
		producer, err := spawner.Spawn(context.Background(), "producer", func(context.Context) {
			for _, in := range inputs {
				ts.Append(in)
				if producerDelay > 0 {
					time.Sleep(producerDelay)
				}
			}
		})
		Expect(err).ToNot(HaveOccurred())

		producer.Join()
		thread.JoinAll(readers...)
		return outputs
	}

	It("delivers the full history to every reader with a fast producer", func() {
		ts := timeseries.MustNew[matrix](length)
		outputs := run(ts, 0)
		for i := range outputs {
			Expect(cmp.Diff(inputs, outputs[i])).To(BeEmpty(), "reader %d", i)
		}
		Expect(ts.Length()).To(Equal(length))
	})

	It("delivers every element to every reader with a slowed producer and partial history", func() {
		ts := timeseries.MustNew[matrix](256)
		outputs := run(ts, 100*time.Microsecond)
		for i := range outputs {
			Expect(cmp.Diff(inputs, outputs[i])).To(BeEmpty(), "reader %d", i)
		}
		Expect(ts.Length()).To(Equal(256))

		// sanity check: a modified input no longer matches
		inputs[0][0][0] = 33
		Expect(cmp.Diff(inputs, outputs[0])).ToNot(BeEmpty())
	})

	It("releases every blocked reader when the stream is cancelled", func() {
		token := cancel.NewToken()
		ts := timeseries.MustNew[matrix](16, timeseries.WithCancelToken(token), timeseries.WithPollInterval(20*time.Millisecond))

		errs := make(chan error, nOutputs)
		for i := 0; i < nOutputs; i++ {
			index := timeseries.Index(i * 3)
			_, err := spawner.Spawn(context.Background(), "waiter", func(context.Context) {
				_, err := ts.Get(index, timeseries.Forever)
				errs <- err
			})
			Expect(err).ToNot(HaveOccurred())
		}

		token.Cancel()
		for i := 0; i < nOutputs; i++ {
			Eventually(errs).WithTimeout(time.Second).Should(Receive(MatchError(timeseries.ErrCancelled)))
		}
	})
})
