package executor_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/arraytuner/executor"
	"github.com/sarchlab/arraytuner/record"
)

func validRecord(lat float64) *record.Record {
	return &record.Record{Valid: true, Latency: lat, Reward: 1 / lat}
}

var _ = Describe("Pool", func() {
	It("should run a duplicated hash exactly once", func() {
		pool := executor.PoolBuilder{}.WithWorkers(4).Build()
		batch := pool.NewBatch()

		var runs atomic.Int32
		fn := func(ctx context.Context) *record.Record {
			runs.Add(1)
			return validRecord(10)
		}

		Expect(batch.Submit("same", fn)).To(BeTrue())
		Expect(batch.Submit("same", fn)).To(BeFalse())

		results := batch.Wait(context.Background())

		Expect(runs.Load()).To(Equal(int32(1)))
		Expect(results).To(HaveLen(1))
		Expect(results["same"].Valid).To(BeTrue())
	})

	It("should return one result per hash", func() {
		pool := executor.PoolBuilder{}.WithWorkers(2).Build()
		batch := pool.NewBatch()

		for i := range 10 {
			lat := float64(i + 1)
			batch.Submit(fmt.Sprint(i), func(ctx context.Context) *record.Record {
				return validRecord(lat)
			})
		}

		results := batch.Wait(context.Background())

		Expect(results).To(HaveLen(10))
		for i := range 10 {
			Expect(results[fmt.Sprint(i)].Latency).To(Equal(float64(i + 1)))
		}
	})

	It("should downgrade unfinished jobs to invalid records", func() {
		pool := executor.PoolBuilder{}.
			WithWorkers(2).
			WithTimeout(50 * time.Millisecond).
			Build()
		batch := pool.NewBatch()

		batch.Submit("fast", func(ctx context.Context) *record.Record {
			return validRecord(1)
		})
		batch.Submit("slow", func(ctx context.Context) *record.Record {
			<-ctx.Done()
			return validRecord(2)
		})

		start := time.Now()
		results := batch.Wait(context.Background())

		Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))
		Expect(results["fast"].Valid).To(BeTrue())
		Expect(results["slow"].Valid).To(BeFalse())
	})

	It("should finish a shared job for a batch that outlives another", func() {
		pool := executor.PoolBuilder{}.WithWorkers(2).Build()

		var runs atomic.Int32
		started := make(chan struct{})
		release := make(chan struct{})
		fn := func(ctx context.Context) *record.Record {
			if runs.Add(1) == 1 {
				close(started)
			}

			select {
			case <-release:
				return validRecord(3)
			case <-ctx.Done():
				return nil
			}
		}

		short := pool.NewBatch()
		short.Submit("shared", fn)
		long := pool.NewBatch()
		long.Submit("shared", fn)

		shortCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		shortDone := make(chan map[string]*record.Record, 1)
		go func() { shortDone <- short.Wait(shortCtx) }()
		Eventually(started, time.Second).Should(BeClosed())

		longDone := make(chan map[string]*record.Record, 1)
		go func() { longDone <- long.Wait(context.Background()) }()

		var shortRes map[string]*record.Record
		Eventually(shortDone, 5*time.Second).Should(Receive(&shortRes))
		Expect(shortRes["shared"].Valid).To(BeFalse())
		Consistently(longDone, 50*time.Millisecond).ShouldNot(Receive())

		close(release)

		var longRes map[string]*record.Record
		Eventually(longDone, 5*time.Second).Should(Receive(&longRes))
		Expect(longRes["shared"].Valid).To(BeTrue())
		Expect(longRes["shared"].Latency).To(Equal(3.0))
		Expect(runs.Load()).To(Equal(int32(1)))
	})

	It("should start a fresh run once every waiter has given up", func() {
		pool := executor.PoolBuilder{}.
			WithWorkers(1).
			WithTimeout(30 * time.Millisecond).
			Build()

		var runs atomic.Int32
		fn := func(ctx context.Context) *record.Record {
			if runs.Add(1) == 1 {
				<-ctx.Done()
				return nil
			}

			return validRecord(4)
		}

		first := pool.NewBatch()
		first.Submit("retry", fn)
		Expect(first.Wait(context.Background())["retry"].Valid).To(BeFalse())

		second := pool.NewBatch()
		second.Submit("retry", fn)
		Expect(second.Wait(context.Background())["retry"].Valid).To(BeTrue())
		Expect(runs.Load()).To(Equal(int32(2)))
	})

	It("should treat a nil result as invalid", func() {
		pool := executor.PoolBuilder{}.WithWorkers(1).Build()
		batch := pool.NewBatch()
		batch.Submit("nil", func(ctx context.Context) *record.Record { return nil })

		Expect(batch.Wait(context.Background())["nil"].Valid).To(BeFalse())
	})
})
