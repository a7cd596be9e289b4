package simulation_test

import (
	"fmt"
	"math/rand"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/snoopsim/config"
	"github.com/sarchlab/snoopsim/loader"
	"github.com/sarchlab/snoopsim/simulation"
	"github.com/sarchlab/snoopsim/timing/bus"
	"github.com/sarchlab/snoopsim/timing/cache"
	"github.com/sarchlab/snoopsim/timing/core"
)

func traces(sources ...string) []core.Trace {
	out := make([]core.Trace, 0, len(sources))
	for i, src := range sources {
		out = append(out, loader.NewTrace(fmt.Sprintf("core%d", i), strings.NewReader(src), 0))
	}
	return out
}

func systemConfig(protocol string, cores int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Protocol = protocol
	cfg.Cores = cores
	cfg.Cache = cache.Config{Size: 1024, Associativity: 2, BlockSize: 16}
	return cfg
}

func lineAt(s *simulation.Simulation, core int, addr uint64) *cache.Line {
	ctrl := s.Controllers[core]
	return ctrl.LineIfPresent(ctrl.ParseAddress(addr))
}

type countingRecorder struct {
	txns []bus.Transaction
}

func (r *countingRecorder) Record(txn bus.Transaction) {
	r.txns = append(r.txns, txn)
}

var _ = Describe("Simulation", func() {
	Describe("Build", func() {
		It("should reject a trace count that does not match the cores", func() {
			_, err := simulation.Build(systemConfig("MESI", 2), traces("0 0\n"))
			Expect(err).To(MatchError(ContainSubstring("2 cores configured but 1 traces")))
		})

		It("should reject an invalid configuration", func() {
			cfg := systemConfig("MOESI", 1)
			_, err := simulation.Build(cfg, traces("0 0\n"))
			Expect(err).To(MatchError(ContainSubstring("invalid config")))
		})
	})

	It("should stream a MESI read of a modified block from its owner", func() {
		s, err := simulation.Build(systemConfig("MESI", 2), traces(
			"1 0\n",
			"2 c8\n0 0\n",
		))
		Expect(err).NotTo(HaveOccurred())

		result, err := s.Run()
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Protocol).To(Equal("MESI"))
		Expect(result.Cores[0].FinishedAt).To(Equal(uint64(101)))
		Expect(result.Cores[1].FinishedAt).To(Equal(uint64(301)))
		Expect(result.Cycles).To(Equal(uint64(301)))
		Expect(result.Cores[1].ComputeCycles).To(Equal(uint64(200)))
		Expect(result.Cores[1].IdleCycles).To(Equal(uint64(101)))
		Expect(result.Bus).To(Equal(bus.Stats{
			DataTraffic:  32,
			Transactions: 2,
		}))

		owner := lineAt(s, 0, 0)
		Expect(owner.State()).To(Equal(cache.Shared))
		Expect(owner.Dirty()).To(BeFalse())
		Expect(lineAt(s, 1, 0).State()).To(Equal(cache.Shared))
	})

	It("should update a Dragon owner instead of invalidating it", func() {
		s, err := simulation.Build(systemConfig("Dragon", 2), traces(
			"1 0\n",
			"2 c8\n1 0\n",
		))
		Expect(err).NotTo(HaveOccurred())

		result, err := s.Run()
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Cores[1].FinishedAt).To(Equal(uint64(203)))
		Expect(result.Bus).To(Equal(bus.Stats{
			DataTraffic:  16 + 16 + 4,
			Updates:      1,
			Transactions: 2,
		}))

		Expect(lineAt(s, 0, 0).State()).To(Equal(cache.Shared))
		Expect(lineAt(s, 0, 0).Dirty()).To(BeFalse())
		Expect(lineAt(s, 1, 0).State()).To(Equal(cache.Owned))
		Expect(lineAt(s, 1, 0).Dirty()).To(BeTrue())
	})

	It("should halt the core while a dirty victim is written back", func() {
		cfg := systemConfig("MESI", 1)
		cfg.Cache = cache.Config{Size: 16, Associativity: 1, BlockSize: 16}

		s, err := simulation.Build(cfg, traces("1 0\n1 10\n"))
		Expect(err).NotTo(HaveOccurred())

		result, err := s.Run()
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Cores[0].FinishedAt).To(Equal(uint64(302)))
		Expect(result.Cores[0].IdleCycles).To(Equal(uint64(302)))
		Expect(result.Cores[0].Misses).To(Equal(uint64(2)))
		Expect(lineAt(s, 0, 0)).To(BeNil())
		Expect(lineAt(s, 0, 0x10).State()).To(Equal(cache.Modified))
	})

	It("should serialize two cores missing on the same block", func() {
		s, err := simulation.Build(systemConfig("MESI", 2), traces(
			"0 0\n",
			"0 0\n",
		))
		Expect(err).NotTo(HaveOccurred())

		result, err := s.Run()
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Cores[0].FinishedAt).To(Equal(uint64(101)))
		Expect(result.Cores[1].FinishedAt).To(Equal(uint64(110)))
		Expect(lineAt(s, 0, 0).State()).To(Equal(cache.Shared))
		Expect(lineAt(s, 1, 0).State()).To(Equal(cache.Shared))
	})

	It("should serve repeated accesses from the local cache", func() {
		s, err := simulation.Build(systemConfig("MESI", 1), traces(
			"0 0\n0 4\n1 8\n0 c\n",
		))
		Expect(err).NotTo(HaveOccurred())

		result, err := s.Run()
		Expect(err).NotTo(HaveOccurred())

		stats := result.Cores[0]
		Expect(stats.Misses).To(Equal(uint64(1)))
		Expect(stats.Hits).To(Equal(uint64(3)))
		Expect(stats.FinishedAt).To(Equal(uint64(104)))
		Expect(stats.PrivateAccesses).To(Equal(uint64(4)))
		Expect(result.Bus.Transactions).To(Equal(uint64(1)))
		Expect(lineAt(s, 0, 0).State()).To(Equal(cache.Modified))
	})

	It("should record every delivered transaction", func() {
		recorder := &countingRecorder{}
		s, err := simulation.Build(systemConfig("Dragon", 2), traces(
			"0 40\n1 40\n",
			"0 80\n",
		), simulation.WithRecorder(recorder))
		Expect(err).NotTo(HaveOccurred())

		result, err := s.Run()
		Expect(err).NotTo(HaveOccurred())

		Expect(recorder.txns).To(HaveLen(int(result.Bus.Transactions)))
		Expect(recorder.txns[0].Address).To(Equal(uint64(0x40)))
	})

	It("should stop on a malformed trace", func() {
		s, err := simulation.Build(systemConfig("MESI", 1), traces("0 0\n9 9\n"))
		Expect(err).NotTo(HaveOccurred())

		_, err = s.Run()
		Expect(err).To(MatchError(ContainSubstring("unknown instruction label")))
	})

	Context("with contending random traces", func() {
		randomTraces := func(seed int64, cores, n int) []string {
			r := rand.New(rand.NewSource(seed))
			out := make([]string, cores)
			for c := range out {
				var b strings.Builder
				for i := 0; i < n; i++ {
					addr := r.Intn(12) * 16
					switch r.Intn(6) {
					case 0:
						fmt.Fprintf(&b, "2 %x\n", r.Intn(4)+1)
					case 1, 2, 3:
						fmt.Fprintf(&b, "0 %x\n", addr)
					default:
						fmt.Fprintf(&b, "1 %x\n", addr)
					}
				}
				out[c] = b.String()
			}
			return out
		}

		smallSystem := func(protocol string, seed int64) *simulation.Simulation {
			cfg := systemConfig(protocol, 4)
			cfg.Cache = cache.Config{Size: 64, Associativity: 2, BlockSize: 16}
			cfg.Timing.LoadBlockFromMem = 20
			cfg.Timing.WriteBackMem = 10

			s, err := simulation.Build(cfg, traces(randomTraces(seed, 4, 300)...))
			Expect(err).NotTo(HaveOccurred())
			return s
		}

		// holders collects the states of every valid copy of each block.
		holders := func(s *simulation.Simulation) map[uint64][]cache.State {
			blocks := make(map[uint64][]cache.State)
			for _, ctrl := range s.Controllers {
				c := ctrl.Cache()
				c.ForEachValidLine(func(addr cache.Address, line *cache.Line) {
					block := c.BlockAddress(addr)
					blocks[block] = append(blocks[block], line.State())
				})
			}
			return blocks
		}

		count := func(states []cache.State, match ...cache.State) int {
			n := 0
			for _, s := range states {
				for _, m := range match {
					if s == m {
						n++
					}
				}
			}
			return n
		}

		It("should never let a MESI private copy coexist with another copy", func() {
			s := smallSystem("MESI", 1)

			for s.Timer.Tick() {
				for block, states := range holders(s) {
					Expect(count(states, cache.Owned, cache.Invalid)).To(BeZero())
					private := count(states, cache.Modified, cache.Exclusive)
					Expect(private).To(BeNumerically("<=", 1), "block %#x", block)
					if private == 1 {
						Expect(states).To(HaveLen(1), "block %#x", block)
					}
				}
			}
			Expect(s.Timer.Err()).NotTo(HaveOccurred())
			Expect(s.Result().Bus.Invalidations).To(BeNumerically(">", 0))
		})

		It("should keep a single Dragon owner and never invalidate", func() {
			s := smallSystem("Dragon", 2)

			for s.Timer.Tick() {
				for block, states := range holders(s) {
					Expect(count(states, cache.Invalid)).To(BeZero())
					Expect(count(states, cache.Modified, cache.Owned)).
						To(BeNumerically("<=", 1), "block %#x", block)
					if count(states, cache.Modified, cache.Exclusive) == 1 {
						Expect(states).To(HaveLen(1), "block %#x", block)
					}
				}
			}
			Expect(s.Timer.Err()).NotTo(HaveOccurred())

			result := s.Result()
			Expect(result.Bus.Invalidations).To(BeZero())
			Expect(result.Bus.Updates).To(BeNumerically(">", 0))
		})

		It("should only ever grow its counters", func() {
			s := smallSystem("MESI", 3)
			prev := s.Result()

			for s.Timer.Tick() {
				cur := s.Result()
				Expect(cur.Bus.DataTraffic).To(BeNumerically(">=", prev.Bus.DataTraffic))
				Expect(cur.Bus.Invalidations).To(BeNumerically(">=", prev.Bus.Invalidations))
				Expect(cur.Bus.Transactions).To(BeNumerically(">=", prev.Bus.Transactions))
				for i := range cur.Cores {
					Expect(cur.Cores[i].Instructions).To(BeNumerically(">=", prev.Cores[i].Instructions))
					Expect(cur.Cores[i].IdleCycles).To(BeNumerically(">=", prev.Cores[i].IdleCycles))
					Expect(cur.Cores[i].ComputeCycles).To(BeNumerically(">=", prev.Cores[i].ComputeCycles))
				}
				prev = cur
			}
			Expect(s.Timer.Err()).NotTo(HaveOccurred())
		})

		It("should execute every instruction of every trace", func() {
			result, err := smallSystem("Dragon", 4).Run()
			Expect(err).NotTo(HaveOccurred())

			for _, stats := range result.Cores {
				Expect(stats.Instructions).To(Equal(uint64(300)))
				Expect(stats.ComputeCycles + stats.IdleCycles).To(Equal(stats.FinishedAt))
			}
		})

		It("should produce identical results for identical inputs", func() {
			for _, protocol := range []string{"MESI", "Dragon"} {
				first, err := smallSystem(protocol, 5).Run()
				Expect(err).NotTo(HaveOccurred())
				second, err := smallSystem(protocol, 5).Run()
				Expect(err).NotTo(HaveOccurred())

				Expect(second).To(Equal(first))
			}
		})
	})
})
