//go:build integration

package integration

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/bgmute/internal/config"
	"github.com/eliteGoblin/focusd/bgmute/internal/daemon"
	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
	"github.com/eliteGoblin/focusd/bgmute/internal/infra"
	"github.com/eliteGoblin/focusd/bgmute/internal/policy"
	"github.com/eliteGoblin/focusd/bgmute/internal/usecase"
	"github.com/eliteGoblin/focusd/bgmute/test/fixtures"
)

var _ = Describe("Muting engine", func() {
	var (
		platform   *fixtures.FakePlatform
		store      *config.Store
		ledger     *infra.SQLLedger
		reconciler *usecase.ReconcilerImpl
	)

	pass := func() domain.PassResult {
		return reconciler.Reconcile(context.Background(), domain.PassOptions{})
	}

	// appliedMatchesDesired checks that every tracked session's applied state
	// equals the desired state for the given inputs.
	appliedMatchesDesired := func(focus *domain.ProcessIdentity) {
		settings := store.Settings()
		excluded := policy.NewExclusionSet(settings.Excluded...)
		for _, v := range reconciler.Snapshot().Sessions {
			want := policy.DesiredMute(v.Identity, policy.IsFocused(v.Identity, focus), settings.MutingEnabled, excluded)
			applied, known := v.State.AppliedMute()
			Expect(known).To(BeTrue(), "session %s has no applied state", v.Identity)
			Expect(applied).To(Equal(want), "session %s", v.Identity)
		}
	}

	ledgerKeys := func() []string {
		records, err := ledger.List()
		Expect(err).NotTo(HaveOccurred())
		keys := make([]string, 0, len(records))
		for _, r := range records {
			keys = append(keys, domain.ProcessIdentity{PID: r.PID, ExeName: r.ExeName}.Key())
		}
		return keys
	}

	engineMutedKeys := func() []string {
		var keys []string
		for _, v := range reconciler.Snapshot().Sessions {
			if v.State == domain.StateMutedByEngine {
				keys = append(keys, v.Identity.Key())
			}
		}
		return keys
	}

	BeforeEach(func() {
		platform = fixtures.NewFakePlatform()
		cfg := config.Default()
		store = config.NewStore(&cfg, zap.NewNop())

		var err error
		ledger, err = infra.OpenLedger(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		reconciler = usecase.NewReconciler(usecase.ReconcilerConfig{}, platform, platform, store, zap.NewNop()).
			WithLedger(ledger)
	})

	AfterEach(func() {
		Expect(ledger.Close()).To(Succeed())
	})

	Describe("focus follow", func() {
		It("unmutes the focused app and mutes the rest within one pass", func() {
			a := platform.AddSession(10, "app_a.exe")
			b := platform.AddSession(20, "app_b.exe")
			platform.Focus(10, "app_a.exe")

			res := pass()
			Expect(res.Clean).To(BeTrue())
			Expect(a.Muted()).To(BeFalse())
			Expect(b.Muted()).To(BeTrue())
			appliedMatchesDesired(res.Focus)

			platform.Focus(20, "app_b.exe")
			res = pass()
			Expect(res.Clean).To(BeTrue())
			Expect(a.Muted()).To(BeTrue())
			Expect(b.Muted()).To(BeFalse())
			appliedMatchesDesired(res.Focus)
		})
	})

	Describe("idempotence", func() {
		It("issues no mute calls when inputs do not change", func() {
			platform.AddSession(10, "app_a.exe")
			platform.AddSession(20, "app_b.exe")
			platform.Focus(10, "app_a.exe")

			Expect(pass().MuteCalls).To(Equal(2))
			Expect(pass().MuteCalls).To(Equal(0))
		})
	})

	Describe("exclusion precedence", func() {
		It("keeps excluded apps unmuted regardless of focus", func() {
			Expect(store.SetExcluded([]string{"Spotify.exe"})).To(Succeed())
			spotify := platform.AddSession(10, "spotify.exe")
			platform.AddSession(20, "notepad.exe")
			platform.Focus(20, "notepad.exe")

			res := pass()
			Expect(spotify.Muted()).To(BeFalse())
			appliedMatchesDesired(res.Focus)
		})
	})

	Describe("global disable", func() {
		It("unmutes every muted session on the next pass", func() {
			bg := platform.AddSession(20, "app_b.exe")
			platform.Focus(10, "app_a.exe")
			pass()
			Expect(bg.Muted()).To(BeTrue())

			Expect(store.SetMutingEnabled(false)).To(Succeed())
			res := pass()
			Expect(bg.Muted()).To(BeFalse())
			appliedMatchesDesired(res.Focus)
		})
	})

	Describe("new session while focused", func() {
		It("is never observed muted", func() {
			platform.AddSession(20, "app_b.exe")
			platform.Focus(10, "app_a.exe")
			pass()

			a := platform.AddSession(10, "app_a.exe")
			reconciler.Reconcile(context.Background(), domain.PassOptions{ForceRefresh: true})
			pass()

			Expect(a.Calls()).NotTo(ContainElement(true))
			Expect(a.Muted()).To(BeFalse())
		})
	})

	Describe("mute ledger", func() {
		It("holds exactly the sessions muted by the engine", func() {
			platform.AddSession(10, "app_a.exe")
			platform.AddSession(20, "app_b.exe")
			platform.AddSession(30, "app_c.exe")
			platform.Focus(10, "app_a.exe")

			pass()
			Expect(ledgerKeys()).To(ConsistOf(engineMutedKeys()))

			platform.Focus(20, "app_b.exe")
			pass()
			Expect(ledgerKeys()).To(ConsistOf(engineMutedKeys()))

			platform.RemoveSession(30, "app_c.exe")
			reconciler.Reconcile(context.Background(), domain.PassOptions{ForceRefresh: true})
			Expect(ledgerKeys()).To(ConsistOf(engineMutedKeys()))
			Expect(ledgerKeys()).To(HaveLen(1))
		})

		It("lets a restore unmute sessions left muted by a crashed run", func() {
			b := platform.AddSession(20, "app_b.exe")
			platform.Focus(10, "app_a.exe")
			pass()
			Expect(b.Muted()).To(BeTrue())

			// Crash: no shutdown pass. A later restore cleans up.
			res, err := usecase.NewRestorer(platform, ledger, zap.NewNop()).Restore(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Unmuted).To(HaveLen(1))
			Expect(b.Muted()).To(BeFalse())
			Expect(ledgerKeys()).To(BeEmpty())
		})
	})

	Describe("scheduler lifecycle", func() {
		var (
			notifier  *fixtures.FakeNotifier
			scheduler *daemon.Scheduler
			cancel    context.CancelFunc
			done      chan error
		)

		BeforeEach(func() {
			notifier = fixtures.NewFakeNotifier()
			scheduler = daemon.NewScheduler(
				daemon.SchedulerConfig{PollInterval: 5 * time.Millisecond, RefreshInterval: 25 * time.Millisecond},
				reconciler, platform, notifier, zap.NewNop()).
				WithLedger(ledger)
			daemon.NewService(store, reconciler, scheduler, zap.NewNop())
		})

		start := func() {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			done = make(chan error, 1)
			go func() { done <- scheduler.Run(ctx) }()
		}

		It("restores every engine-muted session on shutdown", func() {
			handles := []*fixtures.FakeHandle{
				platform.AddSession(20, "app_b.exe"),
				platform.AddSession(30, "app_c.exe"),
				platform.AddSession(40, "app_d.exe"),
			}
			platform.Focus(10, "app_a.exe")

			start()
			for _, h := range handles {
				Eventually(h.Muted).Should(BeTrue())
			}

			cancel()
			Eventually(done).Should(Receive(BeNil()))

			for _, h := range handles {
				Expect(h.Muted()).To(BeFalse())
			}
			Expect(platform.Closed()).To(BeTrue())
			Expect(ledgerKeys()).To(BeEmpty())
		})

		It("keeps ledger rows for sessions it could not restore", func() {
			b := platform.AddSession(20, "app_b.exe")
			c := platform.AddSession(30, "app_c.exe")
			platform.Focus(10, "app_a.exe")

			start()
			Eventually(b.Muted).Should(BeTrue())
			Eventually(c.Muted).Should(BeTrue())
			c.FailNext(1)

			cancel()
			Eventually(done).Should(Receive(BeNil()))

			Expect(b.Muted()).To(BeFalse())
			Expect(c.Muted()).To(BeTrue())
			Expect(ledgerKeys()).To(ConsistOf("app_c.exe|30"))

			res, err := usecase.NewRestorer(platform, ledger, zap.NewNop()).Restore(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Unmuted).To(HaveLen(1))
			Expect(c.Muted()).To(BeFalse())
			Expect(ledgerKeys()).To(BeEmpty())
		})

		It("keeps running through enumeration and focus failures", func() {
			a := platform.AddSession(10, "app_a.exe")
			b := platform.AddSession(20, "app_b.exe")
			platform.Focus(10, "app_a.exe")
			start()
			Eventually(b.Muted).Should(BeTrue())

			platform.FailList(fixtures.ErrInjected)
			platform.Focus(20, "app_b.exe")
			notifier.Fire()
			Eventually(a.Muted).Should(BeTrue())
			Expect(b.Muted()).To(BeFalse())

			platform.FailFocus(fixtures.ErrInjected)
			Consistently(a.Muted, 50*time.Millisecond).Should(BeTrue())

			platform.FailList(nil)
			platform.FailFocus(nil)
			Expect(store.SetMutingEnabled(false)).To(Succeed())
			Eventually(a.Muted).Should(BeFalse())

			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})
