package session_test

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"

	"github.com/opencode-ai/workbench/citest/testutil"
	"github.com/opencode-ai/workbench/internal/analysis"
	"github.com/opencode-ai/workbench/internal/bootstrap"
	"github.com/opencode-ai/workbench/internal/config"
	"github.com/opencode-ai/workbench/internal/event"
	"github.com/opencode-ai/workbench/internal/prefs"
	"github.com/opencode-ai/workbench/internal/session"
	"github.com/opencode-ai/workbench/internal/storage"
)

var _ = Describe("Session lifecycle", func() {
	var (
		project  *testutil.TempDir
		stateDir *testutil.TempDir
		app      *analysis.AppEnvironment
		bus      *event.Bus
		store    *prefs.FileStore
		recorder *testutil.EventRecorder
		cfg      *config.Config
	)

	mainActivity := func() string {
		return filepath.Join(project.Path, "app/src/main/java/com/example/MainActivity.java")
	}

	start := func() *session.Coordinator {
		c, err := session.New(ctx, session.Options{
			App:         app,
			Bus:         bus,
			Prefs:       store,
			Config:      cfg,
			ProjectPath: project.Path,
		})
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	waitReady := func(c *session.Coordinator) {
		Eventually(func() bootstrap.Stage {
			return c.Status().Get().Stage
		}).WithTimeout(5 * time.Second).Should(Equal(bootstrap.Ready))
	}

	BeforeEach(func() {
		var err error
		project, err = testutil.NewProject()
		Expect(err).NotTo(HaveOccurred())
		stateDir, err = testutil.NewTempDir()
		Expect(err).NotTo(HaveOccurred())

		app = analysis.NewAppEnvironment(afero.NewOsFs())
		bus = event.NewBus()
		store = prefs.NewFileStore(storage.New(stateDir.Path))
		recorder = testutil.NewEventRecorder(bus)
		cfg = config.Default()
		cfg.DefaultFile = "app/src/main/java/com/example/MainActivity.java"
	})

	AfterEach(func() {
		recorder.Stop()
		_ = bus.Close()
		project.Cleanup()
		stateDir.Cleanup()
	})

	Describe("bootstrap", func() {
		It("reaches ready and opens the default file", func() {
			c := start()
			defer c.Close()

			waitReady(c)
			ps := c.ProjectState().Get()
			Expect(ps.Initialized).To(BeTrue())
			Expect(ps.ShowProgressBar).To(BeFalse())
			Expect(*ps.ProjectPath).To(Equal(project.Path))

			Eventually(func() string {
				if s := c.ActiveEditor().Get(); s != nil {
					return s.Path
				}
				return ""
			}).Should(Equal(mainActivity()))

			Eventually(func() bool { return recorder.HasType(event.ProjectReady) }).Should(BeTrue())
			Eventually(func() bool { return recorder.HasType(event.RootRefresh) }).Should(BeTrue())
			Eventually(func() int { return recorder.CountType(event.EditorOpened) }).Should(Equal(1))
		})

		It("indexes source roots so classes resolve", func() {
			c := start()
			defer c.Close()
			waitReady(c)

			for _, name := range []string{"com.example.MainActivity", "com.example.util.Strings", "com.example.data.Repository"} {
				_, ok := analysis.FindClass(c.Environment(), name)
				Expect(ok).To(BeTrue(), name)
			}
			pkg, ok := c.Environment().FileManager().FindPackage("com.example")
			Expect(ok).To(BeTrue())
			Expect(pkg.Subpackages).To(ConsistOf("data", "util"))
		})

		It("fails without touching project state when the root is missing", func() {
			project.Cleanup()
			c := start()
			defer c.Close()

			Eventually(func() bootstrap.Stage {
				return c.Status().Get().Stage
			}).Should(Equal(bootstrap.Failed))
			Expect(c.Status().Get().Err).To(MatchError(session.ErrConfiguration))
			Expect(c.ProjectState().Get().Initialized).To(BeFalse())
			Eventually(func() bool { return recorder.HasType(event.BootstrapFailed) }).Should(BeTrue())
		})
	})

	Describe("editors", func() {
		It("keeps one editor per path under concurrent opens", func() {
			c := start()
			defer c.Close()
			waitReady(c)

			target := filepath.Join(project.Path, "build.gradle")
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := c.OpenFile(ctx, target)
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			count := 0
			for _, s := range c.Editors().Get().Editors {
				if s.Path == target {
					count++
				}
			}
			Expect(count).To(Equal(1))
		})

		It("opens files requested over the bus", func() {
			c := start()
			defer c.Close()
			waitReady(c)

			target := filepath.Join(project.Path, "settings.gradle")
			bus.Publish(event.Event{Type: event.FileOpen, Data: event.OpenFileData{Path: target}})

			Eventually(func() string {
				if s := c.ActiveEditor().Get(); s != nil {
					return s.Path
				}
				return ""
			}).Should(Equal(target))
		})

		It("rejects out of range tab selection", func() {
			c := start()
			defer c.Close()
			waitReady(c)
			Eventually(func() int { return len(c.Editors().Get().Editors) }).Should(Equal(1))

			Expect(c.SelectTab(1)).To(MatchError(session.ErrInvariant))
			Expect(c.SelectTab(0)).To(Succeed())
		})

		It("reopens remembered files in a new session", func() {
			first := start()
			waitReady(first)
			gradle := filepath.Join(project.Path, "app/build.gradle")
			_, err := first.OpenFile(ctx, gradle)
			Expect(err).NotTo(HaveOccurred())
			Eventually(func() int { return len(first.Editors().Get().Editors) }).Should(Equal(2))
			Expect(first.Close()).To(Succeed())

			cfg.DefaultFile = ""
			second := start()
			defer second.Close()
			waitReady(second)

			Eventually(func() []string {
				var paths []string
				for _, s := range second.Editors().Get().Editors {
					paths = append(paths, s.Path)
				}
				return paths
			}).Should(ConsistOf(gradle, mainActivity()))
		})
	})

	Describe("tree", func() {
		It("builds the tree from the project root and hides build output", func() {
			c := start()
			defer c.Close()
			waitReady(c)

			Eventually(func() bool { return c.Tree().Get() != nil }).Should(BeTrue())
			root := c.Tree().Get()
			Expect(root.Find(mainActivity())).NotTo(BeNil())
			Expect(root.Find(filepath.Join(project.Path, "app/build"))).To(BeNil())
		})

		It("refreshes when the watcher sees a new file", func() {
			watch := true
			cfg.Watch = &watch
			c := start()
			defer c.Close()
			waitReady(c)
			Eventually(func() bool { return c.Tree().Get() != nil }).Should(BeTrue())

			added, err := project.CreateFile("app/src/main/java/com/example/Added.java", "package com.example;\n")
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() bool {
				return c.Tree().Get().Find(added) != nil
			}).WithTimeout(5 * time.Second).Should(BeTrue())
		})
	})

	Describe("event mirror", func() {
		It("mirrors events as JSON messages", func() {
			messages, err := bus.Messages(ctx)
			Expect(err).NotTo(HaveOccurred())

			c := start()
			defer c.Close()
			waitReady(c)

			Eventually(func() bool {
				select {
				case msg := <-messages:
					msg.Ack()
					if msg.Metadata.Get("type") != string(event.ProjectReady) {
						return false
					}
					var e struct {
						Data event.ProjectReadyData `json:"data"`
					}
					Expect(json.Unmarshal(msg.Payload, &e)).To(Succeed())
					return e.Data.Path == project.Path
				default:
					return false
				}
			}).WithTimeout(5 * time.Second).Should(BeTrue())
		})
	})

	Describe("teardown", func() {
		It("is safe to close twice and before ready", func() {
			c := start()
			Expect(c.Close()).To(Succeed())
			Expect(c.Close()).To(Succeed())
			Expect(bus.SubscriberCount(event.FileOpen)).To(Equal(0))
			Expect(c.Status().Get().Stage.Terminal()).To(BeTrue())

			_, err := c.OpenFile(ctx, mainActivity())
			Expect(err).To(MatchError(session.ErrClosed))
		})
	})
})
