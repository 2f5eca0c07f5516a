package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	locators "easy_apply_go/Locators"
	"easy_apply_go/config"
	"easy_apply_go/model"
	"easy_apply_go/repository"
	"easy_apply_go/service"
	"easy_apply_go/worker/apply"
	"easy_apply_go/worker/browser"
	"easy_apply_go/worker/browser/browsertest"
	"easy_apply_go/worker/xing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
job_preferences:
  job_title: Go Developer
  location: Berlin
browser:
  headless: true
  user_data_dir: profiles
timeouts:
  login: 30ms
  element: 10ms
  attempt_timeout: 5ms
  poll_interval: 1ms
  send_button: 5ms
  success_marker: 5ms
  already_applied: 5ms
  listing_pause: 0s
`

type stubResume struct {
	err error
}

func (r stubResume) Load() (model.ResumeProfile, error) {
	return model.ResumeProfile{PersonalInformation: model.PersonalInformation{Name: "Amir"}}, r.err
}

type fakeFactory struct {
	mu      sync.Mutex
	drivers []*browsertest.Driver
	opts    []browser.Options
	setup   func(d *browsertest.Driver)
	gate    chan struct{}
	started chan struct{}
	err     error
}

func (f *fakeFactory) New(ctx context.Context, opts browser.Options) (browser.Driver, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	d := browsertest.NewDriver()
	if f.setup != nil {
		f.setup(d)
	}
	f.mu.Lock()
	f.drivers = append(f.drivers, d)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	return d, nil
}

type fixture struct {
	svc     *JobService
	factory *fakeFactory
	cookies *service.CookieService
	lock    service.RunLock
}

func newFixture(t *testing.T, resume repository.ResumeRepository) *fixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))
	store, err := config.Load(path)
	require.NoError(t, err)

	if resume == nil {
		resume = stubResume{}
	}
	f := &fixture{
		factory: &fakeFactory{},
		cookies: service.NewCookieService(repository.NewCookieRepository(filepath.Join(dir, "cookies"))),
		lock:    service.NewMemoryRunLock(),
	}
	f.svc = NewJobService(Deps{
		Config:       store,
		Registry:     NewRegistry(xing.New()),
		Cookies:      f.cookies,
		Applications: service.NewApplicationService(nil),
		Resume:       resume,
		Lock:         f.lock,
		Browser:      f.factory.New,
	})
	return f
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(xing.New(), xing.New())
	assert.Equal(t, []string{"xing"}, r.Names())

	_, err := r.Get("monster")
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestApply_UnknownPlatform(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Apply(context.Background(), "monster", nil)
	assert.ErrorIs(t, err, ErrUnknownPlatform)
	assert.Empty(t, f.factory.drivers)
}

func TestApply_WithoutSessionRequiresLogin(t *testing.T) {
	f := newFixture(t, nil)
	var msgs []JobProgressMessage
	res, err := f.svc.Apply(context.Background(), "xing", func(m JobProgressMessage) { msgs = append(msgs, m) })

	assert.ErrorIs(t, err, apply.ErrSessionRequired)
	require.NotNil(t, res)
	assert.Empty(t, res.Records)
	require.Len(t, f.factory.drivers, 1)
	assert.True(t, f.factory.drivers[0].IsClosed())
	assert.False(t, f.svc.IsRunning("xing"))

	require.NotEmpty(t, msgs)
	assert.Equal(t, "error", msgs[len(msgs)-1].Type)
	for _, m := range msgs {
		assert.Equal(t, "xing", m.Platform)
		assert.Equal(t, res.RunID, m.RunID)
	}

	st := f.svc.Status()
	require.Len(t, st, 1)
	require.NotNil(t, st[0].LastRun)
	assert.Equal(t, res.RunID, st[0].LastRun.RunID)
	assert.NotEmpty(t, st[0].LastRun.Error)
}

func TestApply_UsesConfiguredBrowserOptions(t *testing.T) {
	f := newFixture(t, nil)
	_, _ = f.svc.Apply(context.Background(), "xing", nil)

	require.Len(t, f.factory.opts, 1)
	opts := f.factory.opts[0]
	assert.True(t, opts.Headless)
	assert.Equal(t, "playwright", opts.Engine)
	assert.Equal(t, filepath.Join("profiles", "xing"), opts.UserDataDir)
	assert.Equal(t, float64(5000), opts.ActionTimeoutMs)
}

func TestApply_ResumeErrorSkipsBrowser(t *testing.T) {
	f := newFixture(t, stubResume{err: errors.New("missing resume")})
	_, err := f.svc.Apply(context.Background(), "xing", nil)
	assert.EqualError(t, err, "missing resume")
	assert.Empty(t, f.factory.drivers)
	assert.False(t, f.svc.IsRunning("xing"))
}

func TestApply_BrowserStartFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.factory.err = errors.New("no chromium")
	_, err := f.svc.Apply(context.Background(), "xing", nil)
	assert.ErrorContains(t, err, "no chromium")
	assert.False(t, f.svc.IsRunning("xing"))

	release, err := f.lock.Acquire(context.Background(), "xing")
	require.NoError(t, err, "run lock is released after a failed start")
	release()
}

func TestApply_RefusesConcurrentRun(t *testing.T) {
	f := newFixture(t, nil)
	f.factory.gate = make(chan struct{})
	f.factory.started = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Apply(context.Background(), "xing", nil)
		done <- err
	}()
	<-f.factory.started
	assert.True(t, f.svc.IsRunning("xing"))

	_, err := f.svc.Apply(context.Background(), "xing", nil)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.ErrorIs(t, f.svc.Login(context.Background(), "xing", nil), ErrRunInProgress)

	require.NoError(t, f.svc.Stop("xing"))
	assert.True(t, f.svc.ShouldStop("xing"))

	close(f.factory.gate)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("apply did not finish")
	}
	assert.False(t, f.svc.IsRunning("xing"))
	assert.False(t, f.svc.ShouldStop("xing"))
}

func TestApply_RunLockHeldElsewhere(t *testing.T) {
	f := newFixture(t, nil)
	release, err := f.lock.Acquire(context.Background(), "xing")
	require.NoError(t, err)
	defer release()

	_, err = f.svc.Apply(context.Background(), "xing", nil)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.False(t, f.svc.IsRunning("xing"))
}

func TestLogin_SavesSession(t *testing.T) {
	f := newFixture(t, nil)
	f.factory.setup = func(d *browsertest.Driver) {
		d.Page(locators.XING_LOGIN_URL).Add(browser.CSS(locators.XING_LOGIN_INDICATOR), browsertest.NewElement("Jobs"))
		d.SetCookies([]model.Cookie{{Name: "login", Value: "ok", Domain: ".xing.com"}})
	}

	require.NoError(t, f.svc.Login(context.Background(), "xing", nil))
	assert.True(t, f.svc.HasSession("xing"))
	require.Len(t, f.factory.opts, 1)
	assert.False(t, f.factory.opts[0].Headless, "login always shows the browser")
	assert.True(t, f.factory.drivers[0].IsClosed())

	st := f.svc.Status()
	assert.True(t, st[0].LoggedIn)

	require.NoError(t, f.svc.Logout("xing"))
	assert.False(t, f.svc.HasSession("xing"))
}

func TestStop(t *testing.T) {
	f := newFixture(t, nil)
	assert.ErrorIs(t, f.svc.Stop("monster"), ErrUnknownPlatform)
	require.NoError(t, f.svc.Stop("xing"))
	assert.False(t, f.svc.ShouldStop("xing"), "stop on an idle platform is a no-op")
}
