package apply

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"easy_apply_go/model"
	"easy_apply_go/worker/browser"
	"easy_apply_go/worker/filter"
	"easy_apply_go/worker/form"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Options 运行控制参数
type Options struct {
	RunID string
	// ShouldStop is consulted between listings only.
	ShouldStop func() bool
	// OnProgress receives human readable progress lines.
	OnProgress func(msg string)
}

// Workflow 单个平台的一次投递流程
type Workflow struct {
	platform Platform
	sess     *Session
	store    SessionStore
	apps     ApplicationLog
	profile  model.ResumeProfile
	opts     Options

	result *RunResult
	log    *log.Entry
}

// New 创建投递流程
func New(p Platform, sess *Session, store SessionStore, apps ApplicationLog, profile model.ResumeProfile, opts Options) *Workflow {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	entry := sess.Log.WithFields(log.Fields{"platform": p.Name(), "run_id": opts.RunID})
	sess.Log = entry
	return &Workflow{
		platform: p,
		sess:     sess,
		store:    store,
		apps:     apps,
		profile:  profile,
		opts:     opts,
		result:   &RunResult{RunID: opts.RunID, Platform: p.Name()},
		log:      entry,
	}
}

// Result 当前累计的运行结果
func (w *Workflow) Result() *RunResult {
	return w.result
}

func (w *Workflow) transition(s State) {
	w.result.Transitions = append(w.result.Transitions, s)
	w.log.WithField("state", s).Debug("状态切换")
}

func (w *Workflow) progress(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	w.log.Info(msg)
	if w.opts.OnProgress != nil {
		w.opts.OnProgress(msg)
	}
}

func (w *Workflow) shouldStop(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return w.opts.ShouldStop != nil && w.opts.ShouldStop()
}

func isFatal(err error) bool {
	return errors.Is(err, browser.ErrBrowserClosed)
}

// EnsureSession 检查登录状态；Cookie 缺失或失效时执行平台登录并保存 Cookie。
// 登录超时返回 ErrSessionRequired。
func (w *Workflow) EnsureSession(ctx context.Context) error {
	w.transition(StateSessionCheck)
	name := w.platform.Name()
	sel := w.platform.Selectors()

	if err := w.sess.Driver.Navigate(ctx, w.platform.HomeURL()); err != nil {
		return fmt.Errorf("打开%s首页失败: %w", name, err)
	}

	loggedIn := false
	if w.store.HasSession(name) {
		loaded, err := w.store.Load(name, w.sess.Driver)
		if err != nil {
			if isFatal(err) {
				return err
			}
			w.log.Warnf("加载Cookie失败: %v", err)
		}
		if loaded {
			if err := w.sess.Driver.Navigate(ctx, w.platform.HomeURL()); err != nil {
				return fmt.Errorf("刷新%s首页失败: %w", name, err)
			}
			loggedIn = w.sess.Interact.Present(ctx, sel.LoginIndicator, w.sess.Timeouts.Element)
		}
	}
	if loggedIn {
		w.transition(StateLoggedIn)
		w.progress("%s 已登录", name)
		return nil
	}

	w.transition(StateNeedsLogin)
	w.progress("%s 需要登录，等待登录完成（最多%s）", name, w.sess.Timeouts.Login)
	loginCtx, cancel := context.WithTimeout(ctx, w.sess.Timeouts.Login)
	defer cancel()
	if err := w.platform.Login(loginCtx, w.sess); err != nil {
		if isFatal(err) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", ErrSessionRequired, name, err)
	}
	if err := w.store.Save(name, w.sess.Driver); err != nil {
		if isFatal(err) {
			return err
		}
		w.log.Warnf("保存Cookie失败: %v", err)
	}
	w.transition(StateLoggedIn)
	w.progress("%s 登录成功", name)
	return nil
}

// Run 执行完整流程：会话检查、搜索、逐个职位处理。
// 单个职位的失败不会中断运行；只有会话失败或浏览器失效才返回错误。
// 浏览器由调用方关闭。
func (w *Workflow) Run(ctx context.Context) (*RunResult, error) {
	w.result.StartedAt = time.Now()
	w.transition(StateIdle)
	defer func() {
		w.transition(StateDone)
		w.result.FinishedAt = time.Now()
		w.progress("%s 投递结束，成功%d个", w.platform.Name(), len(w.result.Records))
	}()

	if err := w.EnsureSession(ctx); err != nil {
		return w.result, err
	}

	searchURL := w.platform.ConstructSearchURL(w.sess.Prefs)
	w.log.WithField("url", searchURL).Info("打开搜索页")
	if err := w.sess.Driver.Navigate(ctx, searchURL); err != nil {
		return w.result, fmt.Errorf("打开搜索页失败: %w", err)
	}
	w.platform.Prepare(ctx, w.sess)
	w.transition(StateSearchNavigated)

	listings, err := w.platform.FindCandidateListings(ctx, w.sess)
	if err != nil {
		if isFatal(err) {
			return w.result, err
		}
		w.log.Warnf("获取职位列表失败: %v", err)
	}
	w.transition(StateListingEnumerated)
	w.progress("找到%d个候选职位", len(listings))

	mapping := w.platform.FieldMapping(w.profile)
	answers := w.platform.DropdownAnswers()
	origin := w.sess.Driver.CurrentTab()
	// 停止信号只在职位之间生效，进行中的职位用不可取消的 ctx 走完
	listingCtx := context.WithoutCancel(ctx)

	for i, l := range listings {
		if w.shouldStop(ctx) {
			w.result.Stopped = true
			w.progress("收到停止信号，结束投递")
			break
		}
		w.progress("正在处理第%d/%d个职位: %s", i+1, len(listings), l.Title)
		res, err := w.processListing(listingCtx, origin, l, mapping, answers)
		w.result.Listings = append(w.result.Listings, res)
		if err != nil {
			return w.result, err
		}
		if i < len(listings)-1 {
			w.pause(ctx)
		}
	}
	return w.result, nil
}

func (w *Workflow) pause(ctx context.Context) {
	d := w.sess.Timeouts.ListingPause
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type eligibility struct{ l Listing }

func (e eligibility) Title() string      { return e.l.Title }
func (e eligibility) HasEasyApply() bool { return e.l.EasyApply }

// processListing 处理单个职位。返回的 error 只用于不可恢复的浏览器错误；
// 其余失败都记录在结果中。清理逻辑在 defer 中执行，包括 panic。
func (w *Workflow) processListing(ctx context.Context, origin string, l Listing, mapping form.FieldMapping, answers form.DropdownAnswers) (res ListingResult, fatal error) {
	res = ListingResult{Index: l.Index, Title: l.Title, URL: l.URL, Step: "open"}
	entry := w.log.WithField("listing_url", l.URL)

	before, err := w.sess.Driver.Tabs()
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, err.Error()
		entry.WithField("step", res.Step).Warnf("读取标签页失败: %v", err)
		if isFatal(err) {
			return res, err
		}
		return res, nil
	}

	defer func() {
		if r := recover(); r != nil {
			entry.WithField("step", res.Step).Errorf("处理职位时发生panic: %v\n%s", r, debug.Stack())
			res.Outcome, res.Err = OutcomeFailed, fmt.Sprint(r)
		}
		if closer, ok := w.platform.(ListingCloser); ok {
			closer.CloseListing(ctx, w.sess)
		}
		if err := w.sess.Interact.RestoreTabs(origin, before); err != nil {
			entry.Warnf("恢复标签页失败: %v", err)
			if isFatal(err) && fatal == nil {
				fatal = err
			}
		}
		w.transition(StateClosed)
		entry.WithFields(log.Fields{"step": res.Step, "outcome": res.Outcome}).Info("职位处理完成")
	}()

	fail := func(step string, err error) (ListingResult, error) {
		res.Step, res.Outcome = step, OutcomeFailed
		if err != nil {
			res.Err = err.Error()
			entry.WithField("step", step).Warnf("处理失败: %v", err)
			if isFatal(err) {
				return res, err
			}
		}
		return res, nil
	}
	skip := func(step string, o Outcome) (ListingResult, error) {
		res.Step, res.Outcome = step, o
		entry.WithField("step", step).Infof("跳过: %s", o)
		return res, nil
	}

	w.transition(StateOpened)
	if err := w.platform.OpenListing(ctx, w.sess, l); err != nil {
		return fail("open", err)
	}
	current, err := w.sess.Driver.CurrentURL()
	if err != nil {
		return fail("open", err)
	}
	if res.URL == "" {
		res.URL = current
		entry = entry.WithField("listing_url", current)
	}
	if !OnDomain(current, w.platform.Domain()) {
		entry.Warnf("跳转到外部站点: %s", current)
		return skip("domain_check", OutcomeOffDomain)
	}

	sel := w.platform.Selectors()
	if w.apps.Applied(w.platform.Name(), res.URL) {
		return skip("already_applied", OutcomeAlreadyApplied)
	}
	if !sel.AlreadyApplied.IsZero() && w.sess.Interact.Present(ctx, sel.AlreadyApplied, w.sess.Timeouts.AlreadyApplied) {
		return skip("already_applied", OutcomeAlreadyApplied)
	}

	w.transition(StateEligibilityChecked)
	if !filter.IsEligible(eligibility{l}, w.sess.Prefs.TitleBlacklist) {
		if !l.EasyApply {
			return skip("eligibility", OutcomeNoEasyApply)
		}
		return skip("eligibility", OutcomeIneligible)
	}

	w.transition(StateApplying)
	res.Step = "apply_button"
	if sel.ApplyButtonText != "" || sel.AppliedButtonText != "" {
		btn, err := w.sess.Interact.WaitVisible(ctx, sel.ApplyButton, w.sess.Timeouts.Element)
		if err != nil {
			return fail("apply_button", err)
		}
		text, _ := btn.Text()
		text = strings.TrimSpace(text)
		if sel.AppliedButtonText != "" && strings.EqualFold(text, sel.AppliedButtonText) {
			return skip("apply_button", OutcomeAlreadyApplied)
		}
		if sel.ApplyButtonText != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(sel.ApplyButtonText)) {
			return skip("apply_button", OutcomeNoEasyApply)
		}
	}
	if !w.sess.Interact.Click(ctx, sel.ApplyButton, 0, 0) {
		return fail("apply_button", errors.New("apply button unavailable"))
	}

	current, err = w.sess.Driver.CurrentURL()
	if err != nil {
		return fail("apply_button", err)
	}
	if !OnDomain(current, w.platform.Domain()) {
		entry.Warnf("跳转到外部站点: %s", current)
		return skip("domain_recheck", OutcomeOffDomain)
	}

	if !sel.SendApplication.IsZero() {
		res.Step = "send_application"
		if w.sess.Interact.Present(ctx, sel.SendApplication, w.sess.Timeouts.SendButton) {
			w.sess.Interact.ClickWithJSFallback(ctx, sel.SendApplication, w.sess.Timeouts.Element)
		} else {
			entry.Info("未找到发送申请按钮，继续检查表单")
		}
	}

	if w.formPresent(ctx, sel) {
		res.Step = "form"
		filler := form.NewFiller(w.sess.Interact, form.Selectors{
			RequiredLabels: sel.RequiredLabels,
			Errors:         sel.FormErrors,
			Submit:         sel.SubmitButton,
		})
		if _, err := filler.Fill(ctx, mapping, answers, w.sess.Timeouts.AttemptTimeout); err != nil {
			if errors.Is(err, form.ErrFormInvalid) {
				res.Err = err.Error()
				return skip("form", OutcomeFormInvalid)
			}
			return fail("form", err)
		}
	}

	w.transition(StateOutcomeClassified)
	res.Step = "outcome"
	if !w.sess.Interact.Present(ctx, sel.SuccessMarker, w.sess.Timeouts.SuccessMarker) {
		res.Outcome = OutcomeIncomplete
		entry.Info("未检测到投递成功标记")
		return res, nil
	}
	rec := w.apps.Record(model.ApplicationRecord{
		Platform:    w.platform.Name(),
		JobURL:      res.URL,
		Title:       l.Title,
		SubmittedAt: time.Now(),
	})
	w.result.Records = append(w.result.Records, rec)
	res.Outcome = OutcomeSubmitted
	w.progress("投递成功: %s", l.Title)
	return res, nil
}

func (w *Workflow) formPresent(ctx context.Context, sel Selectors) bool {
	if sel.RequiredLabels.IsZero() && sel.SubmitButton.IsZero() {
		return false
	}
	err := w.sess.Interact.Poll(ctx, w.sess.Timeouts.AttemptTimeout, func() (bool, error) {
		for _, loc := range []browser.Locator{sel.RequiredLabels, sel.SubmitButton} {
			if loc.IsZero() {
				continue
			}
			els, err := w.sess.Driver.FindAll(loc)
			if err != nil {
				return false, err
			}
			if len(els) > 0 {
				return true, nil
			}
		}
		return false, nil
	})
	return err == nil
}

// OnDomain reports whether rawURL's host is domain or one of its subdomains.
func OnDomain(rawURL, domain string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}
