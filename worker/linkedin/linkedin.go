// Package linkedin is the LinkedIn platform adapter. Listings open in the
// search page's detail pane, so the apply dialog is dismissed after each one.
package linkedin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	locators "easy_apply_go/Locators"
	"easy_apply_go/config"
	"easy_apply_go/model"
	"easy_apply_go/utils"
	"easy_apply_go/worker/apply"
	"easy_apply_go/worker/browser"
	"easy_apply_go/worker/form"
)

const (
	platformName = "linkedin"
	domain       = "linkedin.com"
	maxScrolls   = 5

	scrollScript = "(window.scrollTo(0, document.body.scrollHeight), document.body.scrollHeight)"
)

type LinkedIn struct{}

var (
	_ apply.Platform      = (*LinkedIn)(nil)
	_ apply.ListingCloser = (*LinkedIn)(nil)
)

func New() *LinkedIn {
	return &LinkedIn{}
}

func (p *LinkedIn) Name() string    { return platformName }
func (p *LinkedIn) HomeURL() string { return locators.LINKEDIN_HOME_URL }
func (p *LinkedIn) Domain() string  { return domain }

func (p *LinkedIn) Selectors() apply.Selectors {
	return apply.Selectors{
		LoginIndicator:  browser.CSS(locators.LINKEDIN_LOGIN_INDICATOR),
		ApplyButton:     browser.CSS(locators.LINKEDIN_APPLY_BUTTON),
		ApplyButtonText: locators.LINKEDIN_EASY_APPLY_TEXT,
		RequiredLabels:  browser.XPath(locators.LINKEDIN_FORM_LABELS),
		SubmitButton:    browser.CSS(locators.LINKEDIN_SUBMIT_BUTTON),
		SuccessMarker:   browser.CSS(locators.LINKEDIN_SUCCESS),
	}
}

// Login 有账号密码时自动填写，否则等待用户手动完成；跳转到 feed 页即视为登录成功
func (p *LinkedIn) Login(ctx context.Context, s *apply.Session) error {
	if err := s.Driver.Navigate(ctx, locators.LINKEDIN_LOGIN_URL); err != nil {
		return fmt.Errorf("打开LinkedIn登录页失败: %w", err)
	}
	p.acceptCookies(ctx, s)

	user, pass := s.Secrets.LinkedInUsername, s.Secrets.LinkedInPassword
	if user != "" && pass != "" {
		if err := s.Interact.Fill(ctx, browser.CSS(locators.LINKEDIN_USERNAME_INPUT), user); err != nil {
			return fmt.Errorf("填写用户名失败: %w", err)
		}
		if err := s.Interact.Fill(ctx, browser.CSS(locators.LINKEDIN_PASSWORD_INPUT), pass); err != nil {
			return fmt.Errorf("填写密码失败: %w", err)
		}
		if !s.Interact.Click(ctx, browser.CSS(locators.LINKEDIN_LOGIN_SUBMIT), 0, 0) {
			return errors.New("点击登录按钮失败")
		}
	} else {
		s.Log.Info("请在打开的浏览器窗口中登录LinkedIn")
	}
	return p.waitForFeed(ctx, s)
}

func (p *LinkedIn) waitForFeed(ctx context.Context, s *apply.Session) error {
	timeout := s.Timeouts.Login
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	indicator := browser.CSS(locators.LINKEDIN_LOGIN_INDICATOR)
	err := s.Interact.Poll(ctx, timeout, func() (bool, error) {
		current, err := s.Driver.CurrentURL()
		if err != nil {
			return false, err
		}
		if strings.Contains(current, locators.LINKEDIN_FEED_PATH) {
			return true, nil
		}
		els, err := s.Driver.FindAll(indicator)
		return err == nil && len(els) > 0, err
	})
	if err != nil {
		return fmt.Errorf("等待跳转到feed页超时: %w", err)
	}
	return nil
}

func (p *LinkedIn) acceptCookies(ctx context.Context, s *apply.Session) {
	if s.Interact.Click(ctx, browser.CSS(locators.LINKEDIN_COOKIE_ACCEPT), 1, s.Timeouts.AttemptTimeout) {
		s.Log.Info("已接受Cookie")
	}
}

// Prepare 接受 Cookie 并滚动加载更多职位
func (p *LinkedIn) Prepare(ctx context.Context, s *apply.Session) {
	p.acceptCookies(ctx, s)

	var last interface{}
	for i := 0; i < maxScrolls && ctx.Err() == nil; i++ {
		height, err := s.Driver.ExecuteScript(scrollScript)
		if err != nil {
			s.Log.Debugf("滚动页面失败: %v", err)
			return
		}
		if i > 0 && fmt.Sprint(height) == fmt.Sprint(last) {
			return
		}
		last = height

		t := time.NewTimer(s.Timeouts.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (p *LinkedIn) ConstructSearchURL(prefs config.JobPreferences) string {
	u := fmt.Sprintf("%s?keywords=%s&location=%s", locators.LINKEDIN_SEARCH_URL,
		utils.QueryValue(prefs.JobTitle), utils.QueryValue(prefs.Location))
	if prefs.LinkedInRemote == "1" {
		u += "&f_WT=2"
	}
	return u
}

// FindCandidateListings 读取列表中的职位，带 "Easy Apply" 标记的才可投递
func (p *LinkedIn) FindCandidateListings(ctx context.Context, s *apply.Session) ([]apply.Listing, error) {
	els, err := s.Interact.WaitForAll(ctx, browser.CSS(locators.LINKEDIN_JOB_LIST), s.Timeouts.Element)
	if err != nil {
		return nil, fmt.Errorf("LinkedIn职位列表加载失败: %w", err)
	}
	listings := make([]apply.Listing, 0, len(els))
	for i, el := range els {
		l := apply.Listing{
			Index:     i,
			Title:     strings.TrimSpace(apply.ListingText(el, browser.CSS(locators.LINKEDIN_JOB_TITLE))),
			EasyApply: hasEasyApplyBadge(el),
			Element:   el,
		}
		if id, _ := el.Attribute(locators.LINKEDIN_JOB_ID_ATTR); strings.TrimSpace(id) != "" {
			l.URL = locators.LINKEDIN_JOB_VIEW_URL + strings.TrimSpace(id) + "/"
		}
		listings = append(listings, l)
	}
	return listings, nil
}

func hasEasyApplyBadge(el browser.Element) bool {
	spans, err := el.FindAll(browser.CSS(locators.LINKEDIN_JOB_SPANS))
	if err != nil {
		return false
	}
	for _, span := range spans {
		if text, _ := span.Text(); strings.TrimSpace(text) == locators.LINKEDIN_EASY_APPLY_TEXT {
			return true
		}
	}
	return false
}

// OpenListing 点击职位卡片，详情在当前页右侧展示
func (p *LinkedIn) OpenListing(ctx context.Context, s *apply.Session, l apply.Listing) error {
	if l.Element == nil {
		return fmt.Errorf("职位 %q 不可点击", l.Title)
	}
	if !s.Interact.ClickElement(l.Element) {
		return fmt.Errorf("点击职位 %q 失败", l.Title)
	}
	return nil
}

// CloseListing 关闭未完成的申请弹窗并放弃草稿
func (p *LinkedIn) CloseListing(ctx context.Context, s *apply.Session) {
	if !s.Interact.Click(ctx, browser.CSS(locators.LINKEDIN_MODAL_DISMISS), 1, s.Timeouts.AttemptTimeout) {
		return
	}
	if s.Interact.Click(ctx, browser.CSS(locators.LINKEDIN_DISCARD_CONFIRM), 1, s.Timeouts.AttemptTimeout) {
		s.Log.Debug("已放弃未完成的申请")
	}
}

func (p *LinkedIn) FieldMapping(profile model.ResumeProfile) form.FieldMapping {
	pi := profile.PersonalInformation
	return form.FieldMapping{
		"First Name":  pi.Name,
		"Last Name":   pi.Surname,
		"Email":       pi.Email,
		"Phone":       pi.FullPhone(),
		"Address":     pi.Address,
		"City":        pi.City,
		"Postal Code": pi.ZipCode,
		"Country":     pi.Country,
	}
}

func (p *LinkedIn) DropdownAnswers() form.DropdownAnswers {
	return nil
}
