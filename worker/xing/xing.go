// Package xing is the Xing platform adapter. Login is manual; listings open
// in a new tab and only "Easy apply" jobs are sent.
package xing

import (
	"context"
	"fmt"
	"strings"

	locators "easy_apply_go/Locators"
	"easy_apply_go/config"
	"easy_apply_go/model"
	"easy_apply_go/utils"
	"easy_apply_go/worker/apply"
	"easy_apply_go/worker/browser"
	"easy_apply_go/worker/form"
)

const (
	platformName  = "xing"
	domain        = "xing.com"
	defaultRadius = 20
)

type Xing struct{}

var _ apply.Platform = (*Xing)(nil)

func New() *Xing {
	return &Xing{}
}

func (x *Xing) Name() string    { return platformName }
func (x *Xing) HomeURL() string { return locators.XING_HOME_URL }
func (x *Xing) Domain() string  { return domain }

func (x *Xing) Selectors() apply.Selectors {
	return apply.Selectors{
		LoginIndicator:  browser.CSS(locators.XING_LOGIN_INDICATOR),
		AlreadyApplied:  browser.XPath(locators.XING_ALREADY_APPLIED),
		ApplyButton:     browser.CSS(locators.XING_APPLY_BUTTON),
		ApplyButtonText: locators.XING_APPLY_BUTTON_TEXT,
		SendApplication: browser.XPath(locators.XING_SEND_APPLICATION),
		SuccessMarker:   browser.CSS(locators.XING_SUCCESS),
	}
}

// Login 打开登录页，等待用户在浏览器中手动登录
func (x *Xing) Login(ctx context.Context, s *apply.Session) error {
	if err := s.Driver.Navigate(ctx, locators.XING_LOGIN_URL); err != nil {
		return fmt.Errorf("打开Xing登录页失败: %w", err)
	}
	s.Log.Info("请在打开的浏览器窗口中登录Xing")
	return apply.WaitForLogin(ctx, s, browser.CSS(locators.XING_LOGIN_INDICATOR))
}

func (x *Xing) Prepare(context.Context, *apply.Session) {}

// ConstructSearchURL 拼接搜索链接，筛选项多选值用 * 连接
func (x *Xing) ConstructSearchURL(p config.JobPreferences) string {
	radius := p.Radius
	if radius <= 0 {
		radius = defaultRadius
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s&keywords=%s&location=%s&radius=%d&sort=date",
		locators.XING_SEARCH_URL, utils.QueryValue(p.JobTitle), utils.QueryValue(p.Location), radius)
	b.WriteString(utils.AppendListParam("remoteOption", p.XingRemoteOption, "*"))
	b.WriteString(utils.AppendListParam("employmentType", p.XingEmploymentType, "*"))
	b.WriteString(utils.AppendListParam("careerLevel", p.XingCareerLevel, "*"))
	return b.String()
}

// FindCandidateListings 读取搜索结果。是否支持 Easy apply 要到详情页才能确定
func (x *Xing) FindCandidateListings(ctx context.Context, s *apply.Session) ([]apply.Listing, error) {
	els, err := s.Interact.WaitForAll(ctx, browser.CSS(locators.XING_JOB_LIST), s.Timeouts.Element)
	if err != nil {
		return nil, fmt.Errorf("Xing职位列表加载失败: %w", err)
	}
	base, _ := s.Driver.CurrentURL()
	link := browser.CSS(locators.XING_JOB_LINK)

	listings := make([]apply.Listing, 0, len(els))
	for _, el := range els {
		href := apply.ResolveHref(base, apply.ListingHref(el, link))
		if href == "" {
			s.Log.Warn("职位没有链接，跳过")
			continue
		}
		title := apply.ListingText(el, browser.CSS(locators.XING_JOB_TITLE))
		if title == "" {
			title = apply.ListingText(el, link)
		}
		listings = append(listings, apply.Listing{
			Index:     len(listings),
			Title:     strings.TrimSpace(title),
			URL:       href,
			EasyApply: true,
			Element:   el,
		})
	}
	return listings, nil
}

// OpenListing 在新标签页打开职位链接
func (x *Xing) OpenListing(ctx context.Context, s *apply.Session, l apply.Listing) error {
	if l.URL == "" {
		return fmt.Errorf("职位 %q 没有链接", l.Title)
	}
	handle, err := s.Driver.OpenTab(ctx, l.URL)
	if err != nil {
		return fmt.Errorf("打开职位失败: %w", err)
	}
	return s.Interact.SwitchTab(handle)
}

// FieldMapping Xing 一键投递没有表单
func (x *Xing) FieldMapping(model.ResumeProfile) form.FieldMapping {
	return form.FieldMapping{}
}

func (x *Xing) DropdownAnswers() form.DropdownAnswers {
	return nil
}
