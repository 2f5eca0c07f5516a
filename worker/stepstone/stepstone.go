// Package stepstone is the StepStone platform adapter: credential login,
// German application forms, listings opened in a new tab.
package stepstone

import (
	"context"
	"errors"
	"fmt"
	"strings"

	locators "easy_apply_go/Locators"
	"easy_apply_go/config"
	"easy_apply_go/model"
	"easy_apply_go/utils"
	"easy_apply_go/worker/apply"
	"easy_apply_go/worker/browser"
	"easy_apply_go/worker/form"
	"easy_apply_go/worker/interact"
)

const (
	platformName  = "stepstone"
	domain        = "stepstone.de"
	defaultRadius = 30

	// 表单缺省值
	availableFrom = "01.01.2025"
	defaultSalary = "50000 - 60000"
	defaultCity   = "Aschaffenburg"
)

// ErrMissingCredentials secrets 中没有 StepStone 账号
var ErrMissingCredentials = errors.New("stepstone credentials missing")

var dropdownAnswers = form.DropdownAnswers{
	{Question: "Deutschkenntnisse", Answer: "B1"},
	{Question: "Wohnst du in Deutschland und verfügst du über eine gültige Arbeitserlaubnis?", Answer: "Ja"},
	{Question: "Sprichst du verhandlungssicheres Business-Englisch?", Answer: "Ja"},
	{Question: "Besitzt du mehr als 3 Jahre Berufserfahrung im Frontend Engineering?", Answer: "Ja"},
}

type StepStone struct{}

var _ apply.Platform = (*StepStone)(nil)

func New() *StepStone {
	return &StepStone{}
}

func (p *StepStone) Name() string    { return platformName }
func (p *StepStone) HomeURL() string { return locators.STEPSTONE_HOME_URL }
func (p *StepStone) Domain() string  { return domain }

func (p *StepStone) Selectors() apply.Selectors {
	return apply.Selectors{
		LoginIndicator:    browser.XPath(locators.STEPSTONE_LOGIN_INDICATOR),
		ApplyButton:       browser.CSS(locators.STEPSTONE_APPLY_BUTTON),
		AppliedButtonText: locators.STEPSTONE_APPLIED_BUTTON_TEXT,
		SendApplication:   browser.CSS(locators.STEPSTONE_SEND_APPLICATION),
		RequiredLabels:    browser.XPath(locators.STEPSTONE_REQUIRED_LABELS),
		SubmitButton:      browser.CSS(locators.STEPSTONE_SUBMIT_BUTTON),
		SuccessMarker:     browser.XPath(locators.STEPSTONE_SUCCESS),
	}
}

// Login 使用 secrets 中的账号密码登录：菜单 -> 登录入口 -> 邮箱/密码 -> 提交
func (p *StepStone) Login(ctx context.Context, s *apply.Session) error {
	user, pass := s.Secrets.StepStoneUsername, s.Secrets.StepStonePassword
	if user == "" || pass == "" {
		return ErrMissingCredentials
	}
	if err := s.Driver.Navigate(ctx, locators.STEPSTONE_HOME_URL); err != nil {
		return fmt.Errorf("打开StepStone首页失败: %w", err)
	}
	p.acceptCookies(ctx, s)

	if !s.Interact.ClickWithJSFallback(ctx, browser.CSS(locators.STEPSTONE_SIGN_IN_MENU), s.Timeouts.Element) {
		return errors.New("未找到登录菜单")
	}
	p.closeOverlay(ctx, s)
	if !s.Interact.ClickWithJSFallback(ctx, browser.CSS(locators.STEPSTONE_SIGN_IN), s.Timeouts.Element) {
		return errors.New("未找到登录入口")
	}

	email, err := s.Interact.WaitVisible(ctx, browser.CSS(locators.STEPSTONE_EMAIL_INPUT), s.Timeouts.Element)
	if err != nil {
		return fmt.Errorf("未找到邮箱输入框: %w", err)
	}
	if err := interact.FillElement(email, user); err != nil {
		return fmt.Errorf("填写邮箱失败: %w", err)
	}
	if err := s.Interact.Fill(ctx, browser.CSS(locators.STEPSTONE_PASSWORD_INPUT), pass); err != nil {
		return fmt.Errorf("填写密码失败: %w", err)
	}
	if !s.Interact.Click(ctx, browser.CSS(locators.STEPSTONE_LOGIN_SUBMIT), 0, 0) {
		return errors.New("点击登录按钮失败")
	}
	return apply.WaitForLogin(ctx, s, browser.XPath(locators.STEPSTONE_LOGIN_INDICATOR))
}

// closeOverlay 关闭可能遮挡登录入口的弹层
func (p *StepStone) closeOverlay(ctx context.Context, s *apply.Session) {
	overlay, err := s.Interact.WaitFor(ctx, browser.CSS(locators.STEPSTONE_LOGIN_OVERLAY), s.Timeouts.AttemptTimeout)
	if err != nil {
		s.Log.Debug("没有需要关闭的弹层")
		return
	}
	buttons, err := overlay.FindAll(browser.CSS(locators.STEPSTONE_OVERLAY_CLOSE))
	if err != nil || len(buttons) == 0 {
		return
	}
	if s.Interact.ClickElement(buttons[0]) {
		s.Log.Info("已关闭登录弹层")
	}
}

func (p *StepStone) acceptCookies(ctx context.Context, s *apply.Session) {
	if s.Interact.Click(ctx, browser.CSS(locators.STEPSTONE_COOKIE_ACCEPT), 1, s.Timeouts.Element) {
		s.Log.Info("已接受Cookie")
		return
	}
	s.Log.Debug("未出现Cookie弹窗或已接受")
}

// Prepare 搜索页加载后处理 Cookie 弹窗
func (p *StepStone) Prepare(ctx context.Context, s *apply.Session) {
	p.acceptCookies(ctx, s)
}

// ConstructSearchURL 关键词与地点中的空格替换为 -
func (p *StepStone) ConstructSearchURL(prefs config.JobPreferences) string {
	radius := prefs.Radius
	if radius <= 0 {
		radius = defaultRadius
	}
	u := fmt.Sprintf("%s/%s/in-%s?radius=%d", locators.STEPSTONE_SEARCH_URL,
		utils.PathSegment(prefs.JobTitle), utils.PathSegment(prefs.Location), radius)
	return u + utils.AppendParam("wfh", prefs.StepStoneWFH)
}

func (p *StepStone) FindCandidateListings(ctx context.Context, s *apply.Session) ([]apply.Listing, error) {
	els, err := s.Interact.WaitForAll(ctx, browser.CSS(locators.STEPSTONE_JOB_LIST), s.Timeouts.Element)
	if err != nil {
		return nil, fmt.Errorf("StepStone职位列表加载失败: %w", err)
	}
	base, _ := s.Driver.CurrentURL()
	badge := browser.XPath(locators.STEPSTONE_EASY_APPLY_BADGE)

	listings := make([]apply.Listing, 0, len(els))
	easy := 0
	for i, el := range els {
		l := apply.Listing{
			Index:     i,
			Title:     strings.TrimSpace(apply.ListingText(el, browser.CSS(locators.STEPSTONE_JOB_TITLE))),
			URL:       apply.ResolveHref(base, apply.ListingHref(el, browser.CSS(locators.STEPSTONE_JOB_LINK))),
			EasyApply: apply.HasChild(el, badge),
			Element:   el,
		}
		if l.EasyApply {
			easy++
		}
		listings = append(listings, l)
	}
	s.Log.Infof("StepStone共%d个职位，其中%d个支持Easy Apply", len(listings), easy)
	return listings, nil
}

// OpenListing 点击职位卡片，详情页在新标签页打开
func (p *StepStone) OpenListing(ctx context.Context, s *apply.Session, l apply.Listing) error {
	return apply.OpenInNewTab(ctx, s, l)
}

// FieldMapping 德语表单标签与简历字段的对应关系
func (p *StepStone) FieldMapping(profile model.ResumeProfile) form.FieldMapping {
	pi := profile.PersonalInformation
	salary := strings.TrimSpace(profile.SalaryExpectations.SalaryRangeUSD)
	low, high := salaryBounds(salary)

	return form.FieldMapping{
		"Verfügbar ab":                       availableFrom,
		"Gehaltsvorstellung":                 utils.DefaultIfEmpty(salary, defaultSalary),
		"Ort":                                utils.DefaultIfEmpty(pi.City, defaultCity),
		"Vorname":                            pi.Name,
		"Nachname":                           pi.Surname,
		"Geburtsdatum":                       pi.DateOfBirth,
		"Nationalität":                       pi.Country,
		"E-Mail":                             pi.Email,
		"Mobil":                              pi.FullPhone(),
		"Straße":                             street(pi.Address),
		"PLZ":                                pi.ZipCode,
		"Frühester Eintritt":                 profile.Availability.NoticePeriod,
		"Gehaltsrange pro Jahr (brutto) von": low,
		"Gehaltsrange pro Jahr (brutto) bis": high,
		"linkedin":                           pi.Linkedin,
		"github":                             pi.Github,
	}
}

func (p *StepStone) DropdownAnswers() form.DropdownAnswers {
	out := make(form.DropdownAnswers, len(dropdownAnswers))
	copy(out, dropdownAnswers)
	return out
}

// street 取地址中第一个逗号前的部分
func street(address string) string {
	return strings.TrimSpace(strings.SplitN(address, ",", 2)[0])
}

// salaryBounds 拆分 "50000 - 60000" 形式的薪资范围；没有 - 时上下限相同
func salaryBounds(r string) (string, string) {
	parts := strings.Split(r, "-")
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[len(parts)-1])
}
