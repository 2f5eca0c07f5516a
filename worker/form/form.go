// Package form fills application forms from a resume-derived field mapping.
package form

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"easy_apply_go/worker/browser"
	"easy_apply_go/worker/interact"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
)

// DefaultErrorSelector matches elements flagged as erroneous by common form frameworks.
const DefaultErrorSelector = "[class*='error'], [class*='invalid-feedback']"

// ErrFormInvalid 表单校验未通过，不提交
var ErrFormInvalid = errors.New("form has validation errors")

// FollowingInput 标签之后最近的输入框
var FollowingInput = browser.XPath("following::input[1]")

// FieldMapping 表单标签 -> 填写值，标签需完全匹配
type FieldMapping map[string]string

// DropdownAnswer 下拉题目与期望选项
type DropdownAnswer struct {
	Question string
	Answer   string
}

// DropdownAnswers 按顺序处理的下拉题表
type DropdownAnswers []DropdownAnswer

// Scope is anything elements can be searched under: a driver or a form element.
type Scope interface {
	FindAll(loc browser.Locator) ([]browser.Element, error)
}

// Selectors 表单相关选择器
type Selectors struct {
	RequiredLabels browser.Locator
	// Errors is a CSS selector evaluated against the page HTML.
	Errors string
	Submit browser.Locator
}

// Report 填写结果
type Report struct {
	Filled    []string
	Unmapped  []string
	Failed    []string
	Dropdowns int
	Errors    []string
	Submitted bool
}

// FillKnownFields 按标签文本填写必填项，未映射的标签保持不变
func FillKnownFields(scope Scope, labels browser.Locator, mapping FieldMapping) Report {
	var report Report
	els, err := scope.FindAll(labels)
	if err != nil {
		log.Warnf("查找必填项标签失败: %v", err)
		return report
	}
	for _, label := range els {
		if visible, err := label.Visible(); err != nil || !visible {
			continue
		}
		text, err := label.Text()
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		value, ok := mapping[text]
		if !ok || value == "" {
			report.Unmapped = append(report.Unmapped, text)
			continue
		}
		inputs, err := label.FindAll(FollowingInput)
		if err != nil || len(inputs) == 0 {
			log.WithField("label", text).Warn("未找到对应输入框")
			report.Failed = append(report.Failed, text)
			continue
		}
		if err := interact.FillElement(inputs[0], value); err != nil {
			log.WithField("label", text).Warnf("填写失败: %v", err)
			report.Failed = append(report.Failed, text)
			continue
		}
		log.WithField("label", text).Info("已填写必填项")
		report.Filled = append(report.Filled, text)
	}
	return report
}

// SelectKnownDropdowns 按固定题表选择下拉选项，返回成功选择的数量
func SelectKnownDropdowns(scope Scope, answers DropdownAnswers) int {
	selected := 0
	for _, qa := range answers {
		loc := browser.XPath(fmt.Sprintf("//label[contains(text(), %s)]/following::select[1]", browser.XPathLiteral(qa.Question)))
		selects, err := scope.FindAll(loc)
		if err != nil || len(selects) == 0 {
			log.WithField("question", qa.Question).Debug("未找到下拉题")
			continue
		}
		opt := browser.XPath(fmt.Sprintf(".//option[contains(text(), %s)]", browser.XPathLiteral(qa.Answer)))
		options, err := selects[0].FindAll(opt)
		if err != nil || len(options) == 0 {
			log.WithField("question", qa.Question).Warnf("无法选择答案 '%s'", qa.Answer)
			continue
		}
		if err := options[0].Click(); err != nil {
			log.WithField("question", qa.Question).Warnf("无法选择答案 '%s': %v", qa.Answer, err)
			continue
		}
		log.WithField("question", qa.Question).Infof("已选择 '%s'", qa.Answer)
		selected++
	}
	return selected
}

// DetectErrors 解析页面 HTML，返回所有错误提示文本
func DetectErrors(html, selector string) ([]string, error) {
	if selector == "" {
		selector = DefaultErrorSelector
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("解析页面失败: %w", err)
	}
	var found []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			text, _ = s.Attr("class")
		}
		found = append(found, text)
	})
	return found, nil
}

// Filler runs the whole form pass on the current page.
type Filler struct {
	ix  *interact.Interactor
	sel Selectors
}

// NewFiller 创建表单填写器
func NewFiller(ix *interact.Interactor, sel Selectors) *Filler {
	if sel.Errors == "" {
		sel.Errors = DefaultErrorSelector
	}
	return &Filler{ix: ix, sel: sel}
}

// Fill 选择下拉、填写必填项、校验，校验通过后提交。
// 页面存在错误提示时返回 ErrFormInvalid，不重试。
func (f *Filler) Fill(ctx context.Context, mapping FieldMapping, answers DropdownAnswers, submitTimeout time.Duration) (Report, error) {
	driver := f.ix.Driver()
	selected := SelectKnownDropdowns(driver, answers)

	report := Report{}
	if !f.sel.RequiredLabels.IsZero() {
		report = FillKnownFields(driver, f.sel.RequiredLabels, mapping)
	}
	report.Dropdowns = selected

	html, err := driver.HTML()
	if err != nil {
		return report, err
	}
	report.Errors, err = DetectErrors(html, f.sel.Errors)
	if err != nil {
		return report, err
	}
	if len(report.Errors) > 0 {
		log.WithField("errors", report.Errors).Warn("表单存在错误，暂停提交")
		return report, ErrFormInvalid
	}

	if f.sel.Submit.IsZero() {
		return report, nil
	}
	if f.ix.Click(ctx, f.sel.Submit, 0, submitTimeout) {
		log.Info("已点击提交按钮")
		report.Submitted = true
	} else {
		log.Warn("提交按钮不可用")
	}
	return report, nil
}
