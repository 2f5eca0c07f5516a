package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/assert"
)

func TestChromedpRunWithin_NoTimeLeft(t *testing.T) {
	d := &ChromedpDriver{actionTimeout: time.Second}
	assert.ErrorIs(t, d.runWithin(0), ErrActionTimeout)

	el := &chromedpElement{d: d, node: &cdp.Node{NodeID: 7}}
	assert.ErrorIs(t, el.ClickWithin(-time.Millisecond), ErrActionTimeout)
}

func TestChromedpRun_ClosedBrowser(t *testing.T) {
	root, cancel := context.WithCancel(context.Background())
	cancel()
	d := &ChromedpDriver{root: root, tabs: map[string]*chromedpTab{}, actionTimeout: time.Second}

	_, err := d.CurrentURL()
	assert.ErrorIs(t, err, ErrBrowserClosed)
	_, err = (&chromedpElement{d: d, node: &cdp.Node{NodeID: 7}}).Text()
	assert.ErrorIs(t, err, ErrBrowserClosed)
	_, err = (&chromedpElement{d: d, node: &cdp.Node{NodeID: 7}}).Visible()
	assert.ErrorIs(t, err, ErrBrowserClosed)
}
