package cdp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/chromedp"

	"github.com/odvcencio/crescent/pkg/browser"
)

// staleMessages are DevTools error texts for a node or execution context
// the page has discarded.
var staleMessages = []string{
	"no node with given id",
	"could not find node with given id",
	"node with given id does not belong to the document",
	"node is detached from document",
	"cannot find context with specified id",
	"execution context was destroyed",
	"cannot find object with id",
}

// scriptError is a JavaScript exception thrown by an element read.
type scriptError struct {
	text string
}

func (e *scriptError) Error() string { return "script exception: " + e.text }

func classify(op string, err error) error {
	var protoErr *cdproto.Error
	if errors.As(err, &protoErr) {
		if isStaleMessage(protoErr.Message) {
			return fmt.Errorf("%s: %w: %s", op, browser.ErrStaleElement, protoErr.Message)
		}
		return browser.WrapDriverError("cdp_"+strconv.FormatInt(protoErr.Code, 10), op, err)
	}

	var jsErr *scriptError
	if errors.As(err, &jsErr) {
		if isStaleMessage(jsErr.text) {
			return fmt.Errorf("%s: %w: %s", op, browser.ErrStaleElement, jsErr.text)
		}
		return browser.WrapDriverError("script_error", op, err)
	}

	switch {
	case errors.Is(err, chromedp.ErrInvalidContext), errors.Is(err, chromedp.ErrInvalidTarget):
		return fmt.Errorf("%s: %w", op, browser.ErrSessionClosed)
	case errors.Is(err, chromedp.ErrChannelClosed), errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return browser.WrapDriverError("connection_lost", op, fmt.Errorf("%w: %v", browser.ErrConnectionLost, err))
	}
	return browser.WrapDriverError("driver", op, err)
}

func isStaleMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, known := range staleMessages {
		if strings.Contains(msg, known) {
			return true
		}
	}
	return false
}
