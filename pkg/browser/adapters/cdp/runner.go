package cdp

import (
	"context"
	"encoding/json"
	"fmt"

	cdpnode "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// chromeRunner sends commands to the tab bound to the context.
type chromeRunner struct{}

func (chromeRunner) query(ctx context.Context, sel string, xpath bool, from *cdpnode.Node) ([]*cdpnode.Node, error) {
	opts := []chromedp.QueryOption{chromedp.AtLeast(0)}
	if xpath {
		opts = append(opts, chromedp.BySearch)
	} else {
		opts = append(opts, chromedp.ByQueryAll)
	}
	if from != nil {
		opts = append(opts, chromedp.FromNode(from))
	}
	var nodes []*cdpnode.Node
	if err := chromedp.Run(ctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (chromeRunner) call(ctx context.Context, node *cdpnode.Node, fn string, args ...any) ([]byte, error) {
	callArgs := make([]*runtime.CallArgument, 0, len(args))
	for _, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("encode argument: %w", err)
		}
		callArgs = append(callArgs, &runtime.CallArgument{Value: raw})
	}

	var out []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(node.BackendNodeID).Do(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		params := runtime.CallFunctionOn(fn).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true)
		if len(callArgs) > 0 {
			params = params.WithArguments(callArgs)
		}
		res, exc, err := params.Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			text := exc.Text
			if exc.Exception != nil && exc.Exception.Description != "" {
				text = exc.Exception.Description
			}
			return &scriptError{text: text}
		}
		out = res.Value
		return nil
	}))
	return out, err
}

func (chromeRunner) navigate(ctx context.Context, url string) error {
	return chromedp.Run(ctx, chromedp.Navigate(url))
}

func (chromeRunner) title(ctx context.Context) (string, error) {
	var title string
	err := chromedp.Run(ctx, chromedp.Title(&title))
	return title, err
}
