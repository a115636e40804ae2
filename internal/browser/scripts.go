package browser

import (
	"encoding/json"
	"fmt"

	"podpublish/internal/ui"
)

// findExpr returns a JS expression that evaluates to the first element
// matching sel, or null.
func findExpr(sel ui.SelectorSpec) (string, error) {
	query, strategy := sel.Query()
	literal, err := json.Marshal(query)
	if err != nil {
		return "", err
	}
	switch strategy {
	case ui.StrategyCSS:
		return fmt.Sprintf("document.querySelector(%s)", literal), nil
	case ui.StrategyXPath:
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", literal), nil
	default:
		return "", fmt.Errorf("invalid selector %s", sel)
	}
}

// allExpr returns a JS expression that evaluates to every element matching
// sel, in document order.
func allExpr(sel ui.SelectorSpec) (string, error) {
	query, strategy := sel.Query()
	literal, err := json.Marshal(query)
	if err != nil {
		return "", err
	}
	switch strategy {
	case ui.StrategyCSS:
		return fmt.Sprintf("Array.from(document.querySelectorAll(%s))", literal), nil
	case ui.StrategyXPath:
		return fmt.Sprintf(`((r) => Array.from({length: r.snapshotLength}, (_, i) => r.snapshotItem(i)))(document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null))`, literal), nil
	default:
		return "", fmt.Errorf("invalid selector %s", sel)
	}
}

// presenceScript reports whether any match exists, or with visible set whether
// any match is rendered. A hidden earlier match does not mask a visible one.
func presenceScript(sel ui.SelectorSpec, visible bool) (string, error) {
	all, err := allExpr(sel)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
  const els = %s;
  if (els.length === 0) return false;
  if (!%t) return true;
  return els.some((el) => {
    const style = window.getComputedStyle(el);
    if (style.visibility === "hidden" || style.display === "none") return false;
    return el.getClientRects().length > 0;
  });
})()`, all, visible), nil
}

// fillScript sets the element value through the native setter so framework
// bindings observe the change. Contenteditable editors receive the text via
// insertText.
func fillScript(sel ui.SelectorSpec, value string) (string, error) {
	find, err := findExpr(sel)
	if err != nil {
		return "", err
	}
	literal, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
  const el = %s;
  if (!el) return false;
  const value = %s;
  el.focus();
  if (el.isContentEditable) {
    el.innerHTML = "";
    document.execCommand("insertText", false, value);
    el.dispatchEvent(new Event("input", { bubbles: true }));
    return true;
  }
  const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
  const setter = Object.getOwnPropertyDescriptor(proto, "value").set;
  setter.call(el, value);
  el.dispatchEvent(new Event("input", { bubbles: true }));
  el.dispatchEvent(new Event("change", { bubbles: true }));
  el.blur();
  return true;
})()`, find, literal), nil
}

func textScript(sel ui.SelectorSpec) (string, error) {
	find, err := findExpr(sel)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
  const el = %s;
  return el ? (el.innerText || el.textContent || "").trim() : null;
})()`, find), nil
}
