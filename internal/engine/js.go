package engine

import (
	"encoding/json"
	"fmt"
)

// Scripts injected by the local engine and shipped to the remote
// service as js_code. Everything user-controlled is passed through
// json.Marshal; raw string splicing of caller input is not allowed here.

// overlayRemovalJS strips cookie banners, consent dialogs and
// fixed-position overlays before content capture.
const overlayRemovalJS = `(() => {
	const selectors = [
		'[class*="cookie"]', '[id*="cookie"]',
		'[class*="consent"]', '[id*="consent"]',
		'[class*="popup"]', '[id*="popup"]',
		'[class*="modal"]', '[class*="overlay"]',
		'[role="dialog"]', '[aria-modal="true"]'
	];
	for (const sel of selectors) {
		document.querySelectorAll(sel).forEach(el => el.remove());
	}
	document.querySelectorAll('body *').forEach(el => {
		const style = window.getComputedStyle(el);
		const z = parseInt(style.zIndex, 10);
		if ((style.position === 'fixed' || style.position === 'sticky') && z > 1000) {
			el.remove();
		}
	});
	document.documentElement.style.overflow = 'auto';
	document.body.style.overflow = 'auto';
})()`

// BuildScrollScript returns a script that scrolls to the bottom of the
// page maxScrolls times, pausing delayMS between scrolls so lazy-loaded
// content can attach.
func BuildScrollScript(maxScrolls, delayMS int) string {
	return fmt.Sprintf(`(async () => {
	for (let i = 0; i < %d; i++) {
		window.scrollTo(0, document.body.scrollHeight);
		await new Promise(resolve => setTimeout(resolve, %d));
	}
})()`, maxScrolls, delayMS)
}

// buildCSSExtractionJS compiles a json_css schema into a script that
// returns the extracted items as a JSON string. The schema needs a
// baseSelector plus a fields list of {name, selector, type, attribute};
// type is text (default), attribute or html. With multiple false only
// the first base match is returned.
func buildCSSExtractionJS(schema map[string]interface{}, multiple bool) (string, error) {
	base, ok := schema["baseSelector"].(string)
	if !ok || base == "" {
		return "", fmt.Errorf("invalid extraction schema: missing baseSelector")
	}
	if _, ok := schema["fields"]; !ok {
		return "", fmt.Errorf("invalid extraction schema: missing fields")
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("invalid extraction schema: %w", err)
	}

	return fmt.Sprintf(`(() => {
	const schema = %s;
	const multiple = %t;
	const items = [];
	document.querySelectorAll(schema.baseSelector).forEach(el => {
		const item = {};
		for (const field of (schema.fields || [])) {
			let target = el;
			if (field.selector) {
				try { target = el.querySelector(field.selector); } catch (e) { target = null; }
			}
			if (!target) continue;
			let value = null;
			switch (field.type) {
			case 'attribute':
				value = target.getAttribute(field.attribute);
				break;
			case 'html':
				value = target.innerHTML;
				break;
			default:
				value = target.textContent.trim();
			}
			if (value !== null && value !== undefined) {
				item[field.name] = value;
			}
		}
		if (Object.keys(item).length > 0) {
			items.push(item);
		}
	});
	return JSON.stringify(multiple ? items : (items[0] || null));
})()`, schemaJSON, multiple), nil
}
