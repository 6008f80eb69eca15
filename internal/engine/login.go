package engine

import (
	"encoding/json"
	"fmt"
)

// Default form selectors, tried in order until one matches a visible
// element.
var (
	DefaultUsernameSelectors = []string{
		`input[type="email"]`,
		`input[type="text"][name*="user"]`,
		`input[type="text"][name*="email"]`,
		`input[name="username"]`,
		`input[id*="user"]`,
		`#username`,
	}
	DefaultPasswordSelectors = []string{
		`input[type="password"]`,
	}
	DefaultSubmitSelectors = []string{
		`button[type="submit"]`,
		`input[type="submit"]`,
		`.login-button`,
		`#login-button`,
	}
)

// LoginScript describes a form login declaratively. Engines render or
// interpret it themselves; credentials and selectors are never spliced
// into scripts as raw text.
type LoginScript struct {
	// LoginURL is the page carrying the form. Empty means the target
	// URL itself.
	LoginURL string

	UsernameSelectors []string
	PasswordSelectors []string
	SubmitSelectors   []string

	Username string
	Password string

	// WaitAfterMS is the pause after submitting, for the redirect to
	// land. Zero means 5000.
	WaitAfterMS int

	// NavigateToTarget returns to the target URL once the login
	// settles, when the login page differs from it.
	NavigateToTarget bool
}

func (s *LoginScript) withDefaults() *LoginScript {
	out := *s
	if len(out.UsernameSelectors) == 0 {
		out.UsernameSelectors = DefaultUsernameSelectors
	}
	if len(out.PasswordSelectors) == 0 {
		out.PasswordSelectors = DefaultPasswordSelectors
	}
	if len(out.SubmitSelectors) == 0 {
		out.SubmitSelectors = DefaultSubmitSelectors
	}
	if out.WaitAfterMS <= 0 {
		out.WaitAfterMS = 5000
	}
	return &out
}

// Render compiles the script to JavaScript for engines that execute
// login in-page. All values go through json.Marshal, so quotes and
// backslashes in credentials cannot alter the script.
func (s *LoginScript) Render(targetURL string) string {
	sc := s.withDefaults()

	loginURL := sc.LoginURL
	if loginURL == "" {
		loginURL = targetURL
	}

	target, _ := json.Marshal(targetURL)
	login, _ := json.Marshal(loginURL)
	userSels, _ := json.Marshal(sc.UsernameSelectors)
	passSels, _ := json.Marshal(sc.PasswordSelectors)
	submitSels, _ := json.Marshal(sc.SubmitSelectors)
	username, _ := json.Marshal(sc.Username)
	password, _ := json.Marshal(sc.Password)

	navigateBack := ""
	if sc.NavigateToTarget {
		navigateBack = `
	if (targetUrl !== loginUrl && !window.location.href.includes(targetUrl)) {
		window.location.href = targetUrl;
		await new Promise(resolve => setTimeout(resolve, 3000));
	}`
	}

	return fmt.Sprintf(`(async () => {
	const targetUrl = %s;
	const loginUrl = %s;
	const usernameSelectors = %s;
	const passwordSelectors = %s;
	const submitSelectors = %s;

	if (loginUrl !== window.location.href && !window.location.href.includes('login')) {
		window.location.href = loginUrl;
		await new Promise(resolve => setTimeout(resolve, 3000));
	}

	const firstVisible = (selectors) => {
		for (const sel of selectors) {
			let el = null;
			try { el = document.querySelector(sel); } catch (e) { continue; }
			if (el && el.offsetParent !== null) return el;
		}
		return null;
	};
	const fill = (el, value) => {
		el.focus();
		el.value = value;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
	};

	const usernameField = firstVisible(usernameSelectors);
	if (usernameField) fill(usernameField, %s);

	const passwordField = firstVisible(passwordSelectors);
	if (passwordField) {
		await new Promise(resolve => setTimeout(resolve, 500));
		fill(passwordField, %s);
	}

	await new Promise(resolve => setTimeout(resolve, 500));

	let submitted = false;
	const button = firstVisible(submitSelectors);
	if (button) {
		button.click();
		submitted = true;
	}
	if (!submitted && passwordField) {
		const form = passwordField.closest('form');
		if (form) {
			form.submit();
			submitted = true;
		}
	}

	await new Promise(resolve => setTimeout(resolve, %d));%s
})()`, target, login, userSels, passSels, submitSels, username, password, sc.WaitAfterMS, navigateBack)
}

// probeVisibleJS returns a script evaluating to the first selector in
// the list that matches a visible element, or "".
func probeVisibleJS(selectors []string) string {
	list, _ := json.Marshal(selectors)
	return fmt.Sprintf(`(() => {
	const selectors = %s;
	for (const sel of selectors) {
		let el = null;
		try { el = document.querySelector(sel); } catch (e) { continue; }
		if (el && el.offsetParent !== null) return sel;
	}
	return '';
})()`, list)
}

// fillFieldJS returns a script that fills the element at selector and
// fires the input/change events frameworks listen for.
func fillFieldJS(selector, value string) string {
	sel, _ := json.Marshal(selector)
	val, _ := json.Marshal(value)
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	el.focus();
	el.value = %s;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()`, sel, val)
}

// submitFormJS returns a script submitting the form enclosing selector,
// falling back to the first form on the page.
func submitFormJS(selector string) string {
	sel, _ := json.Marshal(selector)
	return fmt.Sprintf(`(() => {
	const field = document.querySelector(%s);
	const form = field ? field.closest('form') : document.querySelector('form');
	if (form) { form.submit(); return true; }
	return false;
})()`, sel)
}
