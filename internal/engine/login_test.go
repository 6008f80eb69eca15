package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoginScriptRender(t *testing.T) {
	t.Run("credentials are json escaped", func(t *testing.T) {
		script := &LoginScript{
			Username: `admin"with'quotes`,
			Password: `secret"; alert('pwned'); //\`,
		}
		rendered := script.Render("https://site.test/account")

		user, _ := json.Marshal(script.Username)
		pass, _ := json.Marshal(script.Password)
		assert.Contains(t, rendered, string(user))
		assert.Contains(t, rendered, string(pass))

		// raw splicing would close the string literal at the first quote
		assert.NotContains(t, rendered, `"secret";`)
	})

	t.Run("defaults applied", func(t *testing.T) {
		script := &LoginScript{Username: "u", Password: "p"}
		rendered := script.Render("https://site.test/")

		assert.Contains(t, rendered, `input[type=\"email\"]`)
		assert.Contains(t, rendered, `input[type=\"password\"]`)
		assert.Contains(t, rendered, `button[type=\"submit\"]`)
		assert.Contains(t, rendered, "setTimeout(resolve, 5000)")
	})

	t.Run("custom wait", func(t *testing.T) {
		script := &LoginScript{Username: "u", Password: "p", WaitAfterMS: 1500}
		rendered := script.Render("https://site.test/")
		assert.Contains(t, rendered, "setTimeout(resolve, 1500)")
	})

	t.Run("login url falls back to target", func(t *testing.T) {
		script := &LoginScript{Username: "u", Password: "p"}
		rendered := script.Render("https://site.test/dashboard")
		assert.Contains(t, rendered, `const loginUrl = "https://site.test/dashboard";`)
	})

	t.Run("navigate back only when requested", func(t *testing.T) {
		script := &LoginScript{Username: "u", Password: "p", LoginURL: "https://site.test/login"}
		assert.NotContains(t, script.Render("https://site.test/app"), "targetUrl !== loginUrl")

		script.NavigateToTarget = true
		assert.Contains(t, script.Render("https://site.test/app"), "targetUrl !== loginUrl")
	})

	t.Run("custom selectors replace defaults", func(t *testing.T) {
		script := &LoginScript{
			Username:          "u",
			Password:          "p",
			UsernameSelectors: []string{"#user-field"},
		}
		rendered := script.Render("https://site.test/")
		assert.Contains(t, rendered, "#user-field")
		assert.NotContains(t, rendered, `input[type=\"email\"]`)
		// password selectors were not overridden
		assert.Contains(t, rendered, `input[type=\"password\"]`)
	})
}

func TestLoginHelperScripts(t *testing.T) {
	t.Run("probe embeds selector list", func(t *testing.T) {
		js := probeVisibleJS([]string{"#user", `input[name="login"]`})
		assert.Contains(t, js, `"#user"`)
		assert.Contains(t, js, `input[name=\"login\"]`)
		assert.Contains(t, js, "offsetParent")
	})

	t.Run("fill escapes value", func(t *testing.T) {
		js := fillFieldJS("#password", `pa"ss`)
		assert.Contains(t, js, `"#password"`)
		assert.Contains(t, js, `"pa\"ss"`)
	})

	t.Run("submit falls back to enclosing form", func(t *testing.T) {
		js := submitFormJS("#password")
		assert.Contains(t, js, "closest('form')")
		assert.Contains(t, js, "form.submit()")
	})
}
