package site

import (
	"regexp"

	"github.com/entrhq/forumreply/pkg/browser"
)

var (
	css     = browser.CSS
	cssText = browser.CSSText
)

// Discourse returns the profile for Discourse forums.
func Discourse() Profile {
	return Profile{
		Name: "discourse",
		locators: locators(map[Affordance][]browser.Selector{
			PostLink: {
				css("a.topic-title"),
				css(`a[href*="/t/"]`),
				css(".topic-list-item a"),
				css("tr.topic-list-item a"),
			},
			Content: {
				css(".post-body"),
				css(".cooked"),
				css(".topic-body"),
				css(".post-content"),
			},
			Solved: {
				css(`.topic-status-info[title*="solved" i]`),
				css(`[class*="topic-status"] [class*="solved"]`),
				css("span.solved"),
				css(`[data-topic-status="solved"]`),
				css(".solved-badge"),
				css(".solved-indicator"),
				css(`[class*="solved-by"]`),
			},
			Reply: {
				css("button.create"),
				cssText("button", "Reply"),
				cssText("a", "Reply"),
				css(".reply-button"),
				css(`[data-action="reply"]`),
				css(`button[title*="Reply" i]`),
			},
			Editor: {
				css(".d-editor-input"),
				css("textarea.d-editor-input"),
				css(`textarea[placeholder*="reply" i]`),
				css(`div[contenteditable="true"]`),
				css(`textarea[name="raw"]`),
				css(`textarea[id*="reply"]`),
			},
			Submit: {
				cssText("button.create", "Reply"),
				cssText("button", "Post Reply"),
				css("button.create"),
				cssText("button", "Reply"),
				css(".submit-panel button"),
				css(`button[type="submit"]`),
			},
			SignIn: {
				css(`a[href*="/login"]`),
				cssText("button", "Log in"),
				cssText("a", "Log in"),
				cssText("a", "Login"),
				css(".login-button"),
				css("[data-login-button]"),
			},
			SignInSecondary: {
				cssText("button", "Log in"),
				cssText("button", "Login"),
				css(".login-button"),
				css("[data-login-button]"),
				css(`button[class*="login"]`),
			},
			Username: {
				css(`input[name="login"]`),
				css("#login-account-name"),
				css(`input[type="email"]:not([id*="signup" i])`),
				css(`#email:not([id*="signup"])`),
			},
			Password: {
				css(`input[name="password"]`),
				css("#login-account-password"),
				css(`input[type="password"]:not([id*="signup" i])`),
				css(`#password:not([id*="signup"])`),
			},
			LoginSubmit: {
				css("#login-button"),
				css(`button[type="submit"]`),
				css(`input[type="submit"]`),
				cssText("button", "Log in"),
				cssText("button", "Sign in"),
				cssText("button", "Login"),
				css(".login-button"),
			},
			LoggedIn: {
				css(".current-user"),
				css("[data-user-card]"),
				css(".user-menu"),
				css(".header-dropdown-toggle"),
				css(`[class*="current-user"]`),
			},
		}),
		IDPatterns: []*regexp.Regexp{
			regexp.MustCompile(`/t/[^/]+/(\d+)`),
			regexp.MustCompile(`/(\d+)(?:\?|$)`),
		},
		ResolutionMarkers: []string{"solved by"},
		Include:           []string{"*/t/*"},
	}
}

// Khoros returns the profile for Khoros (Lithium) communities such as the
// EA forums.
func Khoros() Profile {
	return Profile{
		Name: "khoros",
		locators: locators(map[Affordance][]browser.Selector{
			PostLink: {
				css(`a[href*="/t5/"]`),
			},
			Content: {
				css(".lia-message-body-content"),
			},
			Solved: {
				css(".lia-component-solution-info"),
				css(".lia-accepted-solution"),
			},
			Reply: {
				cssText("a", "Reply"),
				cssText("button", "Reply"),
			},
			Editor: {
				css(".lia-form-type-text"),
				css("#tinyMceEditor"),
				css(".mce-content-body"),
			},
			Submit: {
				css(`input[type="submit"]`),
				cssText("button", "Post"),
			},
			SignIn: {
				cssText("a", "Sign In"),
			},
			Username: {
				css("#email"),
			},
			UsernameContinue: {
				css("#logInBtn"),
			},
			Password: {
				css("#password"),
			},
			LoginSubmit: {
				css("#logInBtn"),
			},
			LoggedIn: {
				css(".lia-user-avatar"),
				cssText("a", "Sign Out"),
			},
			SendCode: {
				css("#btnSendCode"),
			},
			CodeInput: {
				css("#twoFactorCode"),
			},
			CodeSubmit: {
				css("#btnSubmit"),
			},
		}),
		ResolutionMarkers: []string{"solved by", "accepted solution"},
		SecondFactorURL:   []string{"verification"},
		CodeSender:        "noreply@ea.com",
		Include:           []string{"*/t5/*"},
		Exclude:           []string{"*category*", "*bd-p*", "*ct-p*"},
	}
}
